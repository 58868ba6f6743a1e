package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/snksoft/crc"
)

// verifyCommand compares a flash range against a file by CRC32 so a
// mismatch does not require holding both images in memory twice.
func verifyCommand(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	bf := addBusFlags(fs)
	var (
		addrStr  string
		filename string
	)
	fs.StringVar(&addrStr, "addr", "0", "start address")
	fs.StringVar(&filename, "f", "", "file to compare against")
	fs.Parse(args)

	if filename == "" {
		fatalUsage("input file is required")
	}
	addr, err := parseAddr(addrStr)
	if err != nil {
		fatalUsage("%v", err)
	}
	want, err := os.ReadFile(filename)
	if err != nil {
		fatalf("failed to read file: %v", err)
	}
	if len(want) == 0 {
		fatalf("%s is empty", filename)
	}

	f, err := openFlash(bf)
	if err != nil {
		fatalf("%v", err)
	}
	defer f.Disable()

	table := crc.NewTable(crc.CRC32)

	fileHash := crc.NewHashWithTable(table)
	fileHash.Update(want)
	fileCRC := fileHash.CRC32()

	flashHash := crc.NewHashWithTable(table)
	buf := make([]byte, 4096)
	for remaining := len(want); remaining > 0; {
		chunk := buf
		if remaining < len(buf) {
			chunk = buf[:remaining]
		}
		if err := f.ReadBlock(addr, chunk); err != nil {
			fatalf("read flash failed: %v", err)
		}
		flashHash.Update(chunk)
		addr += uint32(len(chunk))
		remaining -= len(chunk)
	}
	flashCRC := flashHash.CRC32()

	if flashCRC != fileCRC {
		fatalf("verify FAILED: flash CRC32 %08X, file CRC32 %08X", flashCRC, fileCRC)
	}
	fmt.Printf("verify OK: CRC32 %08X (%d bytes)\n", flashCRC, len(want))
}
