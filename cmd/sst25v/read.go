package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
)

func readCommand(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	bf := addBusFlags(fs)
	var (
		addrStr string
		nread   int
		outFile string
	)
	fs.StringVar(&addrStr, "addr", "0", "start address")
	fs.IntVar(&nread, "n", 256, "number of bytes to read")
	fs.StringVar(&outFile, "o", "", "output file (default: hexdump)")
	fs.Parse(args)

	addr, err := parseAddr(addrStr)
	if err != nil {
		fatalUsage("%v", err)
	}
	if nread <= 0 {
		fatalUsage("-n must be positive")
	}

	f, err := openFlash(bf)
	if err != nil {
		fatalf("%v", err)
	}
	defer f.Disable()

	data := make([]byte, nread)
	if err := f.ReadBlock(addr, data); err != nil {
		fatalf("read flash failed: %v", err)
	}
	if outFile == "" {
		fmt.Println(hex.Dump(data))
		return
	}
	if err := os.WriteFile(outFile, data, 0644); err != nil {
		fatalf("write file failed: %v", err)
	}
}
