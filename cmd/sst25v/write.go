package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gentam/sst25v"
)

// flasher is the subset of the driver the erase helper uses.
type flasher interface {
	EraseBlock(addr uint32) error
	WaitUntilReady() error
	Part() sst25v.Part
}

func writeCommand(args []string) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	bf := addBusFlags(fs)
	var (
		addrStr  string
		filename string
		erase    bool
	)
	fs.StringVar(&addrStr, "addr", "0", "start address")
	fs.StringVar(&filename, "f", "", "input file")
	fs.BoolVar(&erase, "e", false, "erase affected blocks first")
	fs.Parse(args)

	if filename == "" {
		fatalUsage("input file is required")
	}
	addr, err := parseAddr(addrStr)
	if err != nil {
		fatalUsage("%v", err)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		fatalf("failed to read file: %v", err)
	}
	if len(data) == 0 {
		fatalf("%s is empty", filename)
	}

	f, err := openFlash(bf)
	if err != nil {
		fatalf("%v", err)
	}
	defer f.Disable()

	if erase {
		if err := eraseRange(f, addr, len(data)); err != nil {
			fatalf("erase failed: %v", err)
		}
	}

	if err := f.WriteBlock(addr, data); err != nil {
		fatalf("write flash failed: %v", err)
	}
	fmt.Printf("wrote %d bytes at 0x%06X\n", len(data), addr)
}

// eraseRange erases every 256-byte block overlapping [addr, addr+n).
func eraseRange(f flasher, addr uint32, n int) error {
	const blockSize = 256
	first := addr &^ (blockSize - 1)
	last := (addr + uint32(n) - 1) &^ (blockSize - 1)
	for block := first; ; block += blockSize {
		if err := f.EraseBlock(block); err != nil {
			return err
		}
		time.Sleep(f.Part().BlockErase)
		if err := f.WaitUntilReady(); err != nil {
			return err
		}
		if block == last {
			return nil
		}
	}
}
