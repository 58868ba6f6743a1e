package main

import (
	"flag"
	"fmt"
	"time"
)

func eraseCommand(args []string) {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	bf := addBusFlags(fs)
	var (
		addrStr string
		nbytes  int
	)
	fs.StringVar(&addrStr, "addr", "0", "address within the block to erase")
	fs.IntVar(&nbytes, "n", 1, "erase all blocks overlapping addr..addr+n")
	fs.Parse(args)

	addr, err := parseAddr(addrStr)
	if err != nil {
		fatalUsage("%v", err)
	}
	if nbytes <= 0 {
		fatalUsage("-n must be positive")
	}

	f, err := openFlash(bf)
	if err != nil {
		fatalf("%v", err)
	}
	defer f.Disable()

	start := time.Now()
	if err := eraseRange(f, addr, nbytes); err != nil {
		fatalf("erase failed: %v", err)
	}
	fmt.Printf("erased in %v\n", time.Since(start).Round(time.Millisecond))
}
