package main

import (
	"flag"
	"fmt"
)

func statusCommand(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	bf := addBusFlags(fs)
	fs.Parse(args)

	f, err := openFlash(bf)
	if err != nil {
		fatalf("%v", err)
	}
	defer f.Disable()

	sr, err := f.ReadStatusRegister()
	if err != nil {
		fatalf("read status register failed: %v", err)
	}
	fmt.Println(sr)
}
