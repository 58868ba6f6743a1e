package main

import (
	"flag"
	"fmt"
)

func waitCommand(args []string) {
	fs := flag.NewFlagSet("wait", flag.ExitOnError)
	bf := addBusFlags(fs)
	fs.Parse(args)

	f, err := openFlash(bf)
	if err != nil {
		fatalf("%v", err)
	}
	defer f.Disable()

	if err := f.WaitUntilReady(); err != nil {
		fatalf("%v", err)
	}
	fmt.Println("ready")
}
