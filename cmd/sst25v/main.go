package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func fatalUsage(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
	sst25v <command> [arguments]

Commands:
	status	 print the device status register
	read	 read flash memory
	write	 program flash memory from a file
	erase	 erase the block containing an address
	verify	 compare flash contents against a file
	wait	 poll until the device is ready
	shell	 interactive session
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	switch cmd := flag.Arg(0); cmd {
	case "status":
		statusCommand(flag.Args()[1:])
	case "read":
		readCommand(flag.Args()[1:])
	case "write":
		writeCommand(flag.Args()[1:])
	case "erase":
		eraseCommand(flag.Args()[1:])
	case "verify":
		verifyCommand(flag.Args()[1:])
	case "wait":
		waitCommand(flag.Args()[1:])
	case "shell":
		shellCommand(flag.Args()[1:])
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", cmd)
		usage()
	}
}

// parseAddr accepts decimal, hex (0x...) and octal address notation.
func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return uint32(v), nil
}
