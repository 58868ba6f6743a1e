package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/gentam/sst25v"
)

func shellCommand(args []string) {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	bf := addBusFlags(fs)
	fs.Parse(args)

	f, err := openFlash(bf)
	if err != nil {
		fatalf("%v", err)
	}
	defer f.Disable()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "flash> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fatalf("failed to create readline: %v", err)
	}
	defer rl.Close()

	sh := &shell{f: f, rl: rl}
	sh.printHelp()
	sh.run()
}

// shell holds the interactive session state.
type shell struct {
	f  *sst25v.Flash
	rl *readline.Instance
}

func (sh *shell) run() {
	for {
		line, err := sh.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			sh.printHelp()

		case "status", "s":
			sh.cmdStatus()

		case "read", "r":
			sh.cmdRead(args)

		case "write", "w":
			sh.cmdWrite(args)

		case "erase", "e":
			sh.cmdErase(args)

		case "wait":
			sh.cmdWait()

		case "part":
			fmt.Fprintln(sh.rl.Stdout(), sh.f.Part())

		case "parts":
			for _, p := range sst25v.Parts() {
				fmt.Fprintf(sh.rl.Stdout(), "  %-12s %8d bytes\n", p.Name, p.Capacity)
			}

		case "quit", "exit", "q":
			return

		default:
			fmt.Fprintf(sh.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.rl.Stdout(), `
Commands:
  status             - print the status register
  read <addr> [n]    - hexdump n bytes (default 64)
  write <addr> <hex> - program bytes, e.g. write 0x100 12ab34
  erase <addr>       - erase the block containing addr
  wait               - poll until the device is ready
  part               - show the configured part
  parts              - list known parts
  help               - show this help
  quit               - exit`)
}

func (sh *shell) errorf(format string, a ...any) {
	fmt.Fprintf(sh.rl.Stdout(), "Error: "+format+"\n", a...)
}

func (sh *shell) cmdStatus() {
	sr, err := sh.f.ReadStatusRegister()
	if err != nil {
		sh.errorf("%v", err)
		return
	}
	fmt.Fprintln(sh.rl.Stdout(), sr)
}

func (sh *shell) cmdRead(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(sh.rl.Stdout(), "Usage: read <addr> [n]")
		return
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		sh.errorf("%v", err)
		return
	}
	n := 64
	if len(args) > 1 {
		n, err = strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			sh.errorf("bad byte count %q", args[1])
			return
		}
	}

	buf := make([]byte, n)
	if err := sh.f.ReadBlock(addr, buf); err != nil {
		sh.errorf("%v", err)
		return
	}
	fmt.Fprint(sh.rl.Stdout(), hex.Dump(buf))
}

func (sh *shell) cmdWrite(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(sh.rl.Stdout(), "Usage: write <addr> <hexbytes>")
		return
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		sh.errorf("%v", err)
		return
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		sh.errorf("%v", err)
		return
	}

	if err := sh.f.WriteBlock(addr, data); err != nil {
		sh.errorf("%v", err)
		return
	}
	fmt.Fprintf(sh.rl.Stdout(), "wrote %d bytes at 0x%06X\n", len(data), addr)
}

func (sh *shell) cmdErase(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.rl.Stdout(), "Usage: erase <addr>")
		return
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		sh.errorf("%v", err)
		return
	}

	if err := sh.f.EraseBlock(addr); err != nil {
		sh.errorf("%v", err)
		return
	}
	time.Sleep(sh.f.Part().BlockErase)
	if err := sh.f.WaitUntilReady(); err != nil {
		sh.errorf("%v", err)
		return
	}
	fmt.Fprintf(sh.rl.Stdout(), "erased block at 0x%06X\n", addr&^0xFF)
}

func (sh *shell) cmdWait() {
	if err := sh.f.WaitUntilReady(); err != nil {
		sh.errorf("%v", err)
		return
	}
	fmt.Fprintln(sh.rl.Stdout(), "ready")
}
