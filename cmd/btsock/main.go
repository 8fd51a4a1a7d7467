package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/term"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/pkg/cli"
	"github.com/teslamotors/btsocket/pkg/connector/stream"
	"github.com/teslamotors/btsocket/pkg/protocol"
	"github.com/teslamotors/btsocket/pkg/socket"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * dial requires -remote and -port.
 * listen accepts a single connection on -port (or a free port if omitted).
 * Session COMMANDs run after the connection is established. Without one, an interactive shell
   reads them from standard input.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] MODE [COMMAND [ARG...]]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid MODEs and COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available MODEs:\n")
	printTable(modes)
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	printTable(commands)
}

func printTable[T interface{ summary() string }](entries map[string]T) {
	maxLength := 0
	var labels []string
	for name := range entries {
		labels = append(labels, name)
		if len(name) > maxLength {
			maxLength = len(name)
		}
	}
	sort.Strings(labels)
	for _, name := range labels {
		fmt.Printf("  %s%s %s\n", name, strings.Repeat(" ", maxLength-len(name)), entries[name].summary())
	}
}

func runCommand(s *session, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, s, args); err != nil {
		if protocol.IsTimeout(err) {
			writeErr("Timed out: %s", err)
		} else if errors.Is(err, protocol.Closed) {
			writeErr("The connection is closed; use exit to quit")
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(s *session, in io.Reader, timeout time.Duration) int {
	prompt := func() {}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		prompt = func() { fmt.Fprintf(s.out, "> ") }
	}
	scanner := bufio.NewScanner(in)
	for prompt(); scanner.Scan(); prompt() {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(s, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug          bool
		commandTimeout time.Duration
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		writeErr("Failed to load configuration: %s", err)
		return
	}
	flag.Usage = Usage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.DurationVar(&commandTimeout, "command-timeout", 5*time.Second, "Set timeout for framed sends.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	if err := config.LoadFile(config.ConfigFile); err != nil {
		writeErr("Error: %s", err)
		return
	}
	if err := config.ApplyLogLevel(); err != nil {
		writeErr("Invalid log level: %s", err)
		return
	}
	if debug {
		log.SetLevel(log.LevelDebug)
	}

	args := flag.Args()
	if len(args) == 0 {
		Usage()
		return
	}
	if args[0] == "help" {
		if len(args) == 1 {
			Usage()
			status = 0
			return
		}
		if info, ok := commands[args[1]]; ok {
			info.Usage(args[1])
		} else if mode, ok := modes[args[1]]; ok {
			fmt.Printf("Usage: %s [OPTION...] %s\n%s\n", os.Args[0], args[1], mode.help)
		} else {
			writeErr("Unrecognized command: %s", args[1])
			return
		}
		status = 0
		return
	}

	mode, ok := modes[args[0]]
	if !ok {
		writeErr("Unrecognized mode: %s", args[0])
		return
	}
	if err := configureFlags(config, mode); err != nil {
		writeErr("Missing required flag: %s", err)
		return
	}
	if mode.handler == nil {
		status = checkAdapter()
		return
	}

	sock, err := mode.handler(config)
	if err != nil {
		writeErr("Error: %s", err)
		if socket.IsAdapterError(err) {
			writeErr("\n%s", socket.AdapterErrorHelpMessage(err))
		} else if errors.Is(err, protocol.PermissionDenied) {
			writeErr("\nTry again after granting this application CAP_NET_RAW:\n\n\tsudo setcap 'cap_net_raw=eip' \"$(which %s)\"\n", os.Args[0])
		}
		return
	}

	s := newSession(sock, os.Stdout)
	if config.Framed {
		s.framed = stream.New(sock, sock.PeerAddr().String())
		go s.printFrames()
	}
	defer s.Close()

	if len(args) > 1 {
		status = runCommand(s, args[1:], commandTimeout)
	} else {
		status = runInteractiveShell(s, os.Stdin, commandTimeout)
	}
}
