package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/teslamotors/btsocket/internal/shim"
	"github.com/teslamotors/btsocket/pkg/connector/stream"
	"github.com/teslamotors/btsocket/pkg/socket"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
	ErrFramed          = errors.New("not available in framed mode; frames are printed as they arrive")
)

const defaultReceiveSize = 1024

var directions = map[string]shim.Direction{
	"read":  shim.ShutdownRead,
	"write": shim.ShutdownWrite,
	"both":  shim.ShutdownBoth,
}

// session is the connection that COMMANDs operate on.
type session struct {
	sock   *socket.Socket
	framed *stream.Connection
	out    io.Writer
}

func newSession(sock *socket.Socket, out io.Writer) *session {
	return &session{sock: sock, out: out}
}

func (s *session) printFrames() {
	for frame := range s.framed.Receive() {
		fmt.Fprintf(s.out, "RX %q\n", frame)
	}
	if err := s.framed.Err(); err != nil {
		fmt.Fprintf(s.out, "Connection terminated: %s\n", err)
	}
}

func (s *session) Close() {
	if s.framed != nil {
		s.framed.Close()
		return
	}
	s.sock.Close()
}

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, s *session, args map[string]string) error

type Command struct {
	help     string
	args     []Argument
	optional []Argument
	handler  Handler
}

func (c *Command) summary() string {
	return c.help
}

func parseDirection(name string) (shim.Direction, error) {
	if how, ok := directions[strings.ToLower(name)]; ok {
		return how, nil
	}
	return 0, fmt.Errorf("%w: direction must be read|write|both", ErrCommandLineArgs)
}

func execute(ctx context.Context, s *session, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, ok := commands[args[0]]
	if !ok {
		return ErrUnknownCommand
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, s, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var commands = map[string]*Command{
	"send": {
		help: "Send TEXT to the peer",
		args: []Argument{
			{name: "TEXT", help: "Quote TEXT to include spaces. Raw connections append a newline."},
		},
		handler: func(ctx context.Context, s *session, args map[string]string) error {
			if s.framed != nil {
				return s.framed.Send(ctx, []byte(args["TEXT"]))
			}
			_, err := s.sock.Write([]byte(args["TEXT"] + "\n"))
			return err
		},
	},
	"recv": {
		help: "Receive and print up to N bytes",
		optional: []Argument{
			{name: "N", help: "maximum number of bytes (default 1024)"},
		},
		handler: receive(false),
	},
	"peek": {
		help: "Print up to N received bytes without consuming them",
		optional: []Argument{
			{name: "N", help: "maximum number of bytes (default 1024)"},
		},
		handler: receive(true),
	},
	"shutdown": {
		help: "Shut down one or both directions of the connection",
		args: []Argument{
			{name: "DIRECTION", help: "read|write|both"},
		},
		handler: func(ctx context.Context, s *session, args map[string]string) error {
			how, err := parseDirection(args["DIRECTION"])
			if err != nil {
				return err
			}
			return s.sock.Shutdown(how)
		},
	},
	"timeout": {
		help: "Set the read or write timeout (0 disables it)",
		args: []Argument{
			{name: "DIRECTION", help: "read|write"},
			{name: "DURATION", help: "e.g. 1.5s or 500ms"},
		},
		handler: func(ctx context.Context, s *session, args map[string]string) error {
			d, err := time.ParseDuration(args["DURATION"])
			if err != nil || d < 0 {
				return fmt.Errorf("%w: invalid DURATION", ErrCommandLineArgs)
			}
			switch strings.ToLower(args["DIRECTION"]) {
			case "read":
				return s.sock.SetReadTimeout(d)
			case "write":
				return s.sock.SetWriteTimeout(d)
			}
			return fmt.Errorf("%w: direction must be read|write", ErrCommandLineArgs)
		},
	},
	"info": {
		help: "Print connection details",
		handler: func(ctx context.Context, s *session, args map[string]string) error {
			readTimeout, err := s.sock.ReadTimeout()
			if err != nil {
				return err
			}
			writeTimeout, err := s.sock.WriteTimeout()
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "protocol:      %s\n", s.sock.Protocol())
			fmt.Fprintf(s.out, "local:         %s\n", s.sock.LocalAddr())
			fmt.Fprintf(s.out, "peer:          %s\n", s.sock.PeerAddr())
			fmt.Fprintf(s.out, "read timeout:  %s\n", readTimeout)
			fmt.Fprintf(s.out, "write timeout: %s\n", writeTimeout)
			fmt.Fprintf(s.out, "framed:        %v\n", s.framed != nil)
			if pending := s.sock.TakeError(); pending != nil {
				fmt.Fprintf(s.out, "pending error: %s\n", pending)
			}
			return nil
		},
	},
	"close": {
		help: "Close the connection",
		handler: func(ctx context.Context, s *session, args map[string]string) error {
			if s.framed != nil {
				s.framed.Close()
				return nil
			}
			return s.sock.Close()
		},
	},
}

// receive returns the handler shared by recv and peek.
func receive(peek bool) Handler {
	return func(ctx context.Context, s *session, args map[string]string) error {
		if s.framed != nil {
			return ErrFramed
		}
		size := defaultReceiveSize
		if sizeStr, ok := args["N"]; ok {
			n, err := strconv.Atoi(sizeStr)
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: N must be a positive integer", ErrCommandLineArgs)
			}
			size = n
		}
		read := s.sock.Read
		if peek {
			read = s.sock.Peek
		}
		buf := make([]byte, size)
		n, err := read(buf)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out, "EOF")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%q\n", buf[:n])
		return nil
	}
}
