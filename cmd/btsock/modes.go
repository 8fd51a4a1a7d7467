package main

import (
	"fmt"
	"os"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/pkg/cli"
	"github.com/teslamotors/btsocket/pkg/protocol"
	"github.com/teslamotors/btsocket/pkg/socket"
)

// Mode establishes the connection a session runs on. A nil handler marks a mode that does not
// open a connection.
type Mode struct {
	help    string
	flags   cli.Flag
	handler func(config *cli.Config) (*socket.Socket, error)
}

func (m *Mode) summary() string {
	return m.help
}

var modes = map[string]*Mode{
	"dial": {
		help:    "Connect to -remote on -port",
		flags:   cli.FlagRemote | cli.FlagTimeouts,
		handler: dial,
	},
	"listen": {
		help:    "Accept one connection on -port",
		flags:   cli.FlagListen | cli.FlagTimeouts,
		handler: listen,
	},
	"check": {
		help: "Report whether a Bluetooth adapter is available",
	},
}

// configureFlags restricts c to the options used by mode and verifies that required ones are set.
func configureFlags(c *cli.Config, mode *Mode) error {
	if mode.handler == nil {
		return nil
	}
	c.Flags = mode.flags
	return c.Validate()
}

func dial(config *cli.Config) (*socket.Socket, error) {
	return config.Dialer().Dial(config.Remote, config.Protocol, config.Port)
}

func listen(config *cli.Config) (*socket.Socket, error) {
	listener, err := config.ListenConfig().Listen(config.Adapter, config.Protocol, config.Port)
	if err != nil {
		return nil, err
	}
	defer listener.Close()
	fmt.Fprintf(os.Stderr, "Waiting for a connection on %s %s\n", listener.LocalAddr().Network(), listener.LocalAddr())
	return acceptOne(listener, config)
}

type acceptor interface {
	Accept() (*socket.Socket, error)
}

func acceptOne(listener acceptor, config *cli.Config) (*socket.Socket, error) {
	for {
		sock, err := listener.Accept()
		if protocol.ShouldRetry(err) {
			log.Debug("Accept interrupted, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		if config.ReadTimeout > 0 {
			if err := sock.SetReadTimeout(config.ReadTimeout); err != nil {
				sock.Close()
				return nil, err
			}
		}
		if config.WriteTimeout > 0 {
			if err := sock.SetWriteTimeout(config.WriteTimeout); err != nil {
				sock.Close()
				return nil, err
			}
		}
		return sock, nil
	}
}

func checkAdapter() int {
	if adapters, err := socket.Adapters(); err != nil {
		log.Debug("Cannot list adapters: %s", err)
	} else {
		for _, adapter := range adapters {
			fmt.Println(adapter)
		}
	}
	if err := socket.CheckAdapter(); err != nil {
		if socket.IsAdapterError(err) {
			writeErr("%s", socket.AdapterErrorHelpMessage(err))
		} else {
			writeErr("Error: %s", err)
		}
		return 1
	}
	fmt.Println("Bluetooth adapter is available")
	return 0
}
