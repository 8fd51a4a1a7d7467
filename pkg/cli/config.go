/*
Package cli facilitates building command-line applications that open Bluetooth sockets. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package), environment variable equivalents and a YAML configuration file.

# Examples

	import flag

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for addresses, ports, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	if err := config.LoadFile(config.ConfigFile); err != nil {
		panic(err)
	}

	conn, err := config.Dialer().Dial(config.Remote, config.Protocol, config.Port)

Precedence is command-line flags, then environment variables, then the configuration file. Each
source only fills fields that are still unset.

Use a [Flag] mask to control which options are registered and read:

	config, err = NewConfig(FlagRemote | FlagTimeouts) // Client-side options only.
	config, err = NewConfig(FlagListen)                // Server-side options only.
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
	"github.com/teslamotors/btsocket/pkg/socket"
)

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvAdapter  = "BTSOCK_ADAPTER"
	EnvRemote   = "BTSOCK_REMOTE"
	EnvProtocol = "BTSOCK_PROTOCOL"
	EnvPort     = "BTSOCK_PORT"
	EnvConfig   = "BTSOCK_CONFIG"
	EnvLogLevel = log.EnvLogLevel
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagRemote   Flag = 1 // Enable remote device and connect timeout options.
	FlagListen   Flag = 2 // Enable local adapter and backlog options.
	FlagTimeouts Flag = 4 // Enable read and write timeout options.
	FlagAll      Flag = FlagRemote | FlagListen | FlagTimeouts
)

var (
	ErrNoRemote = errors.New("remote device address not provided")
	ErrNoPort   = errors.New("channel or PSM not provided")
)

// Config fields determine how sockets are opened.
type Config struct {
	Flags     Flag        // Controls which set of environment variables/CLI flags to use.
	Adapter   btaddr.Addr // Local adapter to listen on. Zero means every adapter.
	AdapterID string      // Adapter name such as hci0, resolved to Adapter where supported.
	Remote    btaddr.Addr
	Protocol  protocol.Protocol
	Port      uint16 // RFCOMM channel or L2CAP PSM.
	Backlog   int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	Framed     bool   // Exchange length-prefixed datagrams instead of raw bytes.
	LogLevel   string
	ConfigFile string
}

// fileConfig is the YAML layout read by LoadFile.
type fileConfig struct {
	Adapter        string        `yaml:"adapter"`
	AdapterID      string        `yaml:"adapter_id"`
	Remote         string        `yaml:"remote"`
	Protocol       string        `yaml:"protocol"`
	Port           uint16        `yaml:"port"`
	Backlog        int           `yaml:"backlog"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	Framed         bool          `yaml:"framed"`
	LogLevel       string        `yaml:"log_level"`
}

func NewConfig(flags Flag) (*Config, error) {
	return &Config{Flags: flags}, nil
}

// RegisterCommandLineFlags adds c's options to the default flag set.
func (c *Config) RegisterCommandLineFlags() {
	c.RegisterFlags(flag.CommandLine)
}

// RegisterFlags adds c's options to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Var(&c.Protocol, "protocol", "Transport `protocol` (rfcomm|l2cap). Defaults to $BTSOCK_PROTOCOL or rfcomm.")
	fs.Func("port", "RFCOMM channel or L2CAP PSM `number`. Defaults to $BTSOCK_PORT.", func(value string) error {
		port, err := parsePort(value)
		if err != nil {
			return err
		}
		c.Port = port
		return nil
	})
	fs.BoolVar(&c.Framed, "framed", false, "Exchange length-prefixed datagrams")
	fs.StringVar(&c.ConfigFile, "config", "", "YAML configuration `file`. Defaults to $BTSOCK_CONFIG.")
	fs.StringVar(&c.LogLevel, "log-level", "", "Log `level` (none|error|warning|info|debug). Defaults to $BTSOCK_LOG_LEVEL.")
	if c.Flags.isSet(FlagRemote) {
		fs.Var(&c.Remote, "remote", "Remote device `address`. Defaults to $BTSOCK_REMOTE.")
		fs.DurationVar(&c.ConnectTimeout, "connect-timeout", 0, "Give up connecting after `duration` (0 waits for the stack)")
	}
	if c.Flags.isSet(FlagListen) {
		fs.Var(&c.Adapter, "adapter", "Local adapter `address` to listen on. Defaults to $BTSOCK_ADAPTER or every adapter.")
		fs.IntVar(&c.Backlog, "backlog", 0, "Maximum number of pending `connections`")
		c.registerFlagsOsSpecific(fs)
	}
	if c.Flags.isSet(FlagTimeouts) {
		fs.DurationVar(&c.ReadTimeout, "read-timeout", 0, "Fail reads after `duration` without data")
		fs.DurationVar(&c.WriteTimeout, "write-timeout", 0, "Fail writes that block for `duration`")
	}
}

func parsePort(value string) (uint16, error) {
	port, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port '%s'", value)
	}
	return uint16(port), nil
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters.
func (c *Config) ReadFromEnvironment() {
	if c.Protocol == 0 {
		if value, ok := os.LookupEnv(EnvProtocol); ok {
			if err := c.Protocol.Set(value); err != nil {
				log.Warning("Ignoring %s: %s", EnvProtocol, err)
			} else {
				log.Debug("Set protocol to '%s'", c.Protocol)
			}
		}
	}
	if c.Port == 0 {
		if value, ok := os.LookupEnv(EnvPort); ok {
			if port, err := parsePort(value); err != nil {
				log.Warning("Ignoring %s: %s", EnvPort, err)
			} else {
				c.Port = port
				log.Debug("Set port to %d", c.Port)
			}
		}
	}
	if c.ConfigFile == "" {
		c.ConfigFile = os.Getenv(EnvConfig)
		log.Debug("Set config file to '%s'", c.ConfigFile)
	}
	if c.LogLevel == "" {
		c.LogLevel = os.Getenv(EnvLogLevel)
	}
	if c.Flags.isSet(FlagRemote) && c.Remote.IsAny() {
		if value, ok := os.LookupEnv(EnvRemote); ok {
			if err := c.Remote.Set(value); err != nil {
				log.Warning("Ignoring %s: %s", EnvRemote, err)
			} else {
				log.Debug("Set remote to '%s'", c.Remote)
			}
		}
	}
	if c.Flags.isSet(FlagListen) && c.Adapter.IsAny() {
		if value, ok := os.LookupEnv(EnvAdapter); ok {
			if err := c.Adapter.Set(value); err != nil {
				log.Warning("Ignoring %s: %s", EnvAdapter, err)
			} else {
				log.Debug("Set adapter to '%s'", c.Adapter)
			}
		}
	}
}

// LoadFile fills unset fields of c from the YAML file at path. An empty path is ignored.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	log.Debug("Loaded config file %s", path)

	if file.Adapter != "" && c.Adapter.IsAny() {
		if c.Adapter, err = btaddr.Parse(file.Adapter); err != nil {
			return fmt.Errorf("config file %s: adapter: %w", path, err)
		}
	}
	if file.Remote != "" && c.Remote.IsAny() {
		if c.Remote, err = btaddr.Parse(file.Remote); err != nil {
			return fmt.Errorf("config file %s: remote: %w", path, err)
		}
	}
	if file.Protocol != "" && c.Protocol == 0 {
		if c.Protocol, err = protocol.ParseProtocol(file.Protocol); err != nil {
			return fmt.Errorf("config file %s: protocol: %w", path, err)
		}
	}
	if c.AdapterID == "" {
		c.AdapterID = file.AdapterID
	}
	if c.Port == 0 {
		c.Port = file.Port
	}
	if c.Backlog == 0 {
		c.Backlog = file.Backlog
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = file.ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = file.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = file.WriteTimeout
	}
	c.Framed = c.Framed || file.Framed
	if c.LogLevel == "" {
		c.LogLevel = file.LogLevel
	}
	return nil
}

// ApplyLogLevel sets the global log level from c.LogLevel, if set.
func (c *Config) ApplyLogLevel() error {
	if c.LogLevel == "" {
		return nil
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	return nil
}

// Validate fills in defaults and checks that the fields needed by the enabled flags are present.
func (c *Config) Validate() error {
	if c.Protocol == 0 {
		c.Protocol = protocol.RFCOMM
	}
	if !c.Protocol.Valid() {
		return protocol.NewError(protocol.Unsupported, "validate config", fmt.Errorf("unknown %s", c.Protocol))
	}
	if c.AdapterID != "" && c.Adapter.IsAny() {
		addr, err := resolveAdapter(c.AdapterID)
		if err != nil {
			return err
		}
		c.Adapter = addr
	}
	if c.Flags.isSet(FlagRemote) && c.Remote.IsAny() {
		return ErrNoRemote
	}
	if c.Flags.isSet(FlagRemote) && c.Port == 0 {
		return ErrNoPort
	}
	return protocol.ValidatePort(c.Protocol, c.Port, !c.Flags.isSet(FlagRemote))
}

// Dialer returns a socket.Dialer using c's timeouts.
func (c *Config) Dialer() *socket.Dialer {
	return &socket.Dialer{
		Timeout:      c.ConnectTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// ListenConfig returns a socket.ListenConfig using c's backlog.
func (c *Config) ListenConfig() *socket.ListenConfig {
	return &socket.ListenConfig{Backlog: c.Backlog}
}
