// Package btaddr implements the 48-bit Bluetooth device address.
//
// An [Addr] stores its six octets in display order: the first octet of "00:1A:7D:DA:71:13" is
// 0x00. Native stacks use other layouts (Linux bdaddr_t is reversed, Windows BTH_ADDR is a
// 64-bit integer), and the conversions to those layouts are provided here so that no other
// package manipulates address bytes directly.
package btaddr

import (
	"fmt"

	"github.com/teslamotors/btsocket/pkg/protocol"
)

// Len is the number of octets in a Bluetooth address.
const Len = 6

// Addr is a Bluetooth device address. It is comparable and safe to copy.
type Addr struct {
	b [Len]byte
}

// Any is the wildcard address, used to bind to whichever local adapter the host selects.
var Any = Addr{}

const textLen = 3*Len - 1

// Parse parses six two-digit hexadecimal octets separated by ':' or '-'. The same separator
// must be used throughout and hex digits are case-insensitive. On failure the returned error
// has kind protocol.InvalidAddress.
func Parse(text string) (Addr, error) {
	var a Addr
	if len(text) != textLen {
		return Addr{}, invalid(text, "expected six octets")
	}
	sep := text[2]
	if sep != ':' && sep != '-' {
		return Addr{}, invalid(text, "expected ':' or '-' separator")
	}
	for i := 0; i < Len; i++ {
		off := 3 * i
		if i > 0 && text[off-1] != sep {
			return Addr{}, invalid(text, "inconsistent separator")
		}
		hi, ok1 := fromHex(text[off])
		lo, ok2 := fromHex(text[off+1])
		if !ok1 || !ok2 {
			return Addr{}, invalid(text, fmt.Sprintf("octet %d is not hexadecimal", i+1))
		}
		a.b[i] = hi<<4 | lo
	}
	return a, nil
}

// MustParse is like Parse but panics if text is not a valid address.
func MustParse(text string) Addr {
	a, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return a
}

func invalid(text, reason string) error {
	return protocol.NewError(protocol.InvalidAddress, "parse address", fmt.Errorf("%q: %s", text, reason))
}

func fromHex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

const hexDigits = "0123456789ABCDEF"

// String returns the canonical form, e.g. "00:1A:7D:DA:71:13".
func (a Addr) String() string {
	buf := make([]byte, 0, textLen)
	for i, b := range a.b {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(buf)
}

// Bytes returns a copy of the address octets in display order.
func (a Addr) Bytes() [Len]byte {
	return a.b
}

// FromBytes builds an address from octets in display order.
func FromBytes(b [Len]byte) Addr {
	return Addr{b: b}
}

// IsAny returns true for the wildcard address.
func (a Addr) IsAny() bool {
	return a == Any
}

// Reversed returns the octets least significant first, the layout of the Linux bdaddr_t.
func (a Addr) Reversed() [Len]byte {
	var r [Len]byte
	for i := range a.b {
		r[Len-1-i] = a.b[i]
	}
	return r
}

// FromReversed is the inverse of [Addr.Reversed].
func FromReversed(r [Len]byte) Addr {
	var a Addr
	for i := range r {
		a.b[Len-1-i] = r[i]
	}
	return a
}

// Uint64 returns the address as a 48-bit integer, the layout of the Windows BTH_ADDR.
func (a Addr) Uint64() uint64 {
	var v uint64
	for _, b := range a.b {
		v = v<<8 | uint64(b)
	}
	return v
}

// FromUint64 is the inverse of [Addr.Uint64]. Bits above 48 are ignored.
func FromUint64(v uint64) Addr {
	var a Addr
	for i := Len - 1; i >= 0; i-- {
		a.b[i] = byte(v)
		v >>= 8
	}
	return a
}

// FromNapSap combines the Windows NAP (upper 16 bits) and SAP (lower 32 bits) parts.
func FromNapSap(nap uint16, sap uint32) Addr {
	return FromUint64(uint64(nap)<<32 | uint64(sap))
}

// MarshalText implements encoding.TextMarshaler.
func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Addr) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Set updates a from a command-line argument.
func (a *Addr) Set(value string) error {
	return a.UnmarshalText([]byte(value))
}
