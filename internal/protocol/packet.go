package protocol

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Media datagram layout: a fixed 32-byte name prefix (UTF-8, zero-padded on
// the right) followed by raw 16-bit little-endian PCM at 16 kHz mono. The
// prefix length is also the upper bound on participant name length.
const (
	MaxNameBytes = 32
	MaxDatagram  = 4096
)

// ParseSenderName reads the name prefix of a media datagram. Trailing zero
// padding is stripped and invalid UTF-8 sequences are replaced. ok is false
// when the datagram is shorter than the prefix or the name decodes empty;
// such datagrams must be dropped without side effects.
func ParseSenderName(datagram []byte) (name string, payload []byte, ok bool) {
	if len(datagram) < MaxNameBytes {
		return "", nil, false
	}
	raw := bytes.TrimRight(datagram[:MaxNameBytes], "\x00")
	name = strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	if name == "" {
		return "", nil, false
	}
	return name, datagram[MaxNameBytes:], true
}

// BuildDatagram prepends the zero-padded name prefix to a PCM payload. The
// name must satisfy ValidateName.
func BuildDatagram(name string, pcm []byte) []byte {
	b := make([]byte, MaxNameBytes+len(pcm))
	copy(b, name)
	copy(b[MaxNameBytes:], pcm)
	return b
}
