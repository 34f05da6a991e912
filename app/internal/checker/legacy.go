package checker

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"unicode/utf16"
)

// LegacyProber speaks the 0xFE 0x01 ping understood by pre-1.7 servers
// (and most modern ones). It cannot measure latency.
type LegacyProber struct {
	SRV      bool
	Resolver *net.Resolver
}

func (p *LegacyProber) Probe(ctx context.Context, host string, port int) (Status, error) {
	conn, done, err := dial(ctx, p.Resolver, p.SRV, host, port)
	if err != nil {
		return Status{}, fmt.Errorf("legacy: %w", err)
	}
	defer done()

	if _, err := conn.Write([]byte{0xFE, 0x01}); err != nil {
		return Status{}, fmt.Errorf("legacy: %w", err)
	}
	st, err := readLegacy(bufio.NewReader(conn))
	if err != nil {
		return Status{}, fmt.Errorf("legacy: %w", err)
	}
	return st, nil
}

func readLegacy(r io.Reader) (Status, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Status{}, err
	}
	if hdr[0] != 0xFF {
		return Status{}, malformed("kick packet id 0x%02x", hdr[0])
	}
	n := int(binary.BigEndian.Uint16(hdr[1:]))
	raw := make([]byte, n*2)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Status{}, err
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(raw[i*2:])
	}
	return parseLegacy(string(utf16.Decode(units)))
}

// parseLegacy understands both kick-string layouts:
//
//	§1\x00<protocol>\x00<version>\x00<motd>\x00<online>\x00<max>   (1.4+)
//	<motd>§<online>§<max>                                         (beta 1.8 - 1.3)
func parseLegacy(s string) (Status, error) {
	if strings.HasPrefix(s, "§1\x00") {
		f := strings.Split(s, "\x00")
		if len(f) < 6 {
			return Status{}, malformed("legacy fields %d", len(f))
		}
		online, err1 := strconv.Atoi(f[4])
		maxP, err2 := strconv.Atoi(f[5])
		if err1 != nil || err2 != nil {
			return Status{}, malformed("legacy player counts %q/%q", f[4], f[5])
		}
		version := f[2]
		if version == "" {
			version = "Unknown"
		}
		return Status{PlayerCount: max(online, 0), MaxPlayers: max(maxP, 0), Version: version, Motd: cleanMotd(f[3])}, nil
	}

	f := strings.Split(s, "§")
	if len(f) < 3 {
		return Status{}, malformed("legacy fields %d", len(f))
	}
	online, err1 := strconv.Atoi(f[len(f)-2])
	maxP, err2 := strconv.Atoi(f[len(f)-1])
	if err1 != nil || err2 != nil {
		return Status{}, malformed("legacy player counts %q/%q", f[len(f)-2], f[len(f)-1])
	}
	return Status{
		PlayerCount: max(online, 0),
		MaxPlayers:  max(maxP, 0),
		Version:     "Unknown",
		Motd:        strings.Join(f[:len(f)-2], "§"),
	}, nil
}
