package checker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// protocolVersion sent in the handshake. Servers answer status requests
// for any version, so an old one is fine.
const protocolVersion = 47

// maxPacket caps what we are willing to read from a status response
const maxPacket = 1 << 21

// ModernProber speaks the Server List Ping protocol (1.7+)
type ModernProber struct {
	SRV      bool
	Resolver *net.Resolver
}

type slpResponse struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description json.RawMessage `json:"description"`
}

func (p *ModernProber) Probe(ctx context.Context, host string, port int) (Status, error) {
	conn, done, err := dial(ctx, p.Resolver, p.SRV, host, port)
	if err != nil {
		return Status{}, fmt.Errorf("modern: %w", err)
	}
	defer done()

	st, err := modernExchange(conn, host, port)
	if err != nil {
		return Status{}, fmt.Errorf("modern: %w", err)
	}
	return st, nil
}

func modernExchange(conn net.Conn, host string, port int) (Status, error) {
	// handshake (next state 1 = status) followed by status request
	var hs []byte
	hs = appendVarInt(hs, 0x00)
	hs = appendVarInt(hs, protocolVersion)
	hs = appendString(hs, host)
	hs = binary.BigEndian.AppendUint16(hs, uint16(port))
	hs = appendVarInt(hs, 1)

	var out []byte
	out = appendPacket(out, hs)
	out = appendPacket(out, []byte{0x00})
	if _, err := conn.Write(out); err != nil {
		return Status{}, err
	}

	r := bufio.NewReader(conn)
	payload, err := readPacket(r, 0x00)
	if err != nil {
		return Status{}, err
	}
	body, err := readString(bytes.NewReader(payload))
	if err != nil {
		return Status{}, err
	}

	var resp slpResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return Status{}, malformed("status json: %v", err)
	}

	st := Status{
		PlayerCount: max(resp.Players.Online, 0),
		MaxPlayers:  max(resp.Players.Max, 0),
		Version:     resp.Version.Name,
		Motd:        cleanMotd(flattenDescription(resp.Description)),
	}

	// ping/pong for round-trip latency; a server that answers status but
	// not ping is still online, just without latency
	if ms, err := pingPong(conn, r); err == nil {
		st.Latency = &ms
	}
	return st, nil
}

func pingPong(conn net.Conn, r *bufio.Reader) (int, error) {
	token := time.Now().UnixMilli()
	ping := appendVarInt(nil, 0x01)
	ping = binary.BigEndian.AppendUint64(ping, uint64(token))

	start := time.Now()
	if _, err := conn.Write(appendPacket(nil, ping)); err != nil {
		return 0, err
	}
	payload, err := readPacket(r, 0x01)
	if err != nil {
		return 0, err
	}
	if len(payload) != 8 || int64(binary.BigEndian.Uint64(payload)) != token {
		return 0, malformed("pong payload mismatch")
	}
	return int(time.Since(start).Milliseconds()), nil
}

func appendVarInt(b []byte, v int32) []byte {
	return binary.AppendUvarint(b, uint64(uint32(v)))
}

func appendString(b []byte, s string) []byte {
	b = appendVarInt(b, int32(len(s)))
	return append(b, s...)
}

func appendPacket(b, payload []byte) []byte {
	b = appendVarInt(b, int32(len(payload)))
	return append(b, payload...)
}

func readVarInt(r io.ByteReader) (int32, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, malformed("varint too long")
	}
	return int32(uint32(v)), nil
}

// readPacket reads one length-prefixed packet and checks its id
func readPacket(r *bufio.Reader, wantID int32) ([]byte, error) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > maxPacket {
		return nil, malformed("packet length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	br := bytes.NewReader(buf)
	id, err := readVarInt(br)
	if err != nil {
		return nil, err
	}
	if id != wantID {
		return nil, malformed("packet id 0x%02x, want 0x%02x", id, wantID)
	}
	return buf[len(buf)-br.Len():], nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > r.Len() {
		return "", malformed("string length %d", n)
	}
	buf := make([]byte, n)
	_, _ = r.Read(buf)
	return string(buf), nil
}

// flattenDescription handles both the plain-string and chat-component forms
func flattenDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var comp struct {
		Text  string            `json:"text"`
		Extra []json.RawMessage `json:"extra"`
	}
	if err := json.Unmarshal(raw, &comp); err != nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(comp.Text)
	for _, e := range comp.Extra {
		sb.WriteString(flattenDescription(e))
	}
	return sb.String()
}

// cleanMotd strips § formatting codes
func cleanMotd(s string) string {
	if !strings.ContainsRune(s, '§') {
		return strings.TrimSpace(s)
	}
	var sb strings.Builder
	skip := false
	for _, r := range s {
		if skip {
			skip = false
			continue
		}
		if r == '§' {
			skip = true
			continue
		}
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}
