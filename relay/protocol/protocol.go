package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
)

// Op is the numeric opcode carried in the "op" field of a control message.
type Op int

const (
	// OpUnknown marks a JSON object without a usable integer "op" field.
	OpUnknown Op = -1

	OpHello      Op = 0
	OpIdentify   Op = 1
	OpIdentified Op = 2
)

func (o Op) String() string {
	switch o {
	case OpHello:
		return "hello"
	case OpIdentify:
		return "identify"
	case OpIdentified:
		return "identified"
	case OpUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Packet is one JSON object found in a producer chunk.
type Packet struct {
	Op  Op
	Raw []byte
}

// Scan returns every syntactically valid JSON object in chunk, in order of
// appearance. Malformed fragments are skipped: scanning resumes at the next
// '{' after the fragment. Top-level values that are not objects are ignored.
// The chunk itself is never modified.
func Scan(chunk []byte) []Packet {
	var packets []Packet

	off := 0
	for off < len(chunk) {
		dec := json.NewDecoder(bytes.NewReader(chunk[off:]))
		for {
			start := off + skipSpace(chunk[off:], int(dec.InputOffset()))
			if start >= len(chunk) {
				return packets
			}

			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				next := bytes.IndexByte(chunk[start+1:], '{')
				if next < 0 {
					return packets
				}
				off = start + 1 + next
				break
			}

			if len(raw) > 0 && raw[0] == '{' {
				packets = append(packets, Packet{Op: opOf(raw), Raw: raw})
			}
		}
	}

	return packets
}

// Opcode classifies a single message, such as a subscriber text frame.
// ok is false when msg is not a JSON object with an integer "op" field.
func Opcode(msg []byte) (Op, bool) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return OpUnknown, false
	}
	op := opOf(trimmed)
	return op, op != OpUnknown
}

// Welcome is the announcement written to a producer right after it connects.
func Welcome(roomID string) []byte {
	msg := struct {
		Internal string `json:"internal"`
		Room     string `json:"room"`
	}{
		Internal: "welcome",
		Room:     roomID,
	}

	data, _ := json.Marshal(msg)
	return data
}

func opOf(obj []byte) Op {
	v, err := jsonparser.GetInt(obj, "op")
	if err != nil || v < 0 {
		return OpUnknown
	}
	return Op(v)
}

// skipSpace returns the index of the first non-whitespace byte of b at or
// after i.
func skipSpace(b []byte, i int) int {
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			return i
		}
	}
	return i
}
