package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrMalformedEvent marks a single undecodable frame. Readers drop the
// frame and keep going.
var ErrMalformedEvent = errors.New("malformed event")

// MaxFrameBytes bounds the data accumulated for one frame.
const MaxFrameBytes = 1 << 20

// FrameKind distinguishes data frames from keepalives.
type FrameKind int

const (
	FrameKeepalive FrameKind = iota
	FrameEvent
)

// Frame is one decoded unit of the text stream.
type Frame struct {
	Kind     FrameKind
	Envelope Envelope
	Comment  string
}

type wireEnvelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ts    int64           `json:"ts,omitempty"`
}

// Marshal renders the JSON body of env: {"event":...,"data":...,"ts":...}.
func Marshal(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", env.Event, err)
	}
	return json.Marshal(wireEnvelope{Event: env.Event, Data: data, Ts: env.Ts.UnixMilli()})
}

// Encode renders env as a "data: <json>\n\n" frame.
func Encode(env Envelope) ([]byte, error) {
	body, err := Marshal(env)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(body)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, body...)
	buf = append(buf, '\n', '\n')
	return buf, nil
}

// EncodeKeepalive renders a comment frame, e.g. ": heartbeat\n\n".
func EncodeKeepalive(comment string) []byte {
	return []byte(": " + comment + "\n\n")
}

// Unmarshal parses a JSON body into an envelope. Scope is not carried on
// the wire and is left empty.
func Unmarshal(body []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(body, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	p, err := DecodePayload(w.Event, w.Data)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{Event: w.Event, Data: p}
	if w.Ts > 0 {
		env.Ts = time.UnixMilli(w.Ts).UTC()
	}
	return env, nil
}

// Decoder reads frames from a text event stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next frame. A comment line yields a keepalive frame.
// An error wrapping ErrMalformedEvent means one frame was dropped and Next
// may be called again; any other error ends the stream.
func (d *Decoder) Next() (Frame, error) {
	var data bytes.Buffer
	var pending, oversized bool
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if err != nil {
				return Frame{}, err
			}
			if !pending {
				continue
			}
			if oversized {
				return Frame{}, fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformedEvent, MaxFrameBytes)
			}
			env, derr := Unmarshal(data.Bytes())
			if derr != nil {
				return Frame{}, derr
			}
			return Frame{Kind: FrameEvent, Envelope: env}, nil
		case strings.HasPrefix(line, ":"):
			if !pending {
				return Frame{Kind: FrameKeepalive, Comment: strings.TrimSpace(line[1:])}, nil
			}
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if pending {
				data.WriteByte('\n')
			}
			pending = true
			if data.Len()+len(value) > MaxFrameBytes {
				oversized = true
				continue
			}
			data.WriteString(value)
		default:
			// event:, id:, retry: and unknown fields carry nothing we route on.
		}

		if err != nil {
			return Frame{}, err
		}
	}
}
