package stream

import "strings"

// Event names carried on the order stream.
const (
	// EventOrdersUpdate carries a JSON order snapshot. Frames without an
	// event field default to this type.
	EventOrdersUpdate = "pedidos-update"
	// EventPing is a heartbeat; it only feeds the idle watchdog.
	EventPing = "ping"
	// EventError reports a server-side failure; a credential-marked one
	// hard-stops the channel.
	EventError = "error"
)

// frame is one parsed logical event off the wire.
type frame struct {
	Type string
	Data []byte
}

// frameParser accumulates field lines until the blank-line terminator.
// The framing rule is line oriented: an event consists of an event: field
// and a data: field; unrecognized field lines are ignored; the event is
// dispatched only when a data field was seen and a blank line arrives.
type frameParser struct {
	eventType string
	data      []string
	hasData   bool
}

// feed consumes one line and returns a completed frame when the blank-line
// terminator closes a frame that carried data.
func (p *frameParser) feed(line string) (frame, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		if !p.hasData {
			p.reset()
			return frame{}, false
		}
		f := frame{Type: p.eventType, Data: []byte(strings.Join(p.data, "\n"))}
		if f.Type == "" {
			f.Type = EventOrdersUpdate
		}
		p.reset()
		return f, true
	}
	switch {
	case strings.HasPrefix(line, "event:"):
		p.eventType = strings.TrimSpace(line[len("event:"):])
	case strings.HasPrefix(line, "data:"):
		v := line[len("data:"):]
		v = strings.TrimPrefix(v, " ")
		p.data = append(p.data, v)
		p.hasData = true
	default:
		// Comments and unknown fields are dropped without terminating
		// the frame.
	}
	return frame{}, false
}

func (p *frameParser) reset() {
	p.eventType = ""
	p.data = nil
	p.hasData = false
}

// credentialMarkers are the substrings a stream error event may use to name
// a rejected credential. Matching any of them classifies the failure as
// terminal, mirroring 401/403 on the poll side.
var credentialMarkers = []string{"token", "credencial", "expired", "unauthorized"}

// isCredentialError reports whether an error event names a bad credential.
func isCredentialError(data []byte) bool {
	s := strings.ToLower(string(data))
	for _, m := range credentialMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
