package linkuds

import (
	"fmt"
	"strings"
)

// Message is a UDS request or response. Direction is interpreted by context:
// for an outbound message, ID is the destination and Reply is the expected
// replier; for an inbound message, ID is the source and Reply may hold the
// correlator the caller used to filter it. Bytes is empty only for sentinel
// constructions (e.g. a probe with no payload); real requests/responses carry
// at least one byte.
type Message struct {
	ID    Header
	Reply Header
	Bytes []byte
}

// NewMessage builds a Message and copies data so later mutation of the
// caller's slice cannot corrupt the message, matching gocan.NewFrame's
// defensive copy.
func NewMessage(id, reply Header, data []byte) *Message {
	b := make([]byte, len(data))
	copy(b, data)
	return &Message{ID: id, Reply: reply, Bytes: b}
}

// WithBytes returns a sibling message with the same ID/Reply and new payload.
func (m *Message) WithBytes(data []byte) *Message {
	return NewMessage(m.ID, m.Reply, data)
}

// WithReply returns a sibling message with the same ID/Bytes and a new
// expected replier.
func (m *Message) WithReply(reply Header) *Message {
	return NewMessage(m.ID, reply, m.Bytes)
}

// SID returns the service identifier, the first payload byte, or 0 if empty.
func (m *Message) SID() byte {
	if len(m.Bytes) == 0 {
		return 0
	}
	return m.Bytes[0]
}

// IsNegativeResponse reports whether Bytes is the standard 3-byte negative
// response form [0x7F, requestSid, nrc].
func (m *Message) IsNegativeResponse() (nrc NegativeResponseCode, sid byte, ok bool) {
	if len(m.Bytes) != 3 || m.Bytes[0] != 0x7F {
		return 0, 0, false
	}
	return NegativeResponseCode(m.Bytes[2]), m.Bytes[1], true
}

func (m *Message) String() string {
	var hex strings.Builder
	for i, b := range m.Bytes {
		if i > 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02X", b)
	}
	return fmt.Sprintf("%s -> %s || %s", m.ID, m.Reply, hex.String())
}
