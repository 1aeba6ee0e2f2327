package isotp

import (
	"github.com/oskay-diag/linkuds"
	"github.com/oskay-diag/linkuds/pkg/frame"
)

// FrameLength is the fixed size of a classic CAN data frame in bytes; every
// argument DidRead accepts is exactly this long. Frames in a WriteFrames
// action are not padded: they carry only their PCI and data bytes, and
// callers pad them to this length for the wire.
const FrameLength = 8

// Behavior selects how a Transceiver reacts to a protocol violation.
type Behavior int

const (
	// Strict raises the violation to the caller and leaves state untouched.
	Strict Behavior = iota
	// Defensive resets and retries once, swallowing the offending frame if
	// the retry also fails.
	Defensive
)

// state is the transceiver's position in its send/receive lifecycle.
type state int

const (
	idle state = iota
	sending
	receiving
)

// ActionKind tags which variant of Action is populated.
type ActionKind int

const (
	// Process reports a complete inbound payload is ready in Action.Payload.
	Process ActionKind = iota
	// WriteFrames reports frames the caller must transmit.
	WriteFrames
	// WaitForMore reports nothing further to do right now.
	WaitForMore
)

// Action is the tagged result of every Transceiver operation. Exactly one
// of its fields is meaningful, selected by Kind; callers should switch on
// Kind rather than infer it from which fields are non-zero.
type Action struct {
	Kind ActionKind

	// Payload holds the reassembled message for a Process action.
	Payload []byte

	// Frames holds the frame(s) to transmit for a WriteFrames action.
	Frames [][]byte
	// SeparationTimeMs is the pacing delay between frames in Frames, in the
	// same encoding the peer requested (ISO 15765-2 STmin milliseconds).
	SeparationTimeMs int
	// IsLastBatch is true iff no further frames will be emitted by this
	// logical send.
	IsLastBatch bool
}

func processAction(payload []byte) Action {
	return Action{Kind: Process, Payload: payload}
}

func waitAction() Action {
	return Action{Kind: WaitForMore}
}

func writeAction(frames [][]byte, separationTimeMs int, isLastBatch bool) Action {
	return Action{Kind: WriteFrames, Frames: frames, SeparationTimeMs: separationTimeMs, IsLastBatch: isLastBatch}
}

// Transceiver is a single logical ISO-TP endpoint. It is not safe for
// concurrent use: callers must not invoke Write and DidRead concurrently on
// the same instance.
type Transceiver struct {
	behavior       Behavior
	blockSize      byte
	separationTime byte

	state state

	// send side
	outbound []byte
	sendSeq  byte

	// receive side
	inbound       []byte
	remaining     int
	fcCounter     byte
	expectedSeq   byte
}

// New builds a Transceiver. blockSize and separationTime are this
// endpoint's local flow-control defaults, advertised to peers sending to
// it; zero for both means "send all consecutive frames without pause, no
// block ACKs".
func New(behavior Behavior, blockSize, separationTime byte) *Transceiver {
	return &Transceiver{behavior: behavior, blockSize: blockSize, separationTime: separationTime}
}

// Reset returns the transceiver to idle and clears both directions' buffers.
func (t *Transceiver) Reset() {
	t.state = idle
	t.outbound = nil
	t.sendSeq = 0
	t.inbound = nil
	t.remaining = 0
	t.fcCounter = 0
	t.expectedSeq = 0
}

// State reports "idle", "sending", or "receiving" for diagnostics.
func (t *Transceiver) State() string {
	switch t.state {
	case sending:
		return "sending"
	case receiving:
		return "receiving"
	default:
		return "idle"
	}
}

// Write initiates a send of payload, returning the frame(s) to transmit.
func (t *Transceiver) Write(payload []byte) (Action, error) {
	if len(payload) > MaximumPayload {
		return Action{}, linkuds.ErrMessageTooBig
	}
	if len(payload) <= 7 {
		sf, err := frame.EncodeSingle(payload)
		if err != nil {
			return Action{}, &linkuds.EncoderError{Reason: err.Error()}
		}
		t.state = idle
		return writeAction([][]byte{sf}, 0, true), nil
	}

	first, err := frame.EncodeFirst(len(payload), payload[:6])
	if err != nil {
		return Action{}, &linkuds.EncoderError{Reason: err.Error()}
	}

	t.outbound = append([]byte(nil), payload[6:]...)
	t.sendSeq = 1
	t.state = sending

	return writeAction([][]byte{first}, 0, false), nil
}

// DidRead ingests one FrameLength-byte received frame and returns the
// resulting Action.
func (t *Transceiver) DidRead(bytes []byte) (Action, error) {
	if len(bytes) != FrameLength {
		return Action{}, linkuds.Unrecoverable(&linkuds.ProtocolViolationError{Reason: "frame is not 8 bytes"})
	}

	switch t.state {
	case sending:
		return t.continueSend(bytes)
	default:
		return t.receive(bytes, false)
	}
}

// continueSend handles an inbound frame while a send is outstanding: it
// must be a Flow Control frame.
func (t *Transceiver) continueSend(bytes []byte) (Action, error) {
	if frame.Type(bytes[0]>>4) != frame.TypeFlowControl {
		return t.violateOrRetry(bytes, false, "expected a flow control frame while sending")
	}
	fc, err := frame.DecodeFlowControl(bytes)
	if err != nil {
		return t.violateOrRetry(bytes, false, "unknown flow control status")
	}

	switch fc.Status {
	case frame.Wait:
		return waitAction(), nil
	case frame.Overflow:
		t.Reset()
		return Action{}, &linkuds.ProtocolViolationError{Reason: "peer reported flow control overflow"}
	case frame.ClearToSend:
	}

	limit := int(fc.BlockSize)
	unlimited := fc.BlockSize == 0

	var frames [][]byte
	for unlimited || len(frames) < limit {
		if len(t.outbound) == 0 {
			break
		}
		n := 7
		if n > len(t.outbound) {
			n = len(t.outbound)
		}
		chunk := t.outbound[:n]
		frames = append(frames, frame.EncodeConsecutive(t.sendSeq, chunk))

		t.outbound = t.outbound[n:]
		t.sendSeq = frame.NextSequenceNumber(t.sendSeq)
	}

	isLast := len(t.outbound) == 0
	if isLast {
		t.state = idle
	}
	return writeAction(frames, int(fc.SeparationTime), isLast), nil
}

// receive handles an inbound frame while idle or mid-reassembly. retry
// indicates this call is defensive mode's single re-dispatch of a frame
// re-interpreted as the start of a new message.
func (t *Transceiver) receive(bytes []byte, retry bool) (Action, error) {
	pciType := bytes[0] >> 4

	switch pciType {
	case 0x0: // single frame
		if t.state != idle {
			return t.violateOrRetry(bytes, retry, "single frame received outside idle state")
		}
		dl := bytes[0] & 0x0F
		if dl < 1 || dl > 7 {
			return t.violateOrRetry(bytes, retry, "single frame length out of range")
		}
		sf, err := frame.DecodeSingle(bytes)
		if err != nil {
			return t.violateOrRetry(bytes, retry, "single frame length out of range")
		}
		return processAction(sf.Data), nil

	case 0x1: // first frame
		if t.state != idle {
			return t.violateOrRetry(bytes, retry, "first frame received outside idle state")
		}
		ff, err := frame.DecodeFirst(bytes)
		if err != nil || ff.Length <= 7 {
			return t.violateOrRetry(bytes, retry, "first frame length too small")
		}
		t.inbound = ff.Data
		t.remaining = ff.Length - 6
		t.fcCounter = t.blockSize
		t.expectedSeq = 1
		t.state = receiving
		fc := frame.EncodeFlowControl(frame.NewClearToSend(t.blockSize, t.separationTime))
		return writeAction([][]byte{fc}, 0, false), nil

	case 0x2: // consecutive frame
		if t.state != receiving {
			return t.violateOrRetry(bytes, retry, "consecutive frame received outside receiving state")
		}
		cf, err := frame.DecodeConsecutive(bytes)
		if err != nil {
			return t.violateOrRetry(bytes, retry, "unexpected consecutive frame sequence number")
		}
		if cf.SequenceNumber != t.expectedSeq {
			return t.violateOrRetry(bytes, retry, "unexpected consecutive frame sequence number")
		}
		n := 7
		if n > t.remaining {
			n = t.remaining
		}
		t.inbound = append(t.inbound, cf.Data[:n]...)
		t.remaining -= 7
		t.expectedSeq = frame.NextSequenceNumber(t.expectedSeq)

		if t.remaining <= 0 {
			payload := t.inbound
			t.Reset()
			return processAction(payload), nil
		}

		if t.blockSize == 0 {
			return waitAction(), nil
		}
		t.fcCounter--
		if t.fcCounter == 0 {
			t.fcCounter = t.blockSize
			fc := frame.EncodeFlowControl(frame.NewClearToSend(t.blockSize, t.separationTime))
			return writeAction([][]byte{fc}, 0, false), nil
		}
		return waitAction(), nil

	default: // flow control (or reserved) while idle/receiving
		return t.violateOrRetry(bytes, retry, "flow control frame received outside a send")
	}
}

// violateOrRetry implements the strict/defensive split of §4.C: strict mode
// raises the violation untouched; defensive mode resets and retries once by
// re-dispatching the same frame as the start of a new message, swallowing
// it (waitForMore) if that also fails.
func (t *Transceiver) violateOrRetry(bytes []byte, retry bool, reason string) (Action, error) {
	if t.behavior == Strict {
		return Action{}, &linkuds.ProtocolViolationError{Reason: reason}
	}
	if retry {
		t.Reset()
		return waitAction(), nil
	}
	t.Reset()
	return t.receive(bytes, true)
}
