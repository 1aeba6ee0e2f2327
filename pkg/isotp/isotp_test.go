package isotp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/oskay-diag/linkuds"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for length := 1; length <= 300; length++ {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = byte(i)
		}
		wire, err := Encode(payload)
		if err != nil {
			t.Fatalf("Encode(len=%d): %v", length, err)
		}
		got, err := Decode(wire)
		if err != nil {
			t.Fatalf("Decode(len=%d): %v", length, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch at length %d", length)
		}
	}
}

func TestEncodeSingleFrameShape(t *testing.T) {
	payload := []byte{0x09, 0x02}
	wire, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(wire) != len(payload)+1 || wire[0] != byte(len(payload)) {
		t.Fatalf("wire = %x, want single frame of length %d", wire, len(payload)+1)
	}
}

func TestEncodeRejectsEmptyAndOversize(t *testing.T) {
	if _, err := Encode(nil); !errors.Is(err, linkuds.ErrMessageTooSmall) {
		t.Errorf("Encode(nil) error = %v, want ErrMessageTooSmall", err)
	}
	big := make([]byte, MaximumPayload+1)
	if _, err := Encode(big); !errors.Is(err, linkuds.ErrMessageTooBig) {
		t.Errorf("Encode(big) error = %v, want ErrMessageTooBig", err)
	}
}

func TestScenarioSingleFrameReceive(t *testing.T) {
	tr := New(Strict, 0x40, 1)
	action, err := tr.DidRead([]byte{0x02, 0x09, 0x02, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	if err != nil {
		t.Fatalf("DidRead: %v", err)
	}
	if action.Kind != Process || !bytes.Equal(action.Payload, []byte{0x09, 0x02}) {
		t.Fatalf("action = %+v, want process([0x09,0x02])", action)
	}
	if tr.State() != "idle" {
		t.Errorf("state = %s, want idle", tr.State())
	}
}

func TestScenarioMultiFrameReceive(t *testing.T) {
	tr := New(Strict, 0x40, 1)

	action, err := tr.DidRead([]byte{0x10, 0x08, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	if err != nil {
		t.Fatalf("DidRead(FF): %v", err)
	}
	if action.Kind != WriteFrames || len(action.Frames) != 1 {
		t.Fatalf("action = %+v, want a single flow control frame", action)
	}
	if !bytes.Equal(action.Frames[0], []byte{0x30, 0x40, 0x01}) {
		t.Errorf("FC frame = %x, want 30 40 01", action.Frames[0])
	}
	if tr.State() != "receiving" {
		t.Errorf("state = %s, want receiving", tr.State())
	}

	action, err = tr.DidRead([]byte{0x21, 0x77, 0x88, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	if err != nil {
		t.Fatalf("DidRead(CF): %v", err)
	}
	want := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	if action.Kind != Process || !bytes.Equal(action.Payload, want) {
		t.Fatalf("action = %+v, want process(%x)", action, want)
	}
	if tr.State() != "idle" {
		t.Errorf("state = %s, want idle", tr.State())
	}
}

func TestScenarioSingleFrameSend(t *testing.T) {
	tr := New(Strict, 0, 0)
	action, err := tr.Write([]byte{0x09, 0x02})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if action.Kind != WriteFrames || !action.IsLastBatch {
		t.Fatalf("action = %+v, want a final write", action)
	}
	if !bytes.Equal(action.Frames[0], []byte{0x02, 0x09, 0x02}) {
		t.Errorf("frame = %x, want 02 09 02", action.Frames[0])
	}
	if tr.State() != "idle" {
		t.Errorf("state = %s, want idle", tr.State())
	}
}

func TestScenarioMultiFrameSend(t *testing.T) {
	tr := New(Strict, 0, 0)
	payload := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}

	action, err := tr.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	wantFirst := []byte{0x10, 0x08, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	if action.Kind != WriteFrames || action.IsLastBatch || !bytes.Equal(action.Frames[0], wantFirst) {
		t.Fatalf("action = %+v, want first frame %x, not last", action, wantFirst)
	}
	if tr.State() != "sending" {
		t.Errorf("state = %s, want sending", tr.State())
	}

	action, err = tr.DidRead([]byte{0x30, 0x00, 0x01, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	if err != nil {
		t.Fatalf("DidRead(FC): %v", err)
	}
	if action.Kind != WriteFrames || !action.IsLastBatch || action.SeparationTimeMs != 1 {
		t.Fatalf("action = %+v, want last batch with separation 1", action)
	}
	if !bytes.Equal(action.Frames[0], []byte{0x21, 0x77, 0x88}) {
		t.Errorf("frame = %x, want 21 77 88", action.Frames[0])
	}
	if tr.State() != "idle" {
		t.Errorf("state = %s, want idle", tr.State())
	}
}

func TestSequenceWrapNeverEmits0x30(t *testing.T) {
	tr := New(Strict, 0, 0)
	payload := make([]byte, 6+7*20) // forces more than 15 consecutive frames
	if _, err := tr.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	action, err := tr.DidRead([]byte{0x30, 0x00, 0x00, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	if err != nil {
		t.Fatalf("DidRead(FC): %v", err)
	}
	seen := map[byte]bool{}
	for _, f := range action.Frames {
		if f[0] == 0x30 {
			t.Fatalf("consecutive frame PCI collided with flow control byte 0x30: %x", f)
		}
		seen[f[0]] = true
	}
	if !seen[0x2F] || !seen[0x20] {
		t.Errorf("expected wraparound through 0x2F -> 0x20, saw PCIs %v", seen)
	}
}

func TestMaxLengthBoundary(t *testing.T) {
	tr := New(Strict, 0, 0)
	payload := make([]byte, MaximumPayload)
	action, err := tr.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(action.Frames) != 1 {
		t.Fatalf("first Write should emit exactly the first frame, got %d", len(action.Frames))
	}
	action, err = tr.DidRead([]byte{0x30, 0x00, 0x00, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	if err != nil {
		t.Fatalf("DidRead(FC): %v", err)
	}
	// 4095 total - 6 in FF = 4089 remaining; ceil(4089/7) = 585 consecutive frames.
	if len(action.Frames) != 585 {
		t.Fatalf("got %d consecutive frames, want 585", len(action.Frames))
	}
	last := action.Frames[len(action.Frames)-1]
	if len(last) != 2 {
		t.Errorf("last CF carries %d payload byte(s), want 1", len(last)-1)
	}
	if !action.IsLastBatch {
		t.Error("expected last batch to close the send")
	}
}

func TestStrictViolationLeavesStateUntouched(t *testing.T) {
	tr := New(Strict, 0x40, 0)
	_, err := tr.DidRead([]byte{0x21, 0, 0, 0, 0, 0, 0, 0})
	var pv *linkuds.ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("error = %v, want *ProtocolViolationError", err)
	}
	if tr.State() != "idle" {
		t.Errorf("state = %s, want idle (untouched)", tr.State())
	}
}

func TestDefensiveRecoveryFromOutOfOrderConsecutiveFrame(t *testing.T) {
	tr := New(Defensive, 0x40, 0)

	if _, err := tr.DidRead([]byte{0x10, 0x14, 1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("DidRead(FF): %v", err)
	}
	if _, err := tr.DidRead([]byte{0x21, 7, 8, 9, 10, 11, 12, 13}); err != nil {
		t.Fatalf("DidRead(CF sn=1): %v", err)
	}

	action, err := tr.DidRead([]byte{0x27, 20, 21, 22, 23, 24, 25, 26})
	if err != nil {
		t.Fatalf("DidRead(out-of-order CF): %v", err)
	}
	if action.Kind != WaitForMore {
		t.Fatalf("action = %+v, want waitForMore", action)
	}
	if tr.State() != "idle" {
		t.Fatalf("state = %s, want idle after recovery", tr.State())
	}

	action, err = tr.DidRead([]byte{0x02, 0x09, 0x02, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	if err != nil {
		t.Fatalf("DidRead(subsequent SF): %v", err)
	}
	if action.Kind != Process || !bytes.Equal(action.Payload, []byte{0x09, 0x02}) {
		t.Fatalf("subsequent SF not processed normally: %+v", action)
	}
}

// padFrame pads an emitted (unpadded) frame with 0xAA to FrameLength, the
// way it travels on a classic CAN bus before the peer's DidRead sees it.
func padFrame(f []byte) []byte {
	out := bytes.Repeat([]byte{0xAA}, FrameLength)
	copy(out, f)
	return out
}

func TestTransceiverRoundTripBetweenTwoEndpoints(t *testing.T) {
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	a := New(Strict, 0, 0)
	b := New(Strict, 0x08, 0)

	action, err := a.Write(payload)
	if err != nil {
		t.Fatalf("a.Write: %v", err)
	}

	var processed []byte
	for {
		var next Action
		for _, f := range action.Frames {
			next, err = b.DidRead(padFrame(f))
			if err != nil {
				t.Fatalf("b.DidRead: %v", err)
			}
			if next.Kind == Process {
				processed = next.Payload
			}
		}
		if processed != nil {
			break
		}
		if next.Kind != WriteFrames {
			t.Fatalf("expected b to request more frames via flow control, got %+v", next)
		}
		fc := next.Frames[0]
		action, err = a.DidRead(padFrame(fc))
		if err != nil {
			t.Fatalf("a.DidRead(fc): %v", err)
		}
	}

	if !bytes.Equal(processed, payload) {
		t.Fatalf("reassembled payload mismatch")
	}
	if a.State() != "idle" || b.State() != "idle" {
		t.Fatalf("endpoints not idle after exchange: a=%s b=%s", a.State(), b.State())
	}
}

func TestDecodeFlowControlEcho(t *testing.T) {
	got, err := Decode([]byte{0x30, 0x08, 0x00})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, []byte{0x30, 0x08, 0x00}) {
		t.Errorf("Decode(fc echo) = %x, want unchanged", got)
	}
}
