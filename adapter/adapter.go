// Package adapter drives an ELM327/STN-class ASCII command adapter through
// its discovery, configuration, and steady-state lifecycle: probing for the
// device, negotiating a bus protocol, installing the matching frame codec,
// and moving individual UDS request/response pairs across it. It is the
// glue between pkg/stream's byte-level command queue and pkg/command's wire
// vocabulary on one side, and pkg/isotp/pkg/buscodec's framing on the
// other.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"

	"github.com/oskay-diag/linkuds"
	"github.com/oskay-diag/linkuds/pkg/buscodec"
	"github.com/oskay-diag/linkuds/pkg/command"
	"github.com/oskay-diag/linkuds/pkg/isotp"
	"github.com/oskay-diag/linkuds/pkg/logx"
	"github.com/oskay-diag/linkuds/pkg/stream"
)

// Info summarizes what the init handshake learned about the physical
// adapter, independent of any bus protocol negotiated afterward.
type Info struct {
	Identify           string
	DeviceDescription  string
	ExtendedIdentify   string
	SupportsSTCommands bool
}

// Adapter is one physical ELM327/STN-class device, reachable over a
// pkg/stream.Queue.
type Adapter struct {
	// mu serializes an entire logical SendUDS call across all callers: a
	// software-segmented send issues several sequential queue.Send calls,
	// and applyHeaders' txHeader/rxHeader cache is only safe to mutate one
	// caller at a time.
	mu sync.Mutex

	queue  *stream.Queue
	logger logx.Logger
	status *observable

	behavior       isotp.Behavior
	blockSize      byte
	separationTime byte
	commandTimeout time.Duration
	candidates     []linkuds.BusProtocol

	info Info

	protocol linkuds.BusProtocol
	headerChars int

	// hasTxAutoSegmentation and hasRxAutoSegmentation are probed
	// independently: an adapter can chunk an outbound multi-frame request
	// in hardware without also reassembling a multi-frame response, or vice
	// versa.
	hasTxAutoSegmentation bool
	hasRxAutoSegmentation bool

	encoder buscodec.Encoder
	decoder buscodec.Decoder

	txHeader, rxHeader linkuds.Header

	detectedMessages []*linkuds.Message
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithLogger installs a logx.Logger; the default is logx.Default().
func WithLogger(l logx.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithBehavior selects strict or defensive ISO-TP violation handling for
// any software-driven multi-frame exchange this adapter performs.
func WithBehavior(b isotp.Behavior) Option {
	return func(a *Adapter) { a.behavior = b }
}

// WithFlowControl sets the block size and separation time this adapter
// advertises to a sender when it must reassemble a multi-frame message in
// software (the isotp.Transceiver that reassembleFrames and
// sendSoftwareSegmented drive).
func WithFlowControl(blockSize, separationTime byte) Option {
	return func(a *Adapter) { a.blockSize, a.separationTime = blockSize, separationTime }
}

// WithCommandTimeout overrides the default per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.commandTimeout = d }
}

// WithProtocolCandidates overrides the default probing order used during
// configuration. The first candidate that yields at least one ECU response
// wins.
func WithProtocolCandidates(protocols []linkuds.BusProtocol) Option {
	return func(a *Adapter) { a.candidates = protocols }
}

// defaultCandidates lists the protocols probed during configuration, most
// common first: CAN at 500 kbaud, then at 250 kbaud (11-bit before 29-bit
// at each speed), then the legacy buses.
var defaultCandidates = []linkuds.BusProtocol{
	linkuds.BusProtocolCAN11B500K,
	linkuds.BusProtocolCAN29B500K,
	linkuds.BusProtocolCAN11B250K,
	linkuds.BusProtocolCAN29B250K,
	linkuds.BusProtocolKWP2000Fast,
	linkuds.BusProtocolKWP2000_5Kbps,
	linkuds.BusProtocolISO9141_2,
	linkuds.BusProtocolJ1850PWM,
	linkuds.BusProtocolJ1850VPWM,
}

// New builds an Adapter over conn, starting in Created status. Nothing is
// written to the wire until Connect is called.
func New(conn stream.Stream, opts ...Option) *Adapter {
	a := &Adapter{
		status:         newObservable(Created),
		behavior:       isotp.Strict,
		blockSize:      0x20,
		commandTimeout: 2 * time.Second,
		candidates:     defaultCandidates,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logx.OrDefault(a.logger)
	a.queue = stream.New(conn, stream.WithLogger(a.logger))
	return a
}

// Status reports the adapter's current lifecycle position.
func (a *Adapter) Status() Status { return a.status.Get() }

// Watch returns a channel of subsequent status transitions; see
// observable.Watch.
func (a *Adapter) Watch() <-chan Status { return a.status.Watch() }

// Protocol reports the negotiated bus protocol; valid only once Status is
// Connected.
func (a *Adapter) Protocol() linkuds.BusProtocol { return a.protocol }

// DetectedMessages returns the ECU responses observed during protocol
// configuration's connectivity probe.
func (a *Adapter) DetectedMessages() []*linkuds.Message { return a.detectedMessages }

// MTU returns the largest UDS payload this adapter can carry: 4095 for any
// CAN protocol, since a software-segmented send driven by this package
// reaches the same ISO-TP ceiling a hardware-segmenting STN does; the
// installed encoder's own physical-frame limit otherwise, for the
// single-frame-only legacy buses. Returns the conservative single-frame
// limit if no protocol has been negotiated yet.
func (a *Adapter) MTU() int {
	if a.encoder == nil {
		return 7
	}
	if a.protocol.IsCAN() {
		return isotp.MaximumPayload
	}
	return a.encoder.MaximumFrameLength()
}

// Info returns what the init handshake learned about the physical device.
func (a *Adapter) Info() Info { return a.info }

// Close releases the underlying stream queue and marks the adapter Gone.
func (a *Adapter) Close() {
	a.queue.Shutdown()
	a.status.Set(Gone)
}

func (a *Adapter) send(cmd command.Command) (interface{}, error) {
	text, err := a.queue.Send(cmd.Wire+"\r", a.commandTimeout)
	if err != nil {
		return nil, err
	}
	return cmd.Parse(text)
}

// Connect runs the init and configuration sequences, blocking until the
// adapter reaches Connected, NotFound, or UnsupportedProtocol.
func (a *Adapter) Connect(ctx context.Context) error {
	a.status.Set(Searching)
	if err := a.runInit(ctx); err != nil {
		a.status.Set(NotFound)
		return err
	}

	a.status.Set(Configuring)
	if err := a.runConfig(ctx); err != nil {
		a.status.Set(UnsupportedProtocol)
		return err
	}

	a.status.Set(Connected)
	return nil
}

// runInit performs the physical-device handshake: flush the line, reset,
// apply the terminal's low-level formatting, and collect identify strings.
// Grounded on the teacher's ELM327.Init dummy-write-then-ATZ opening and
// its ATI/AT@1 identification reads, adapted from a baud-scan loop (which
// this package's stream.Stream abstraction has no hook for) to a fixed
// handshake over an already-open stream.
func (a *Adapter) runInit(ctx context.Context) error {
	// step 1: dummy character, to desynchronize any partial command the
	// adapter might have buffered from a previous session.
	a.queue.Send("\r", 200*time.Millisecond)

	// step 2: dummy plus reset.
	if _, err := a.send(command.Reset()); err != nil {
		return err
	}

	// step 3: low-level formatting the rest of this package depends on.
	// Adaptive timing is left at its power-on default here; postConfigureCAN
	// owns that setting once a bus protocol is known, since the desired
	// value differs between CAN (disabled, ATST FF instead) and the legacy
	// buses (adapter default).
	lowLevel := []command.Command{
		command.Echo(false),
		command.Linefeed(false),
		command.ShowHeaders(true),
		command.Spaces(false),
	}
	for _, cmd := range lowLevel {
		if _, err := a.send(cmd); err != nil {
			return err
		}
	}

	// step 4: identify.
	if result, err := a.send(command.Identify()); err == nil {
		a.info.Identify = result.(string)
	}

	// step 5: device description (AT@1). Optional: not every clone
	// implements it.
	if result, err := a.send(command.DeviceDescription()); err == nil {
		a.info.DeviceDescription = result.(string)
	}

	// step 6/7: STN extended identify (STIX), falling back to STI; either
	// succeeding marks ST-command support. Otherwise the UniCarScan identify
	// (AT#1) is sent; its reply is not recorded.
	if result, err := a.send(command.STIExtended()); err == nil {
		a.info.ExtendedIdentify = result.(string)
		a.info.SupportsSTCommands = true
	} else if result, err := a.send(command.STIdentify()); err == nil {
		a.info.ExtendedIdentify = result.(string)
		a.info.SupportsSTCommands = true
	} else {
		a.send(command.UniCarScanIdentify())
	}

	if a.info.Identify == "" && a.info.ExtendedIdentify == "" {
		return linkuds.ErrDisconnected
	}
	return nil
}

// runConfig negotiates a bus protocol by probing each candidate with the
// OBD-II "any ECU" broadcast and keeping the first one that answers, then
// installs the matching frame codec.
func (a *Adapter) runConfig(ctx context.Context) error {
	for _, candidate := range a.candidates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := a.send(command.SetProtocol(candidate)); err != nil {
			continue
		}

		headerChars := candidate.NumberOfHeaderCharacters()
		messages, err := a.probeCandidate(ctx, headerChars)
		if err != nil {
			continue
		}

		negotiated := candidate
		if tag, err := a.send(command.DescribeProtocolNumeric()); err == nil {
			if p, ok := tag.(linkuds.BusProtocol); ok && p.IsValid() {
				negotiated = p
			}
		}

		a.protocol = negotiated
		a.headerChars = headerChars
		a.detectedMessages = messages
		a.postConfigureCAN(negotiated)
		a.installCodec(negotiated)
		return nil
	}
	return linkuds.ErrUnsuitableAdapter
}

// probeCandidate sends the OBD-II "any ECU" broadcast on the currently
// selected protocol, retrying once if the first attempt fails: a candidate protocol
// that is electrically correct for the bus can still miss its first
// arbitration window on a busy line, and a single retry is cheap next to
// moving on to the wrong candidate.
func (a *Adapter) probeCandidate(ctx context.Context, headerChars int) ([]*linkuds.Message, error) {
	var messages []*linkuds.Message
	err := retry.Do(func() error {
		result, err := a.send(command.Data([]byte{0x01, 0x00}, nil, headerChars))
		if err != nil {
			return err
		}
		found, ok := result.([]*linkuds.Message)
		if !ok || len(found) == 0 {
			return linkuds.ErrNoResponse
		}
		messages = found
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.LastErrorOnly(true),
	)
	return messages, err
}

// postConfigureCAN applies the CAN-specific settings the encoder/decoder
// install table assumes are in effect: adaptive timing off and the timeout
// pinned to the adapter's maximum (a CAN bus's own arbitration already
// bounds response latency far tighter than ELM's adaptive guess), CAN
// auto-format on (so multi-line responses are pre-split into frames by the
// adapter itself), a broadcast header so a first probe reaches every ECU,
// and Tx/Rx auto-segmentation negotiated or probed independently.
func (a *Adapter) postConfigureCAN(protocol linkuds.BusProtocol) {
	if !protocol.IsCAN() {
		return
	}
	a.send(command.AdaptiveTiming(false))
	a.send(command.SetTimeout(0xFF))
	a.send(command.CANAutoFormat(true))
	if h, err := linkuds.ParseHeader(protocol.BroadcastHeader()); err == nil {
		if _, err := a.send(command.SetHeader(h)); err == nil {
			a.txHeader = h
		}
	}

	if a.info.SupportsSTCommands {
		if _, err := a.send(command.STNSegmentationTransmit(true)); err == nil {
			a.hasTxAutoSegmentation = true
		}
		if _, err := a.send(command.STNSegmentationReceive(true)); err == nil {
			a.hasRxAutoSegmentation = true
		}
		return
	}
	a.probeSoftwareSegmentation(protocol.NumberOfHeaderCharacters())
}

// probeSoftwareSegmentation discovers Tx/Rx auto-segmentation on adapters
// that expose no ST commands to ask directly. A payload long enough to need
// First/Consecutive framing only succeeds if the adapter chunks it itself,
// establishing Tx capability; a short broadcast that suppresses the ECU's
// positive response establishes Rx capability by confirming the adapter
// reports a clean empty result instead of a malformed one.
func (a *Adapter) probeSoftwareSegmentation(headerChars int) {
	long := make([]byte, 12)
	long[0] = 0x3E // TesterPresent, payload content otherwise unimportant
	if _, err := a.send(command.Data(long, nil, headerChars)); err == nil {
		a.hasTxAutoSegmentation = true
	}

	short := []byte{0x3E, 0x80} // TesterPresent, suppressPositiveResponse
	if _, err := a.send(command.Data(short, nil, headerChars)); err == nil || errors.Is(err, linkuds.ErrNoResponse) {
		a.hasRxAutoSegmentation = true
	}
}

// installCodec fills in the encoder/decoder pair a bus protocol implies,
// per the config-sequence install table: legacy buses always speak a single
// physical frame per message, so they carry a bare passthrough encoder
// alongside their own decoder; CAN's pair depends on which direction, if
// any, this adapter segments in hardware.
func (a *Adapter) installCodec(protocol linkuds.BusProtocol) {
	switch {
	case protocol == linkuds.BusProtocolJ1850PWM || protocol == linkuds.BusProtocolJ1850VPWM:
		a.decoder = &buscodec.J1850Decoder{}
		a.encoder = buscodec.NewNullEncoder(7)
	case protocol == linkuds.BusProtocolISO9141_2:
		a.decoder = &buscodec.ISO9141Decoder{}
		a.encoder = buscodec.NewNullEncoder(7)
	case protocol == linkuds.BusProtocolKWP2000Fast || protocol == linkuds.BusProtocolKWP2000_5Kbps:
		a.decoder = &buscodec.KWP2000Decoder{}
		a.encoder = buscodec.NewNullEncoder(7)
	case protocol.IsCAN():
		if a.hasRxAutoSegmentation {
			a.decoder = &buscodec.NullDecoder{}
		} else {
			a.decoder = &buscodec.IsoTPDecoder{}
		}
		if a.hasTxAutoSegmentation {
			a.encoder = buscodec.NewNullEncoder(isotp.MaximumPayload)
		} else {
			a.encoder = buscodec.NewNullEncoder(7)
		}
	default:
		a.decoder = &buscodec.NullDecoder{}
		a.encoder = buscodec.NewNullEncoder(7)
	}
}

// SendUDS transmits a UDS request and returns the ECU's response, applying
// software ISO-TP segmentation when the payload exceeds a single physical
// frame and the adapter is not doing it in hardware.
func (a *Adapter) SendUDS(ctx context.Context, msg *linkuds.Message) (*linkuds.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Status() != Connected {
		return nil, linkuds.ErrDisconnected
	}
	if err := a.applyHeaders(msg); err != nil {
		return nil, err
	}

	if len(msg.Bytes) <= 7 {
		return a.sendSingleFrame(msg)
	}
	if a.hasTxAutoSegmentation {
		return a.sendHardwareSegmented(msg)
	}
	if !a.protocol.IsCAN() {
		return nil, fmt.Errorf("%w: multi-frame send on %s", linkuds.ErrMalformedService, a.protocol)
	}
	return a.sendSoftwareSegmented(ctx, msg)
}

// applyHeaders re-issues ATSH/ATCRA only when the request targets a
// different pair of headers than the last transmission, mirroring the
// STN sendUDS logic's "re-apply on header change" rule.
func (a *Adapter) applyHeaders(msg *linkuds.Message) error {
	if msg.ID != a.txHeader {
		if _, err := a.send(command.SetHeader(msg.ID)); err != nil {
			return err
		}
		a.txHeader = msg.ID
	}
	if a.protocol.IsCAN() && msg.Reply != linkuds.HeaderAny && msg.Reply != a.rxHeader {
		if _, err := a.send(command.CANReceiveAddress(msg.Reply)); err != nil {
			return err
		}
		a.rxHeader = msg.Reply
	}
	return nil
}

func (a *Adapter) sendSingleFrame(msg *linkuds.Message) (*linkuds.Message, error) {
	result, err := a.send(command.Data(msg.Bytes, nil, a.headerChars))
	if err != nil {
		return nil, err
	}
	messages, err := a.reassembleFrames(result.([]*linkuds.Message))
	if err != nil {
		return nil, err
	}
	reply, err := a.firstNonPending(msg, messages)
	if err != nil {
		return nil, err
	}
	return a.applyLegacyDecoder(reply)
}

// applyLegacyDecoder runs the installed bus decoder over a legacy (non-CAN)
// response payload. CAN responses need no further decoding here: either
// they were already single-frame, or reassembleFrames did the ISO-TP work.
func (a *Adapter) applyLegacyDecoder(reply *linkuds.Message) (*linkuds.Message, error) {
	if a.protocol.IsCAN() || a.decoder == nil {
		return reply, nil
	}
	payload, err := a.decoder.Decode(reply.Bytes)
	if err != nil {
		return nil, err
	}
	return reply.WithBytes(payload), nil
}

// sendHardwareSegmented hands the full payload to the adapter in one
// STPX-announced transaction; the STN itself performs ISO-TP segmentation
// and flow control on the wire side.
func (a *Adapter) sendHardwareSegmented(msg *linkuds.Message) (*linkuds.Message, error) {
	announce := command.STNTxAnnounce(msg.ID, msg.Reply, len(msg.Bytes))
	if _, err := a.send(announce); err != nil {
		return nil, err
	}
	result, err := a.send(command.Data(msg.Bytes, nil, a.headerChars))
	if err != nil {
		return nil, err
	}
	messages, err := a.reassembleFrames(result.([]*linkuds.Message))
	if err != nil {
		return nil, err
	}
	return a.firstNonPending(msg, messages)
}

// reassembleFrames folds raw physical frames from the same response into
// logical UDS messages. When the adapter reassembles in hardware, or the
// bus is not CAN, each raw frame is already a complete message and is
// returned unchanged. Otherwise the response still carries its ISO-TP PCI
// byte(s) and needs the installed decoder: a lone frame is a Single Frame,
// decoded directly by the installed buscodec.IsoTPDecoder; more than one
// frame is a genuine First/Consecutive Frame sequence, fed through a
// receive-only isotp.Transceiver that replies to any Flow Control request
// it emits.
func (a *Adapter) reassembleFrames(raw []*linkuds.Message) ([]*linkuds.Message, error) {
	if !a.protocol.IsCAN() || a.hasRxAutoSegmentation || len(raw) == 0 {
		return raw, nil
	}

	if len(raw) == 1 {
		payload, err := a.decoder.Decode(raw[0].Bytes)
		if err != nil {
			return nil, err
		}
		return []*linkuds.Message{linkuds.NewMessage(raw[0].ID, linkuds.HeaderAny, payload)}, nil
	}

	tx := isotp.New(a.behavior, a.blockSize, a.separationTime)
	var out []*linkuds.Message
	for _, m := range raw {
		action, err := tx.DidRead(padToFrameLength(m.Bytes))
		if err != nil {
			return nil, err
		}
		switch action.Kind {
		case isotp.Process:
			out = append(out, linkuds.NewMessage(m.ID, linkuds.HeaderAny, action.Payload))
		case isotp.WriteFrames:
			for _, fc := range action.Frames {
				a.transmitFrame(fc, false)
			}
		}
	}
	if len(out) == 0 {
		return raw, nil
	}
	return out, nil
}

// sendSoftwareSegmented drives an isotp.Transceiver to split msg.Bytes into
// First/Consecutive Frames, transmitting each as its own adapter "data"
// command and feeding any Flow Control reply back into the transceiver.
func (a *Adapter) sendSoftwareSegmented(ctx context.Context, msg *linkuds.Message) (*linkuds.Message, error) {
	tx := isotp.New(a.behavior, a.blockSize, a.separationTime)
	action, err := tx.Write(msg.Bytes)
	if err != nil {
		return nil, err
	}

	for action.Kind == isotp.WriteFrames {
		var reply *linkuds.Message
		for i, frame := range action.Frames {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			last := i == len(action.Frames)-1
			respMsg, err := a.transmitFrame(frame, last)
			if err != nil {
				return nil, err
			}
			if last {
				reply = respMsg
			}
			if !last && action.SeparationTimeMs > 0 {
				time.Sleep(time.Duration(action.SeparationTimeMs) * time.Millisecond)
			}
		}
		if action.IsLastBatch {
			if reply == nil {
				return nil, linkuds.ErrNoResponse
			}
			messages, err := a.reassembleFrames([]*linkuds.Message{reply})
			if err != nil {
				return nil, err
			}
			return a.firstNonPending(msg, messages)
		}
		if reply == nil {
			return nil, linkuds.ErrNoResponse
		}
		frameBytes := padToFrameLength(reply.Bytes)
		action, err = tx.DidRead(frameBytes)
		if err != nil {
			return nil, err
		}
	}

	return nil, &linkuds.UnexpectedResultError{Text: fmt.Sprintf("transceiver returned unexpected action %d while sending", action.Kind)}
}

// transmitFrame sends one raw ISO-TP frame's bytes as an adapter data
// command. expectReply is false for interim consecutive frames, which an
// ECU does not acknowledge individually; ErrNoResponse is then not an
// error but the expected outcome.
func (a *Adapter) transmitFrame(frame []byte, expectReply bool) (*linkuds.Message, error) {
	cmd := command.Data(frame, nil, a.headerChars)
	text, err := a.queue.Send(cmd.Wire+"\r", a.commandTimeout)
	if err != nil {
		if !expectReply && errors.Is(err, linkuds.ErrTimeout) {
			return nil, nil
		}
		return nil, err
	}
	result, err := cmd.Parse(text)
	if err != nil {
		if !expectReply && errors.Is(err, linkuds.ErrNoResponse) {
			return nil, nil
		}
		return nil, err
	}
	messages := result.([]*linkuds.Message)
	if len(messages) == 0 {
		return nil, nil
	}
	return messages[0], nil
}

// padToFrameLength pads b with trailing zeros to isotp.FrameLength bytes,
// matching the fixed-length classic CAN frame a Flow Control reply arrives
// as (adapters may report it shorter than 8 bytes if the wire frame was
// not itself padded).
func padToFrameLength(b []byte) []byte {
	if len(b) >= isotp.FrameLength {
		return b[:isotp.FrameLength]
	}
	padded := make([]byte, isotp.FrameLength)
	copy(padded, b)
	return padded
}

// firstNonPending returns the first message in candidates that is not an
// ISO 14229 "request correctly received, response pending" negative
// response correlated to request's SID, re-requesting a follow-up reply
// from the wire (without re-transmitting the request) for each pending one
// it skips. A [0x7F, otherSid, 0x78] reply that does not match request's
// SID is not a pending response to this request at all and is returned as
// the message it is.
func (a *Adapter) firstNonPending(request *linkuds.Message, candidates []*linkuds.Message) (*linkuds.Message, error) {
	for _, msg := range candidates {
		if nrc, sid, ok := msg.IsNegativeResponse(); ok && nrc.IsPending() && sid == request.SID() {
			continue
		}
		return msg, nil
	}

	for {
		text, err := a.queue.AwaitReply(a.commandTimeout)
		if err != nil {
			return nil, err
		}
		result, err := command.Data(nil, nil, a.headerChars).Parse(text)
		if err != nil {
			return nil, err
		}
		messages, err := a.reassembleFrames(result.([]*linkuds.Message))
		if err != nil {
			return nil, err
		}
		for _, msg := range messages {
			if nrc, sid, ok := msg.IsNegativeResponse(); ok && nrc.IsPending() && sid == request.SID() {
				continue
			}
			return msg, nil
		}
	}
}
