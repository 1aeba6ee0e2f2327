// Package stream implements the single-in-flight command queue that sits
// between a UDS/OBD adapter driver and a byte-oriented transport: it moves
// bytes and delimits responses by a terminator token, but never interprets
// command semantics. Grounded on the teacher's elm327 sendManager/
// recvManager pair, folded into one dedicated worker goroutine per the
// concurrency model this queue implements: a single goroutine is the only
// thing that ever touches the underlying stream once New has started it.
package stream

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oskay-diag/linkuds"
	"github.com/oskay-diag/linkuds/pkg/logx"
)

// DefaultTerminator is the prompt an ELM-class adapter emits once a
// response is complete.
const DefaultTerminator = ">"

// pollInterval is how long the worker sleeps between idle reads for
// unsolicited bytes while no command is active. It does not bound a Read
// call itself: the worker relies on the underlying stream returning from
// Read on its own read deadline (pkg/serialio arms a 10ms one on Open).
const pollInterval = 10 * time.Millisecond

// Stream is the full duplex byte connection the queue drives. Any type
// satisfying it — a real serial port (pkg/serialio), a pipe, a test
// double — can back a Queue.
type Stream interface {
	io.Reader
	io.Writer
}

// Stats reports counters accumulated over a Queue's lifetime, useful for
// diagnostics without threading a logger through every call site.
type Stats struct {
	CommandsSent     uint64
	BytesWritten     uint64
	BytesRead        uint64
	Timeouts         uint64
	UnsolicitedDrops uint64
}

type command struct {
	text    string
	timeout time.Duration
	reply   chan result
	// noWrite marks a command that only arms a read deadline and waits for a
	// terminator, without writing anything first. Used to collect a
	// follow-up response an ECU sends unprompted after a "response
	// pending" negative response, where issuing a second write would be a
	// second request rather than a continuation of the first.
	noWrite bool
}

type result struct {
	text string
	err  error
}

// Queue owns a Stream and a dedicated worker goroutine. At most one
// command may be outstanding; calling Send while one is already in flight
// is a programmer error and returns ErrCommandInFlight rather than
// queuing.
type Queue struct {
	stream     Stream
	terminator string
	unsolicited func([]byte)
	logger     logx.Logger

	commandsCh chan *command
	closeCh    chan struct{}
	closeOnce  sync.Once
	doneCh     chan struct{}

	inFlight int32

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Queue at construction, in the style of gocan's
// functional adapter options.
type Option func(*Queue)

// WithTerminator overrides DefaultTerminator.
func WithTerminator(t string) Option {
	return func(q *Queue) { q.terminator = t }
}

// WithUnsolicitedHandler installs the callback invoked with bytes received
// while no command is in flight. The default handler counts a drop and
// discards them.
func WithUnsolicitedHandler(f func([]byte)) Option {
	return func(q *Queue) { q.unsolicited = f }
}

// WithLogger installs a logx.Logger; nil (the default) uses logx.Default().
func WithLogger(l logx.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New builds a Queue over stream and starts its worker goroutine.
func New(stream Stream, opts ...Option) *Queue {
	q := &Queue{
		stream:     stream,
		terminator: DefaultTerminator,
		commandsCh: make(chan *command),
		closeCh:    make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = logx.OrDefault(q.logger)
	if q.unsolicited == nil {
		q.unsolicited = func(b []byte) {
			q.statsMu.Lock()
			q.stats.UnsolicitedDrops++
			q.statsMu.Unlock()
			q.logger.Log(logx.LevelWarn, "%v: %d byte(s) %q", linkuds.ErrDroppedUnsolicited, len(b), b)
		}
	}
	go q.run()
	return q
}

// Send writes text to the stream and waits for a terminator-delimited
// response or for timeout to elapse. It returns ErrCommandInFlight
// immediately, without blocking, if a previous Send has not yet completed.
func (q *Queue) Send(text string, timeout time.Duration) (string, error) {
	if !atomic.CompareAndSwapInt32(&q.inFlight, 0, 1) {
		return "", linkuds.ErrCommandInFlight
	}
	defer atomic.StoreInt32(&q.inFlight, 0)

	cmd := &command{text: text, timeout: timeout, reply: make(chan result, 1)}
	select {
	case q.commandsCh <- cmd:
	case <-q.closeCh:
		return "", linkuds.ErrShutdown
	}

	r := <-cmd.reply
	return r.text, r.err
}

// AwaitReply waits for the next terminator-delimited response without
// writing anything first, for the ISO 14229 "response pending" (NRC 0x78)
// case where the ECU sends a further reply on its own initiative. It shares
// Send's single-in-flight discipline.
func (q *Queue) AwaitReply(timeout time.Duration) (string, error) {
	if !atomic.CompareAndSwapInt32(&q.inFlight, 0, 1) {
		return "", linkuds.ErrCommandInFlight
	}
	defer atomic.StoreInt32(&q.inFlight, 0)

	cmd := &command{timeout: timeout, reply: make(chan result, 1), noWrite: true}
	select {
	case q.commandsCh <- cmd:
	case <-q.closeCh:
		return "", linkuds.ErrShutdown
	}

	r := <-cmd.reply
	return r.text, r.err
}

// Stats returns a snapshot of the queue's lifetime counters.
func (q *Queue) Stats() Stats {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	return q.stats
}

// Shutdown stops the worker and releases the stream. It resolves any
// in-flight command with ErrShutdown. Shutdown is idempotent.
func (q *Queue) Shutdown() {
	q.closeOnce.Do(func() { close(q.closeCh) })
	<-q.doneCh
}

// run is the queue's single dedicated worker: the only goroutine that ever
// calls stream.Read or stream.Write.
func (q *Queue) run() {
	defer close(q.doneCh)

	buf := make([]byte, 256)
	acc := bytes.NewBuffer(nil)

	var active *command
	var deadline time.Time

	for {
		select {
		case <-q.closeCh:
			if active != nil {
				active.reply <- result{err: linkuds.ErrShutdown}
			}
			return
		case cmd := <-q.commandsCh:
			active = cmd
			acc.Reset()
			if !cmd.noWrite {
				n, err := q.stream.Write([]byte(cmd.text))
				q.recordWrite(n)
				if err != nil {
					active.reply <- result{err: &linkuds.BusError{Text: err.Error()}}
					active = nil
					continue
				}
				q.statsMu.Lock()
				q.stats.CommandsSent++
				q.statsMu.Unlock()
			}
			deadline = time.Now().Add(cmd.timeout)
		default:
		}

		if active == nil {
			q.drainUnsolicited(buf)
			time.Sleep(pollInterval)
			continue
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			q.statsMu.Lock()
			q.stats.Timeouts++
			q.statsMu.Unlock()
			active.reply <- result{err: linkuds.ErrTimeout}
			active = nil
			continue
		}

		n, err := q.stream.Read(buf)
		if n > 0 {
			q.recordRead(n)
			acc.Write(buf[:n])
			if idx := bytes.LastIndex(acc.Bytes(), []byte(q.terminator)); idx >= 0 {
				text := string(acc.Bytes()[:idx])
				active.reply <- result{text: text}
				active = nil
				continue
			}
		}
		if err != nil && !isTimeoutOrRetryable(err) {
			active.reply <- result{err: &linkuds.BusError{Text: err.Error()}}
			active = nil
		}
	}
}

// drainUnsolicited performs one non-blocking-ish read while idle, handing
// any bytes found straight to the unsolicited callback without
// accumulating them across reads.
func (q *Queue) drainUnsolicited(buf []byte) {
	n, err := q.stream.Read(buf)
	if n > 0 {
		q.recordRead(n)
		q.unsolicited(append([]byte(nil), buf[:n]...))
	}
	_ = err // EOF/timeout while idle is not an error worth surfacing
}

func (q *Queue) recordWrite(n int) {
	q.statsMu.Lock()
	q.stats.BytesWritten += uint64(n)
	q.statsMu.Unlock()
}

func (q *Queue) recordRead(n int) {
	q.statsMu.Lock()
	q.stats.BytesRead += uint64(n)
	q.statsMu.Unlock()
}

// isTimeoutOrRetryable reports whether err is the kind of transient error a
// short read-deadline stream produces when no bytes are currently
// available, which the worker should treat as "try again" rather than a
// communication failure.
func isTimeoutOrRetryable(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
