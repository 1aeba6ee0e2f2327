// Package serialio wires the full-duplex byte stream pkg/stream drives to a
// real serial port, using go.bug.st/serial the way the teacher's adapter
// implementations open and configure one. It is kept out of the transport
// core: the core never drives physical hardware directly, only the
// input/output stream abstraction pkg/stream defines.
package serialio

import (
	"time"

	"go.bug.st/serial"
)

// Stream is a full-duplex byte stream backed by a serial port.
type Stream struct {
	port serial.Port
}

// Open opens name at baud with the 8N1 framing every ELM327-class adapter
// expects, and arms a short read timeout so the stream's reader can poll
// without blocking indefinitely (mirroring the teacher's
// SetReadTimeout(10ms) before starting its send/recv goroutines).
func Open(name string, baud int) (*Stream, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(10 * time.Millisecond); err != nil {
		p.Close()
		return nil, err
	}
	return &Stream{port: p}, nil
}

func (s *Stream) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *Stream) Close() error                { return s.port.Close() }

// SetBaud reconfigures the live connection's baud rate, used during an
// adapter's speed-negotiation handshake.
func (s *Stream) SetBaud(baud int) error {
	return s.port.SetMode(&serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
}

// ResetBuffers discards any buffered but unread/unwritten bytes, used
// after a baud change so stale bytes framed at the old rate are dropped.
func (s *Stream) ResetBuffers() {
	s.port.ResetInputBuffer()
	s.port.ResetOutputBuffer()
}

// Ports lists the serial device names available on this host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
