package linkuds

import (
	"context"
	"sync"
)

// Transport is the capability pipeline.go needs from an adapter, satisfied
// structurally by *adapter.Adapter without this package importing it: the
// adapter package already imports linkuds for its error/message types, so a
// direct import back would cycle. Any type with this shape can back a
// Pipeline, including a test double.
type Transport interface {
	SendUDS(ctx context.Context, msg *Message) (*Message, error)
	MTU() int
}

// Pipeline serializes UDS request/response pairs over a single Transport:
// only one Send is in flight on it at a time. The one NRC that is not
// terminal, 0x78 "request correctly received, response pending", is not
// treated as an error; every other negative response is returned to the
// caller as a NegativeResponseError.
type Pipeline struct {
	mu        sync.Mutex
	transport Transport
}

// NewPipeline builds a Pipeline over transport.
func NewPipeline(transport Transport) *Pipeline {
	return &Pipeline{transport: transport}
}

// Send transmits a UDS service request from to and waits for reply's
// response, returning a NegativeResponseError if the ECU's final answer is
// a terminal negative response. The adapter beneath the pipeline already
// resolves any 0x78 "response pending" replies before returning, so Send
// itself only needs to translate the final negative response, not loop
// on pending ones itself.
func (p *Pipeline) Send(ctx context.Context, to, reply Header, service []byte) (*Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	request := NewMessage(to, reply, service)
	response, err := p.transport.SendUDS(ctx, request)
	if err != nil {
		return nil, err
	}
	if nrc, sid, ok := response.IsNegativeResponse(); ok && !nrc.IsPending() {
		return nil, &NegativeResponseError{SID: sid, NRC: nrc}
	}
	return response, nil
}

// MTU exposes the underlying transport's maximum payload size.
func (p *Pipeline) MTU() int {
	return p.transport.MTU()
}
