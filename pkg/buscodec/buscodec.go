// Package buscodec implements the non-ISO-TP bus decoders and the shared
// Null encoder/decoder: the framing layer for adapters that either speak a
// legacy bus protocol directly (J1850, ISO 9141-2, KWP2000) or perform
// their own segmentation on-chip, in which case the host side is a
// pass-through bounded only by a maximum frame length.
package buscodec

import (
	"github.com/oskay-diag/linkuds"
	"github.com/oskay-diag/linkuds/pkg/isotp"
)

// Decoder turns the concatenated bytes an adapter reported for one
// response into the logical UDS payload they carry.
type Decoder interface {
	Decode(raw []byte) ([]byte, error)
}

// Encoder reports the largest payload it can hand to the adapter unsegmented,
// leaving actual segmentation to the adapter (on-chip) or to pkg/isotp
// (host-side, wired in by the adapter driver when Tx auto-segmentation is
// unavailable).
type Encoder interface {
	MaximumFrameLength() int
}

// NullEncoder is a pass-through encoder that only advertises a bound on
// unsegmented payload size; it performs no framing of its own.
type NullEncoder struct {
	maxLen int
}

// NewNullEncoder builds a NullEncoder advertising maxLen as its
// MaximumFrameLength.
func NewNullEncoder(maxLen int) NullEncoder {
	return NullEncoder{maxLen: maxLen}
}

func (e NullEncoder) MaximumFrameLength() int { return e.maxLen }

// NullDecoder returns its input unchanged.
type NullDecoder struct{}

func (NullDecoder) Decode(raw []byte) ([]byte, error) {
	return raw, nil
}

// IsoTPDecoder strips the ISO-TP protocol control information a CAN adapter
// with no Rx auto-segmentation still leaves on the wire, installed by the
// adapter driver in place of NullDecoder for that case. It defers to
// pkg/isotp's stateless codec, which understands both a lone Single Frame
// and a fully concatenated First/Consecutive Frame run.
type IsoTPDecoder struct{}

func (IsoTPDecoder) Decode(raw []byte) ([]byte, error) {
	return isotp.Decode(raw)
}

// J1850Decoder decodes responses from a J1850 (PWM/VPWM) bus. The adapter
// has already stripped the wire-level checksum and framing bytes before
// this layer sees the response, so decoding is the identity transform;
// this type exists so the adapter's decoder table has a named, distinct
// value to install and so a future bus quirk has somewhere to live.
type J1850Decoder struct{}

func (J1850Decoder) Decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, &linkuds.DecoderError{Reason: "j1850: empty response"}
	}
	return raw, nil
}

// KWP2000Decoder decodes responses received over ISO 14230-4 KWP2000's
// 5-baud or fast-init bus variants. Like J1850Decoder, the adapter has
// already removed KWP2000's own header/checksum bytes; this stage exists
// to keep the decoder table uniform and to reject an empty response the
// way the ISO-TP decoders do.
type KWP2000Decoder struct{}

func (KWP2000Decoder) Decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, &linkuds.DecoderError{Reason: "kwp2000: empty response"}
	}
	return raw, nil
}

// ISO9141Decoder decodes ISO 9141-2 responses, which an ELM-class adapter
// delivers as a sequence of 8-byte chunks: byte[2] of each chunk is a
// 1-indexed sequence number, chunk 1 contributes its first two bytes, and
// every chunk contributes the four bytes after the sequence number (indices
// 3 to 6); byte[7] is dropped.
type ISO9141Decoder struct{}

func (ISO9141Decoder) Decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, &linkuds.DecoderError{Reason: "iso9141: empty response"}
	}
	if len(raw)%8 != 0 {
		return nil, &linkuds.DecoderError{Reason: "iso9141: response is not a multiple of 8 bytes"}
	}

	out := make([]byte, 0, len(raw))
	for i := 0; i*8 < len(raw); i++ {
		chunk := raw[i*8 : i*8+8]
		seq := int(chunk[2])
		if seq != i+1 {
			return nil, &linkuds.DecoderError{Reason: "iso9141: chunk sequence mismatch"}
		}
		if i == 0 {
			out = append(out, chunk[0:2]...)
		}
		out = append(out, chunk[3:7]...)
	}
	return out, nil
}
