package linkuds

import "fmt"

// Header is a CAN arbitration identifier. Values below 0x800 are 11-bit
// SAE-standard IDs; larger values are 29-bit extended IDs. Zero means
// "unset/any" and matches every incoming message when used as a reply filter.
type Header uint32

const (
	// HeaderAny is the distinguished "unset" header value.
	HeaderAny Header = 0

	// standardHeaderMax is the highest value that still fits an 11-bit ID.
	standardHeaderMax = 0x7FF
)

// Extended reports whether h requires a 29-bit identifier.
func (h Header) Extended() bool {
	return h > standardHeaderMax
}

// HexChars returns how many hex characters the wire form of h occupies:
// 3 for an 11-bit header, 8 for a 29-bit one.
func (h Header) HexChars() int {
	if h.Extended() {
		return 8
	}
	return 3
}

// String renders h the way an ELM-class adapter does: upper-case hex, zero
// padded to HexChars().
func (h Header) String() string {
	return fmt.Sprintf("%0*X", h.HexChars(), uint32(h))
}

// ParseHeader parses an upper- or lower-case hex header string as produced
// by an adapter's ATH1 output.
func ParseHeader(s string) (Header, error) {
	if len(s) != 3 && len(s) != 8 {
		return 0, &InvalidFormatError{Text: fmt.Sprintf("header %q must be 3 or 8 hex characters", s)}
	}
	var v uint32
	if _, err := fmt.Sscanf(s, "%X", &v); err != nil {
		return 0, fmt.Errorf("%w: header %q is not hex: %v", ErrInvalidCharacters, s, err)
	}
	return Header(v), nil
}
