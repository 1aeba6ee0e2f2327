package linkuds

import "fmt"

// BusProtocol identifies the physical/data-link bus protocol negotiated with
// an adapter. Values mirror the ATSP numeric tags an ELM327-class adapter
// understands (spec.md §6).
type BusProtocol int

const (
	BusProtocolUnknown BusProtocol = iota
	BusProtocolAuto
	BusProtocolJ1850PWM
	BusProtocolJ1850VPWM
	BusProtocolISO9141_2
	BusProtocolKWP2000_5Kbps
	BusProtocolKWP2000Fast
	BusProtocolCAN11B500K
	BusProtocolCAN29B500K
	BusProtocolCAN11B250K
	BusProtocolCAN29B250K
	BusProtocolCANSAEJ1939
	BusProtocolUser1_11B125K
	BusProtocolUser2_11B50K
)

// atspTag maps a BusProtocol to the single hex character used in "ATSP<n>"
// and returned by "ATDPN".
var atspTag = map[BusProtocol]byte{
	BusProtocolJ1850PWM:      '1',
	BusProtocolJ1850VPWM:     '2',
	BusProtocolISO9141_2:     '3',
	BusProtocolKWP2000_5Kbps: '4',
	BusProtocolKWP2000Fast:   '5',
	BusProtocolCAN11B500K:    '6',
	BusProtocolCAN29B500K:    '7',
	BusProtocolCAN11B250K:    '8',
	BusProtocolCAN29B250K:    '9',
	BusProtocolCANSAEJ1939:   'A',
	BusProtocolUser1_11B125K: 'B',
	BusProtocolUser2_11B50K:  'C',
}

var tagToBusProtocol = func() map[byte]BusProtocol {
	m := make(map[byte]BusProtocol, len(atspTag))
	for p, tag := range atspTag {
		m[tag] = p
	}
	return m
}()

// ATSPTag returns the hex character for use in "ATSP<n>"/"ATTP<n>", or 0 if
// this protocol has no numeric tag (Unknown/Auto).
func (p BusProtocol) ATSPTag() byte {
	return atspTag[p]
}

// ParseATDPN parses the single hex character that ends an "ATDPN" response;
// the caller drops any leading "A" ("automatic") prefix before calling it,
// so a bare 'A' is the SAE J1939 tag. An unrecognized tag reports
// BusProtocolUnknown and ok=false.
func ParseATDPN(tag byte) (BusProtocol, bool) {
	p, ok := tagToBusProtocol[tag]
	return p, ok
}

// IsCAN reports whether p is any CAN variant (11/29-bit, any speed, J1939).
func (p BusProtocol) IsCAN() bool {
	switch p {
	case BusProtocolCAN11B500K, BusProtocolCAN29B500K, BusProtocolCAN11B250K,
		BusProtocolCAN29B250K, BusProtocolCANSAEJ1939,
		BusProtocolUser1_11B125K, BusProtocolUser2_11B50K:
		return true
	default:
		return false
	}
}

// Is29Bit reports whether p uses extended (29-bit) CAN identifiers.
func (p BusProtocol) Is29Bit() bool {
	return p == BusProtocolCAN29B500K || p == BusProtocolCAN29B250K || p == BusProtocolCANSAEJ1939
}

// IsValid reports whether p is a concrete, negotiable protocol (not
// Unknown/Auto).
func (p BusProtocol) IsValid() bool {
	_, ok := atspTag[p]
	return ok
}

// BroadcastHeader returns the conventional query-any-ECU header for p, the
// textual form an adapter's ATSH command expects.
func (p BusProtocol) BroadcastHeader() string {
	if p.Is29Bit() {
		return "18DB33F1"
	}
	if p.IsCAN() {
		return "7DF"
	}
	switch p {
	case BusProtocolJ1850PWM, BusProtocolJ1850VPWM, BusProtocolISO9141_2,
		BusProtocolKWP2000_5Kbps, BusProtocolKWP2000Fast:
		return "6A"
	default:
		return ""
	}
}

// NumberOfHeaderCharacters returns 8 for 29-bit CAN, 3 otherwise -- the
// number of hex characters the string command provider's data parser
// consumes as the header prefix of a response line.
func (p BusProtocol) NumberOfHeaderCharacters() int {
	if p.Is29Bit() {
		return 8
	}
	return 3
}

func (p BusProtocol) String() string {
	switch p {
	case BusProtocolUnknown:
		return "unknown"
	case BusProtocolAuto:
		return "auto"
	case BusProtocolJ1850PWM:
		return "J1850 PWM (41.6 kbps)"
	case BusProtocolJ1850VPWM:
		return "J1850 VPWM (10.4 kbps)"
	case BusProtocolISO9141_2:
		return "ISO 9141-2"
	case BusProtocolKWP2000_5Kbps:
		return "ISO 14230-4 KWP (5 baud init)"
	case BusProtocolKWP2000Fast:
		return "ISO 14230-4 KWP (fast init)"
	case BusProtocolCAN11B500K:
		return "ISO 15765-4 CAN (11 bit ID, 500 kbaud)"
	case BusProtocolCAN29B500K:
		return "ISO 15765-4 CAN (29 bit ID, 500 kbaud)"
	case BusProtocolCAN11B250K:
		return "ISO 15765-4 CAN (11 bit ID, 250 kbaud)"
	case BusProtocolCAN29B250K:
		return "ISO 15765-4 CAN (29 bit ID, 250 kbaud)"
	case BusProtocolCANSAEJ1939:
		return "SAE J1939 CAN (29 bit ID, 250 kbaud)"
	case BusProtocolUser1_11B125K:
		return "user1 CAN (11 bit ID, 125 kbaud)"
	case BusProtocolUser2_11B50K:
		return "user2 CAN (11 bit ID, 50 kbaud)"
	default:
		return fmt.Sprintf("BusProtocol(%d)", int(p))
	}
}
