// Package command is the string command provider: a set of pure
// constructors, one per adapter operation, each producing the exact wire
// string an ELM327/STN-class adapter expects and a parser for its response.
// The package never touches a stream; pkg/stream moves the bytes and hands
// the raw response text back here to interpret.
package command

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/oskay-diag/linkuds"
)

// Command is what the constructor functions below return: the exact
// wire text to send and a Parse function that turns the raw response text
// into a typed result.
type Command struct {
	// Wire is the literal command text, without a trailing terminator; the
	// queue (pkg/stream) is responsible for framing, this package only
	// supplies the command payload.
	Wire  string
	Parse func(response string) (interface{}, error)
}

// normalize applies the failure detection every parser shares: empty
// response, an unrecognized-command marker, or a bus error line. Callers
// invoke it before attempting their own interpretation of a successful
// response.
func normalize(response string) error {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return linkuds.ErrNoResponse
	}
	if strings.Contains(trimmed, "?") {
		return linkuds.ErrUnrecognizedCommand
	}
	for _, line := range splitLines(trimmed) {
		upper := strings.ToUpper(line)
		if strings.Contains(upper, "ERROR") || strings.Contains(upper, "UNABLE") {
			return &linkuds.BusError{Text: line}
		}
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func onOffSuffix(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// parseOKFail is the response parser for commands whose only interesting
// outcome is success or a normalize()-detected failure; on success it
// returns nil.
func parseOKFail(response string) (interface{}, error) {
	if err := normalize(response); err != nil {
		return nil, err
	}
	return nil, nil
}

// parseText returns the trimmed response text verbatim once normalized.
func parseText(response string) (interface{}, error) {
	if err := normalize(response); err != nil {
		return nil, err
	}
	return strings.TrimSpace(response), nil
}

// Reset builds "ATZ": a full adapter reset.
func Reset() Command {
	return Command{Wire: "ATZ", Parse: parseText}
}

// Echo builds "ATE0"/"ATE1".
func Echo(on bool) Command {
	return Command{Wire: "ATE" + onOffSuffix(on), Parse: parseOKFail}
}

// Linefeed builds "ATL0"/"ATL1".
func Linefeed(on bool) Command {
	return Command{Wire: "ATL" + onOffSuffix(on), Parse: parseOKFail}
}

// ShowHeaders builds "ATH0"/"ATH1".
func ShowHeaders(on bool) Command {
	return Command{Wire: "ATH" + onOffSuffix(on), Parse: parseOKFail}
}

// Spaces builds "ATS0"/"ATS1".
func Spaces(on bool) Command {
	return Command{Wire: "ATS" + onOffSuffix(on), Parse: parseOKFail}
}

// AdaptiveTiming builds "ATAT0"/"ATAT1".
func AdaptiveTiming(on bool) Command {
	return Command{Wire: "ATAT" + onOffSuffix(on), Parse: parseOKFail}
}

// SetHeader builds "ATSH<hex>".
func SetHeader(h linkuds.Header) Command {
	return Command{Wire: "ATSH" + h.String(), Parse: parseOKFail}
}

// CANReceiveAddress builds "ATCRA<hex>".
func CANReceiveAddress(h linkuds.Header) Command {
	return Command{Wire: "ATCRA" + h.String(), Parse: parseOKFail}
}

// SetProtocol builds "ATSP<n>" for the numeric tag of protocol.
func SetProtocol(protocol linkuds.BusProtocol) Command {
	return Command{Wire: fmt.Sprintf("ATSP%c", protocol.ATSPTag()), Parse: parseOKFail}
}

// TryProtocol builds "ATTP<n>".
func TryProtocol(protocol linkuds.BusProtocol) Command {
	return Command{Wire: fmt.Sprintf("ATTP%c", protocol.ATSPTag()), Parse: parseOKFail}
}

// DescribeProtocolNumeric builds "ATDPN", parsed into a BusProtocol tag.
func DescribeProtocolNumeric() Command {
	return Command{
		Wire: "ATDPN",
		Parse: func(response string) (interface{}, error) {
			if err := normalize(response); err != nil {
				return nil, err
			}
			trimmed := strings.TrimSpace(response)
			if trimmed == "" {
				return nil, linkuds.ErrNoResponse
			}
			protocol, ok := linkuds.ParseATDPN(trimmed[len(trimmed)-1])
			if !ok {
				return nil, &linkuds.UnexpectedResultError{Text: "ATDPN returned an unrecognized protocol tag: " + trimmed}
			}
			return protocol, nil
		},
	}
}

// CANAutoFormat builds "ATCAF0"/"ATCAF1".
func CANAutoFormat(on bool) Command {
	return Command{Wire: "ATCAF" + onOffSuffix(on), Parse: parseOKFail}
}

// SetTimeout builds "ATST<hh>" from a raw ELM timeout byte (each unit is
// roughly 4ms; 0xFF requests the adapter's maximum timeout).
func SetTimeout(hh byte) Command {
	return Command{Wire: fmt.Sprintf("ATST%02X", hh), Parse: parseOKFail}
}

// ReadVoltage builds "ATRV", parsed into a decimal volts reading. The
// adapter's reply is typically "12.3V"; the trailing unit is optional and
// stripped if present.
func ReadVoltage() Command {
	return Command{
		Wire: "ATRV",
		Parse: func(response string) (interface{}, error) {
			if err := normalize(response); err != nil {
				return nil, err
			}
			trimmed := strings.TrimSpace(response)
			trimmed = strings.TrimSuffix(strings.ToUpper(trimmed), "V")
			volts, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				return nil, &linkuds.UnexpectedResultError{Text: "ATRV did not return a decimal voltage: " + response}
			}
			return volts, nil
		},
	}
}

// ConnectProbe builds the OBD-II "0100" service 01 PID 00 probe used to
// discover which ECUs answer on the bus, parsed as ECU-lines.
func ConnectProbe() Command {
	return Command{Wire: "0100", Parse: parseECULines}
}

// parseECULines drops non-ECU-response lines (adapter chatter such as
// "SEARCHING...") and returns the remaining trimmed lines.
func parseECULines(response string) (interface{}, error) {
	if err := normalize(response); err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range splitLines(response) {
		if !looksLikeHex(line) {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, linkuds.ErrNoResponse
	}
	return lines, nil
}

func looksLikeHex(line string) bool {
	compact := strings.ReplaceAll(line, " ", "")
	if compact == "" {
		return false
	}
	for _, r := range compact {
		if !strings.ContainsRune("0123456789ABCDEFabcdef", r) {
			return false
		}
	}
	return true
}

// Data builds the payload transmit command: payload hex-encoded, with an
// optional trailing hex nibble telling the adapter how many responses to
// wait for before returning (omit to wait for all responses / the
// adapter's default timeout). headerChars is 3 or 8, matching the
// negotiated BusProtocol's NumberOfHeaderCharacters, and controls how the
// response parser splits each line into header and payload.
func Data(payload []byte, expectedCount *int, headerChars int) Command {
	wire := strings.ToUpper(hex.EncodeToString(payload))
	if expectedCount != nil {
		wire += strconv.FormatInt(int64(*expectedCount), 16)
	}
	return Command{
		Wire: wire,
		Parse: func(response string) (interface{}, error) {
			if err := normalize(response); err != nil {
				return nil, err
			}
			var messages []*linkuds.Message
			for _, line := range splitLines(response) {
				msg, err := parseDataLine(line, headerChars)
				if err != nil {
					continue // adapter chatter such as "SEARCHING..." is not a data line
				}
				messages = append(messages, msg)
			}
			if len(messages) == 0 {
				return nil, linkuds.ErrNoResponse
			}
			return messages, nil
		},
	}
}

func parseDataLine(line string, headerChars int) (*linkuds.Message, error) {
	compact := strings.ReplaceAll(line, " ", "")
	if len(compact) < headerChars {
		return nil, &linkuds.InvalidFormatError{Text: "line shorter than a header: " + line}
	}
	headerHex, dataHex := compact[:headerChars], compact[headerChars:]
	id, err := linkuds.ParseHeader(headerHex)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return nil, &linkuds.InvalidFormatError{Text: "line payload is not hex: " + line}
	}
	return linkuds.NewMessage(id, linkuds.HeaderAny, data), nil
}

// STNTxAnnounce builds an STN "STPX" announce command ahead of a data
// command whose payload does not fit unsegmented, e.g. "STPXh:7E0,r:7E8,l:12".
func STNTxAnnounce(h, reply linkuds.Header, length int) Command {
	wire := fmt.Sprintf("STPXh:%s", h)
	if reply != linkuds.HeaderAny {
		wire += fmt.Sprintf(",r:%s", reply)
	}
	wire += fmt.Sprintf(",l:%d", length)
	return Command{
		Wire: wire,
		Parse: func(response string) (interface{}, error) {
			if err := normalize(response); err != nil {
				return nil, err
			}
			if !strings.Contains(strings.ToUpper(response), "DATA") {
				return nil, &linkuds.UnexpectedResultError{Text: "STPX did not prompt for DATA: " + response}
			}
			return nil, nil
		},
	}
}

// STNSegmentationTransmit builds "STCSEGT0"/"STCSEGT1".
func STNSegmentationTransmit(on bool) Command {
	return Command{Wire: "STCSEGT" + onOffSuffix(on), Parse: parseOKFail}
}

// STNSegmentationReceive builds "STCSEGR0"/"STCSEGR1".
func STNSegmentationReceive(on bool) Command {
	return Command{Wire: "STCSEGR" + onOffSuffix(on), Parse: parseOKFail}
}

// Identify builds "ATI".
func Identify() Command {
	return Command{Wire: "ATI", Parse: parseText}
}

// DeviceDescription builds "AT@1", the user-defined device description
// string ELM-class adapters echo back during the init handshake.
func DeviceDescription() Command {
	return Command{Wire: "AT@1", Parse: parseText}
}

// STIdentify builds "STI".
func STIdentify() Command {
	return Command{Wire: "STI", Parse: parseText}
}

// STIExtended builds "STIX", the STN-family extended identify command used
// to distinguish an OBDLink-class adapter from a plain ELM327 clone.
func STIExtended() Command {
	return Command{Wire: "STIX", Parse: parseText}
}

// UniCarScanIdentify builds "AT#1".
func UniCarScanIdentify() Command {
	return Command{Wire: "AT#1", Parse: parseText}
}
