package linkuds

import "fmt"

// NegativeResponseCode is the third byte of a UDS negative response
// [0x7F, sid, nrc], per ISO 14229-1. Values outside the table below are
// still valid wire values (vendor-specific or reserved ranges); String
// falls back to a numeric rendering for them, matching how
// kwp2000.TranslateErrorCode handles an unrecognized code.
type NegativeResponseCode byte

const (
	NRCGeneralReject                              NegativeResponseCode = 0x10
	NRCServiceNotSupported                        NegativeResponseCode = 0x11
	NRCSubFunctionNotSupported                    NegativeResponseCode = 0x12
	NRCIncorrectMessageLengthOrInvalidFormat      NegativeResponseCode = 0x13
	NRCResponseTooLong                            NegativeResponseCode = 0x14
	NRCBusyRepeatRequest                          NegativeResponseCode = 0x21
	NRCConditionsNotCorrect                       NegativeResponseCode = 0x22
	NRCRequestSequenceError                       NegativeResponseCode = 0x24
	NRCNoResponseFromSubnetComponent              NegativeResponseCode = 0x25
	NRCFailurePreventsExecutionOfRequestedAction  NegativeResponseCode = 0x26
	NRCRequestOutOfRange                          NegativeResponseCode = 0x31
	NRCSecurityAccessDenied                       NegativeResponseCode = 0x33
	NRCInvalidKey                                 NegativeResponseCode = 0x35
	NRCExceedNumberOfAttempts                     NegativeResponseCode = 0x36
	NRCRequiredTimeDelayNotExpired                NegativeResponseCode = 0x37
	NRCUploadDownloadNotAccepted                  NegativeResponseCode = 0x70
	NRCTransferDataSuspended                      NegativeResponseCode = 0x71
	NRCGeneralProgrammingFailure                  NegativeResponseCode = 0x72
	NRCWrongBlockSequenceCounter                  NegativeResponseCode = 0x73
	NRCRequestCorrectlyReceivedResponsePending    NegativeResponseCode = 0x78
	NRCSubFunctionNotSupportedInActiveSession     NegativeResponseCode = 0x7E
	NRCServiceNotSupportedInActiveSession         NegativeResponseCode = 0x7F
	NRCRpmTooHigh                                 NegativeResponseCode = 0x81
	NRCRpmTooLow                                  NegativeResponseCode = 0x82
	NRCEngineIsRunning                            NegativeResponseCode = 0x83
	NRCEngineIsNotRunning                         NegativeResponseCode = 0x84
	NRCEngineRunTimeTooLow                        NegativeResponseCode = 0x85
	NRCTemperatureTooHigh                         NegativeResponseCode = 0x86
	NRCTemperatureTooLow                          NegativeResponseCode = 0x87
	NRCVehicleSpeedTooHigh                        NegativeResponseCode = 0x88
	NRCVehicleSpeedTooLow                         NegativeResponseCode = 0x89
	NRCThrottlePedalTooHigh                       NegativeResponseCode = 0x8A
	NRCThrottlePedalTooLow                        NegativeResponseCode = 0x8B
	NRCTransmissionRangeNotInNeutral               NegativeResponseCode = 0x8C
	NRCTransmissionRangeNotInGear                  NegativeResponseCode = 0x8D
	NRCBrakeSwitchesNotClosed                     NegativeResponseCode = 0x8F
	NRCShifterLeverNotInPark                      NegativeResponseCode = 0x90
	NRCTorqueConverterClutchLocked                NegativeResponseCode = 0x91
	NRCVoltageTooHigh                             NegativeResponseCode = 0x92
	NRCVoltageTooLow                              NegativeResponseCode = 0x93
)

var nrcNames = map[NegativeResponseCode]string{
	NRCGeneralReject:                             "general reject",
	NRCServiceNotSupported:                       "service not supported",
	NRCSubFunctionNotSupported:                   "sub-function not supported",
	NRCIncorrectMessageLengthOrInvalidFormat:     "incorrect message length or invalid format",
	NRCResponseTooLong:                           "response too long",
	NRCBusyRepeatRequest:                         "busy, repeat request",
	NRCConditionsNotCorrect:                      "conditions not correct",
	NRCRequestSequenceError:                      "request sequence error",
	NRCNoResponseFromSubnetComponent:             "no response from subnet component",
	NRCFailurePreventsExecutionOfRequestedAction: "failure prevents execution of requested action",
	NRCRequestOutOfRange:                         "request out of range",
	NRCSecurityAccessDenied:                      "security access denied",
	NRCInvalidKey:                                "invalid key",
	NRCExceedNumberOfAttempts:                    "exceeded number of attempts",
	NRCRequiredTimeDelayNotExpired:               "required time delay not expired",
	NRCUploadDownloadNotAccepted:                 "upload/download not accepted",
	NRCTransferDataSuspended:                     "transfer data suspended",
	NRCGeneralProgrammingFailure:                 "general programming failure",
	NRCWrongBlockSequenceCounter:                 "wrong block sequence counter",
	NRCRequestCorrectlyReceivedResponsePending:   "request correctly received, response pending",
	NRCSubFunctionNotSupportedInActiveSession:    "sub-function not supported in active session",
	NRCServiceNotSupportedInActiveSession:        "service not supported in active session",
	NRCRpmTooHigh:                                "RPM too high",
	NRCRpmTooLow:                                 "RPM too low",
	NRCEngineIsRunning:                           "engine is running",
	NRCEngineIsNotRunning:                        "engine is not running",
	NRCEngineRunTimeTooLow:                       "engine run time too low",
	NRCTemperatureTooHigh:                        "temperature too high",
	NRCTemperatureTooLow:                         "temperature too low",
	NRCVehicleSpeedTooHigh:                       "vehicle speed too high",
	NRCVehicleSpeedTooLow:                        "vehicle speed too low",
	NRCThrottlePedalTooHigh:                      "throttle/pedal too high",
	NRCThrottlePedalTooLow:                       "throttle/pedal too low",
	NRCTransmissionRangeNotInNeutral:             "transmission range not in neutral",
	NRCTransmissionRangeNotInGear:                "transmission range not in gear",
	NRCBrakeSwitchesNotClosed:                    "brake switch(es) not closed",
	NRCShifterLeverNotInPark:                     "shifter lever not in park",
	NRCTorqueConverterClutchLocked:               "torque converter clutch locked",
	NRCVoltageTooHigh:                            "voltage too high",
	NRCVoltageTooLow:                             "voltage too low",
}

// IsPending reports whether nrc is the distinguished 0x78 "response
// pending" code: an intermediate signal, not a terminal failure. Callers
// that receive it should keep waiting for the real response rather than
// surfacing a NegativeResponseError.
func (nrc NegativeResponseCode) IsPending() bool {
	return nrc == NRCRequestCorrectlyReceivedResponsePending
}

func (nrc NegativeResponseCode) String() string {
	if name, ok := nrcNames[nrc]; ok {
		return fmt.Sprintf("%s (0x%02X)", name, byte(nrc))
	}
	return fmt.Sprintf("NRC 0x%02X", byte(nrc))
}
