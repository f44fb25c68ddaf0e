package sip2

// Terminator marks the end of a SIP2 message on the wire.
const Terminator byte = '\r'

// Field identifiers of the envelope fields appended by this package.
const (
	SeqFieldID      = "AY"
	ChecksumFieldID = "AZ"
)

// ChecksumLen is the number of hex digits in the checksum field.
const ChecksumLen = 4

const upperHex = "0123456789ABCDEF"

// ComputeChecksum returns the SIP2 checksum of msg: the two's complement of the
// sum of all byte values, truncated to 16 bits.
//
// The caller passes everything that precedes the checksum digits, which for a
// well-formed message includes the "AZ" marker. Empty input yields 0.
func ComputeChecksum(msg []byte) uint16 {
	var sum uint16
	for _, b := range msg {
		sum += uint16(b)
	}

	return ^sum + 1
}

// FormatChecksum renders cs as exactly four zero-padded uppercase hex digits.
func FormatChecksum(cs uint16) string {
	var buf [ChecksumLen]byte

	return string(appendChecksumHex(buf[:0], cs))
}

// AppendChecksum computes the checksum over msg and appends its four hex digits.
func AppendChecksum(msg []byte) []byte {
	return appendChecksumHex(msg, ComputeChecksum(msg))
}

func appendChecksumHex(dst []byte, cs uint16) []byte {
	return append(dst,
		upperHex[cs>>12&0xF],
		upperHex[cs>>8&0xF],
		upperHex[cs>>4&0xF],
		upperHex[cs&0xF],
	)
}

// VerifyMode selects how a trailing terminator is trimmed before verification.
type VerifyMode uint8

const (
	// VerifyTerminator strips exactly one trailing terminator. This is the default.
	VerifyTerminator VerifyMode = iota
	// VerifyLegacyTrim strips the terminator and the byte before it, matching
	// older SIP2 test clients bit for bit.
	VerifyLegacyTrim
)

func (m VerifyMode) String() string {
	switch m {
	case VerifyTerminator:
		return "terminator"
	case VerifyLegacyTrim:
		return "legacy"
	default:
		return "unknown"
	}
}

// verify dispatches to Verify or VerifyLegacy.
func (m VerifyMode) verify(msg []byte) bool {
	if m == VerifyLegacyTrim {
		return VerifyLegacy(msg)
	}

	return Verify(msg)
}

// Verify reports whether msg is intact.
//
// A trailing terminator is removed, then the tail is inspected for "AZ"
// followed by four hex digits. When present the checksum is recomputed over
// everything before the digits and compared case-sensitively. A message that
// carries no checksum field is considered valid.
func Verify(msg []byte) bool {
	if n := len(msg); n > 0 && msg[n-1] == Terminator {
		msg = msg[:n-1]
	}

	return verifyTail(msg)
}

// VerifyLegacy is Verify with the trimming of older SIP2 test clients:
// when msg ends in a terminator, two bytes are removed instead of one.
//
// For a response of the form "...AZxxxx\r" this cuts into the checksum digits,
// so the marker is no longer found and the response is accepted unchecked.
// It exists for wire compatibility with legacy peers and tooling only.
func VerifyLegacy(msg []byte) bool {
	if n := len(msg); n > 0 && msg[n-1] == Terminator {
		msg = msg[:max(n-2, 0)]
	}

	return verifyTail(msg)
}

func verifyTail(msg []byte) bool {
	n := len(msg)
	if n < len(ChecksumFieldID)+ChecksumLen {
		return true
	}

	markerAt := n - ChecksumLen - len(ChecksumFieldID)
	if string(msg[markerAt:n-ChecksumLen]) != ChecksumFieldID {
		return true
	}

	var want [ChecksumLen]byte
	appendChecksumHex(want[:0], ComputeChecksum(msg[:n-ChecksumLen]))

	return string(msg[n-ChecksumLen:]) == string(want[:])
}
