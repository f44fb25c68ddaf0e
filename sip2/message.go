package sip2

import (
	"fmt"
	"strconv"
)

// Message is a SIP2 request ready to be framed.
//
// Body is the encoded SIP2 command and is opaque to this package.
// A zero SeqNum requests neither the sequence nor the checksum field.
type Message struct {
	Body   string
	SeqNum int
}

// Sequenced reports whether the message carries the sequence and checksum fields.
func (m Message) Sequenced() bool {
	return m.SeqNum != 0
}

// Encode returns the wire form of the message, terminator included.
func (m Message) Encode() ([]byte, error) {
	return AppendMessage(nil, m.Body, m.SeqNum)
}

// String returns the wire form, or an empty string when the message cannot be encoded.
func (m Message) String() string {
	data, err := m.Encode()
	if err != nil {
		return ""
	}

	return string(data)
}

// AppendMessage appends the framed form of body to dst:
//
//	<body>["AY"<digit>"AZ"<checksum>]"\r"
//
// Only the first character of the decimal form of seqNum is used as the
// sequence digit, so 12 is sent as "AY1". The checksum covers the bytes
// appended by this call, not any prior content of dst.
func AppendMessage(dst []byte, body string, seqNum int) ([]byte, error) {
	if seqNum < 0 {
		return dst, fmt.Errorf("%w: %d", ErrInvalidSeqNum, seqNum)
	}

	start := len(dst)
	dst = append(dst, body...)

	if seqNum != 0 {
		dst = append(dst, SeqFieldID...)
		dst = append(dst, strconv.Itoa(seqNum)[0])
		dst = append(dst, ChecksumFieldID...)
		dst = appendChecksumHex(dst, ComputeChecksum(dst[start:]))
	}

	return append(dst, Terminator), nil
}

// ParseSeqField extracts the sequence digit from a message ending in
// "AY"<digit>"AZ"<4 hex digits>, with or without a trailing terminator.
// It reports false when the envelope fields are absent.
func ParseSeqField(msg []byte) (int, bool) {
	if n := len(msg); n > 0 && msg[n-1] == Terminator {
		msg = msg[:n-1]
	}

	// "AY" + digit + "AZ" + checksum
	const tailLen = len(SeqFieldID) + 1 + len(ChecksumFieldID) + ChecksumLen

	n := len(msg)
	if n < tailLen {
		return 0, false
	}

	tail := msg[n-tailLen:]
	if string(tail[:2]) != SeqFieldID || string(tail[3:5]) != ChecksumFieldID {
		return 0, false
	}

	digit := tail[2]
	if digit < '0' || digit > '9' {
		return 0, false
	}

	return int(digit - '0'), true
}
