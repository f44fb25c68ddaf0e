// Package sip2 provides a client implementation of the message envelope of the
// 3M Standard Interchange Protocol version 2 (SIP2).
//
// SIP2 is a line-oriented request/response protocol spoken between library
// self-check kiosks or circulation terminals and an integrated library system
// (the ACS, Automated Circulation System) over a persistent socket connection.
//
// # Wire Format
//
// A request produced by this package looks like:
//
//	<body>["AY"<seq digit>"AZ"<4 hex digits>]"\r"
//
// The body is an already encoded SIP2 command (e.g. "9300CNuser|COpass|CPloc|").
// When a non-zero sequence number is supplied the sequence field (AY) and the
// checksum field (AZ) are appended. The checksum is the two's complement of the
// 16-bit sum of every byte up to and including the "AZ" marker, written as four
// uppercase hexadecimal digits.
//
// # Verification
//
// Responses are verified permissively: a response without a checksum field is
// accepted, a response with one is accepted only when the checksum recomputes.
// A mismatch is reported through [Response.Verified], never as an error.
//
// Two trimming policies exist for responses ending in the terminator. [Verify]
// strips exactly the terminator. [VerifyLegacy] strips the terminator plus the
// byte before it, the trimming used by older SIP2 test clients, for peers
// that depend on it. Select the latter per client with
// [WithLegacyVerify].
//
// # Transport
//
// A [Client] performs exactly one write followed by one read per exchange and
// applies no retry. By default the read is a single Read call of at most
// [DefaultMaxReadSize] bytes; [WithReadUntilTerminator] switches to buffered
// reads that stop at the terminator. Login is only permitted over the raw TCP
// transport, identified by the remote port ([RawTransportPort]).
package sip2
