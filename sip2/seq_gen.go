package sip2

import (
	"sync"
	"sync/atomic"
)

// MaxSeqNum is the largest sequence number representable by the single digit
// sequence field.
const MaxSeqNum = 9

// SeqGen hands out sequence numbers cycling through 1..MaxSeqNum.
//
// Zero is never produced because a zero sequence number disables the sequence
// and checksum fields. SeqGen is safe for concurrent use.
type SeqGen struct {
	n atomic.Uint32
}

// NewSeqGen creates a generator whose first Next returns 1.
func NewSeqGen() *SeqGen {
	return &SeqGen{}
}

// Next returns the next sequence number.
func (g *SeqGen) Next() int {
	return int((g.n.Add(1)-1)%MaxSeqNum) + 1
}

// Reset restarts the cycle so that the next call to Next returns 1.
func (g *SeqGen) Reset() {
	g.n.Store(0)
}

var (
	seqGenInst *SeqGen
	seqGenOnce sync.Once
)

func getSeqGen() *SeqGen {
	seqGenOnce.Do(func() {
		seqGenInst = NewSeqGen()
	})

	return seqGenInst
}

// NextSeqNum returns the next sequence number from the process wide generator.
func NextSeqNum() int {
	return getSeqGen().Next()
}
