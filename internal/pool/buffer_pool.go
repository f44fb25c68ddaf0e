package pool

import (
	"sync"
)

var bufferPool sync.Pool

// GetBuffer returns a byte slice of length size from the pool.
//
// The contents are not zeroed. Return the buffer to the pool with PutBuffer.
func GetBuffer(size int) []byte {
	if v := bufferPool.Get(); v != nil {
		buf, _ := v.(*[]byte) // only *[]byte is ever put into the pool
		if cap(*buf) >= size {
			return (*buf)[:size]
		}
	}
	return make([]byte, size)
}

// PutBuffer returns buf to the pool.
//
// buf cannot be accessed after returning to the pool.
func PutBuffer(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	buf = buf[:0]
	bufferPool.Put(&buf)
}
