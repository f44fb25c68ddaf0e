package sip2

import (
	"sync/atomic"
)

// ClientMetrics contains atomic metrics for a SIP2 client.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ClientMetrics struct {
	// RequestSendCount indicates the number of requests fully written.
	RequestSendCount atomic.Uint64
	// ResponseRecvCount indicates the number of responses read.
	ResponseRecvCount atomic.Uint64
	// VerifyFailCount indicates the number of responses whose checksum did not match.
	VerifyFailCount atomic.Uint64
	// TransportErrCount indicates the number of failed writes or reads.
	TransportErrCount atomic.Uint64
	// ProtocolErrCount indicates the number of operations rejected for the transport.
	ProtocolErrCount atomic.Uint64

	// BytesSent indicates the total number of request bytes written.
	BytesSent atomic.Uint64
	// BytesRecv indicates the total number of response bytes read.
	BytesRecv atomic.Uint64
}

func (m *ClientMetrics) incRequestSendCount(n int) {
	m.RequestSendCount.Add(1)
	m.BytesSent.Add(uint64(n)) //nolint:gosec // n is a non-negative length
}

func (m *ClientMetrics) incResponseRecvCount(n int) {
	m.ResponseRecvCount.Add(1)
	m.BytesRecv.Add(uint64(n)) //nolint:gosec // n is a non-negative length
}

func (m *ClientMetrics) incVerifyFailCount() {
	m.VerifyFailCount.Add(1)
}

func (m *ClientMetrics) incTransportErrCount() {
	m.TransportErrCount.Add(1)
}

func (m *ClientMetrics) incProtocolErrCount() {
	m.ProtocolErrCount.Add(1)
}
