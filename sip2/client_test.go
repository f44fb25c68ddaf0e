package sip2

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/arloliu/go-sip2/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, rw io.ReadWriter, opts ...ClientOption) *Client {
	t.Helper()

	c, err := NewClient(rw, append([]ClientOption{WithLogger(logger.NewNop())}, opts...)...)
	require.NoError(t, err)

	return c
}

func TestNewClient_NilStream(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorIs(t, err, ErrStreamNil)
}

func TestNewClient_InvalidOption(t *testing.T) {
	_, err := NewClient(newFakeStream(RawTransportPort), WithMaxReadSize(-1))
	require.Error(t, err)
}

func TestClient_SendWithoutSequence(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "96\r")
	c := newTestClient(t, fs)

	resp, err := c.Send("9900302.00", 0)
	require.NoError(t, err)

	assert.Equal(t, "9900302.00\r", fs.written.String())
	assert.NotContains(t, fs.written.String(), SeqFieldID)
	assert.NotContains(t, fs.written.String(), ChecksumFieldID)
	assert.Equal(t, 1, fs.writeCalls)

	assert.Equal(t, "96\r", resp.String())
	assert.True(t, resp.Verified)
}

func TestClient_SendWithSequence(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "941AY1AZFDFC\r")
	c := newTestClient(t, fs)

	resp, err := c.Send(LoginBody("scclient", "clientpwd", "The basement"), 1)
	require.NoError(t, err)

	assert.Equal(t, "9300CNscclient|COclientpwd|CPThe basement|AY1AZEEF5\r", fs.written.String())
	assert.Equal(t, []byte("941AY1AZFDFC\r"), resp.Raw)
	assert.Equal(t, fs.written.Bytes(), resp.Request)
	assert.True(t, resp.Verified)

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.RequestSendCount.Load())
	assert.Equal(t, uint64(1), m.ResponseRecvCount.Load())
	assert.Equal(t, uint64(len("9300CNscclient|COclientpwd|CPThe basement|AY1AZEEF5\r")), m.BytesSent.Load())
	assert.Equal(t, uint64(len("941AY1AZFDFC\r")), m.BytesRecv.Load())
	assert.Zero(t, m.VerifyFailCount.Load())
}

func TestClient_SendNegativeSeqNum(t *testing.T) {
	fs := newFakeStream(RawTransportPort)
	c := newTestClient(t, fs)

	_, err := c.Send("99", -5)
	require.ErrorIs(t, err, ErrInvalidSeqNum)
	assert.Zero(t, fs.writeCalls)
}

func TestClient_VerificationFailureIsNotAnError(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "941AY1AZFDFD")

	ml := logger.NewMockLogger()
	ml.On("Debug", mock.Anything, mock.Anything).Return()
	ml.On("Warn", "sip2: response checksum mismatch", mock.Anything).Return()

	c, err := NewClient(fs, WithLogger(ml))
	require.NoError(t, err)

	resp, err := c.Send("93", 1)
	require.NoError(t, err)
	assert.False(t, resp.Verified)
	assert.Equal(t, "941AY1AZFDFD", resp.String())
	assert.Equal(t, uint64(1), c.Metrics().VerifyFailCount.Load())

	ml.AssertCalled(t, "Warn", "sip2: response checksum mismatch", mock.Anything)
}

func TestClient_LegacyVerify(t *testing.T) {
	// The damaged last digit is trimmed away by the legacy policy.
	fs := newFakeStream(RawTransportPort, "941AY1AZFDF0\r", "941AY1AZFDF0\r")

	legacy := newTestClient(t, fs, WithLegacyVerify())
	resp, err := legacy.Send("93", 1)
	require.NoError(t, err)
	assert.True(t, resp.Verified)

	strict := newTestClient(t, fs)
	resp, err = strict.Send("93", 1)
	require.NoError(t, err)
	assert.False(t, resp.Verified)
}

func TestClient_SingleReadIsBounded(t *testing.T) {
	long := strings.Repeat("x", 1500) + "\r"
	fs := newFakeStream(RawTransportPort, long)
	c := newTestClient(t, fs)

	resp, err := c.Send("99", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Raw, DefaultMaxReadSize)
}

func TestClient_SingleReadDoesNotAssemble(t *testing.T) {
	// The reply arrives in two pieces; only the first read is returned.
	fs := newFakeStream(RawTransportPort, "94", "1\r")
	c := newTestClient(t, fs)

	resp, err := c.Send("93", 0)
	require.NoError(t, err)
	assert.Equal(t, "94", resp.String())
}

func TestClient_SingleReadWithEOF(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "941\r")
	fs.eofWith = true
	c := newTestClient(t, fs)

	resp, err := c.Send("93", 0)
	require.NoError(t, err)
	assert.Equal(t, "941\r", resp.String())

	_, err = c.Send("93", 0)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(1), c.Metrics().TransportErrCount.Load())
}

func TestClient_ReadUntilTerminator(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "94", "1AY1AZFDFC\r98YY", "YYNN\r")
	c := newTestClient(t, fs, WithReadUntilTerminator())

	resp, err := c.Send("93", 1)
	require.NoError(t, err)
	assert.Equal(t, "941AY1AZFDFC\r", resp.String())
	assert.True(t, resp.Verified)

	resp, err = c.Send("99", 0)
	require.NoError(t, err)
	assert.Equal(t, "98YYYYNN\r", resp.String())
}

func TestClient_ReadUntilTerminatorTooLarge(t *testing.T) {
	fs := newFakeStream(RawTransportPort, strings.Repeat("x", 64))
	c := newTestClient(t, fs, WithReadUntilTerminator(), WithMaxReadSize(32))

	_, err := c.Send("99", 0)
	require.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestClient_ReadUntilTerminatorTooLargeDiscardsTail(t *testing.T) {
	fs := newFakeStream(RawTransportPort, strings.Repeat("x", 40)+"\r", "96\r")
	c := newTestClient(t, fs, WithReadUntilTerminator(), WithMaxReadSize(32))

	_, err := c.Send("99", 0)
	require.ErrorIs(t, err, ErrResponseTooLarge)

	resp, err := c.Send("99", 0)
	require.NoError(t, err)
	assert.Equal(t, "96\r", resp.String())
}

func TestClient_ReadUntilTerminatorTooLargeSpansReads(t *testing.T) {
	fs := newFakeStream(RawTransportPort,
		strings.Repeat("x", 40), strings.Repeat("y", 40), "z\r941\r")
	c := newTestClient(t, fs, WithReadUntilTerminator(), WithMaxReadSize(32))

	_, err := c.Send("99", 0)
	require.ErrorIs(t, err, ErrResponseTooLarge)

	resp, err := c.Send("93", 0)
	require.NoError(t, err)
	assert.Equal(t, "941\r", resp.String())
}

func TestClient_ReadUntilTerminatorPartialBeforeEOF(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "941")
	c := newTestClient(t, fs, WithReadUntilTerminator())

	resp, err := c.Send("93", 0)
	require.NoError(t, err)
	assert.Equal(t, "941", resp.String())
}

func TestClient_WriteError(t *testing.T) {
	fs := newFakeStream(RawTransportPort)
	fs.writeErr = io.ErrClosedPipe
	c := newTestClient(t, fs)

	_, err := c.Send("99", 0)
	require.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Contains(t, err.Error(), "sip2: write request")
	assert.Equal(t, uint64(1), c.Metrics().TransportErrCount.Load())
	assert.Zero(t, c.Metrics().RequestSendCount.Load())
}

func TestClient_ShortWrite(t *testing.T) {
	fs := newFakeStream(RawTransportPort)
	fs.shortWrite = true
	c := newTestClient(t, fs)

	_, err := c.Send("99", 0)
	require.ErrorIs(t, err, ErrShortWrite)
}

func TestClient_ReadError(t *testing.T) {
	fs := newFakeStream(RawTransportPort)
	fs.readErr = errors.New("connection reset by peer")
	c := newTestClient(t, fs)

	_, err := c.Send("99", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, "99\r", fs.written.String())
}

func TestClient_Login(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "941\r")
	c := newTestClient(t, fs)

	resp, err := c.Login("scclient", "clientpwd", "The basement", 0)
	require.NoError(t, err)

	assert.Equal(t, "9300CNscclient|COclientpwd|CPThe basement|\r", fs.written.String())
	assert.Equal(t, "941\r", resp.String())
	assert.True(t, resp.Verified)
}

func TestClient_LoginWrongPort(t *testing.T) {
	fs := newFakeStream(6001, "941\r")
	c := newTestClient(t, fs)

	_, err := c.Login("scclient", "clientpwd", "The basement", 1)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnsupportedTransport)

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "login", perr.Op)
	assert.Equal(t, 6001, perr.Port)
	assert.Contains(t, err.Error(), "remote port 6001")

	assert.Zero(t, fs.writeCalls)
	assert.Zero(t, fs.written.Len())
	assert.Equal(t, uint64(1), c.Metrics().ProtocolErrCount.Load())
}

func TestClient_LoginWithoutRemoteAddr(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "941\r")
	c := newTestClient(t, readWriter{Reader: fs, Writer: fs})

	_, err := c.Login("u", "p", "l", 0)

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Zero(t, perr.Port)
	assert.Contains(t, err.Error(), "unknown remote port")
	assert.Zero(t, fs.writeCalls)
}

func TestClient_LoginCustomRawPort(t *testing.T) {
	fs := newFakeStream(6001, "941\r")
	c := newTestClient(t, fs, WithRawPort(6001))

	_, err := c.Login("u", "p", "l", 0)
	require.NoError(t, err)
	assert.Equal(t, "9300CNu|COp|CPl|\r", fs.written.String())
}

func TestClient_AutoSequence(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "941\r", "96\r")
	gen := NewSeqGen()
	c := newTestClient(t, fs, WithSeqGen(gen))

	_, err := c.LoginAuto(LoginParams{Username: "u", Password: "p", Location: "l"})
	require.NoError(t, err)

	_, err = c.SendAuto("9900302.00")
	require.NoError(t, err)

	written := fs.written.String()
	assert.Contains(t, written, "9300CNu|COp|CPl|AY1AZ")
	assert.Contains(t, written, "9900302.00AY2AZ")
}

func TestClient_Close(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "96\r")
	c := newTestClient(t, fs)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Send("99", 0)
	require.ErrorIs(t, err, ErrClientClosed)

	_, err = c.Login("u", "p", "l", 0)
	require.ErrorIs(t, err, ErrClientClosed)
	assert.Zero(t, fs.writeCalls)
}

func TestClient_RemoteAddr(t *testing.T) {
	c := newTestClient(t, newFakeStream(RawTransportPort))
	assert.Equal(t, "127.0.0.1:5300", c.RemoteAddr().String())

	fs := newFakeStream(RawTransportPort)
	c = newTestClient(t, readWriter{Reader: fs, Writer: fs})
	assert.Nil(t, c.RemoteAddr())
}

func TestClient_ReadTimeout(t *testing.T) {
	local, remote := newPipeConn(t)
	c := newTestClient(t, local, WithReadTimeout(50*time.Millisecond))

	done := make(chan []byte, 1)
	go func() {
		done <- readRequest(t, remote)
		// never reply
	}()

	_, err := c.Send("99", 0)
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.Equal(t, "99\r", string(<-done))
}

func TestClient_WriteTimeout(t *testing.T) {
	local, _ := newPipeConn(t)
	c := newTestClient(t, local, WithWriteTimeout(50*time.Millisecond))

	// Nobody reads the other end of the pipe.
	_, err := c.Send("99", 0)
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestClient_OverPipe(t *testing.T) {
	local, remote := newPipeConn(t)
	c := newTestClient(t, local)

	go func() {
		req := readRequest(t, remote)
		seq, _ := ParseSeqField(req)
		reply, _ := AppendMessage(nil, "941", seq)
		_, _ = remote.Write(reply)
	}()

	resp, err := c.Send("9300CNu|COp|CPl|", 4)
	require.NoError(t, err)
	assert.Equal(t, "941AY4AZFDF9\r", resp.String())
	assert.True(t, resp.Verified)
}

func TestSend_PackageLevel(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "96\r")

	resp, err := Send(fs, "99", 0)
	require.NoError(t, err)
	assert.Equal(t, "99\r", fs.written.String())
	assert.Equal(t, "96\r", resp.String())
	assert.True(t, resp.Verified)

	_, err = Send(nil, "99", 0)
	require.ErrorIs(t, err, ErrStreamNil)
}

func TestLogin_PackageLevel(t *testing.T) {
	fs := newFakeStream(RawTransportPort, "941AY3AZFDFA\r")

	resp, err := Login(fs, "scclient", "clientpwd", "The basement", 3)
	require.NoError(t, err)
	assert.True(t, resp.Verified)
	assert.True(t, strings.HasPrefix(fs.written.String(), "9300CNscclient|COclientpwd|CPThe basement|AY3AZ"))

	wrong := newFakeStream(5301)
	_, err = Login(wrong, "scclient", "clientpwd", "The basement", 0)
	require.ErrorIs(t, err, ErrUnsupportedTransport)
	assert.Zero(t, wrong.writeCalls)
}
