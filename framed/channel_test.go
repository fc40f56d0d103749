package framed_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/dcreager/framed-fields-go/framed"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedStream returns its chunks one Read at a time, then io.EOF.  Writes
// are recorded separately.
type chunkedStream struct {
	chunks [][]byte
	reads  int
	writes [][]byte
}

func (s *chunkedStream) Read(p []byte) (int, error) {
	s.reads++
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.chunks[0])
	s.chunks[0] = s.chunks[0][n:]
	if len(s.chunks[0]) == 0 {
		s.chunks = s.chunks[1:]
	}
	return n, nil
}

func (s *chunkedStream) Write(p []byte) (int, error) {
	s.writes = append(s.writes, append([]byte(nil), p...))
	return len(p), nil
}

func chunks(parts ...string) *chunkedStream {
	s := &chunkedStream{}
	for _, part := range parts {
		s.chunks = append(s.chunks, []byte(part))
	}
	return s
}

type readWriter struct {
	io.Reader
	io.Writer
}

func TestSendReceiveLoopback(t *testing.T) {
	var stream bytes.Buffer
	ch := framed.NewChannel(&stream, framed.DefaultOptions())

	require.NoError(t, ch.Send([]string{"a", "b;c", "d$e"}))
	assert.Equal(t, `a;b\x3bc;d\x24e$`, stream.String())

	fields, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b;c", "d$e"}, fields)
	assert.Equal(t, 0, ch.Buffered())
}

func TestSendIsOneWrite(t *testing.T) {
	stream := chunks()
	ch := framed.NewChannel(stream, framed.DefaultOptions())
	require.NoError(t, ch.Send([]string{"x", "y"}))
	require.NoError(t, ch.Send(nil))
	require.Len(t, stream.writes, 2)
	assert.Equal(t, "x;y$", string(stream.writes[0]))
	assert.Equal(t, "$", string(stream.writes[1]))
}

func TestSendEscapeAll(t *testing.T) {
	var stream bytes.Buffer
	opts := framed.DefaultOptions()
	opts.Mode = framed.JoinEscapeAll
	ch := framed.NewChannel(&stream, opts)

	require.NoError(t, ch.Send([]string{"a$b", "c"}))
	assert.Equal(t, `a\x24b;c$`, stream.String())

	fields, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"a$b", "c"}, fields)
}

type failingWriter struct {
	n   int
	err error
}

func (w failingWriter) Write(p []byte) (int, error) {
	if w.n > len(p) {
		return len(p), w.err
	}
	return w.n, w.err
}

func TestSendWriteErrors(t *testing.T) {
	boom := errors.New("boom")
	ch := framed.NewChannel(readWriter{strings.NewReader(""), failingWriter{err: boom}}, framed.DefaultOptions())
	assert.Equal(t, boom, ch.Send([]string{"a"}))

	ch = framed.NewChannel(readWriter{strings.NewReader(""), failingWriter{n: 1}}, framed.DefaultOptions())
	assert.Equal(t, io.ErrShortWrite, ch.Send([]string{"abc"}))
}

const twoMessages = "x;y$a;b$"

func checkTwoMessages(t *testing.T, stream io.ReadWriter) {
	ch := framed.NewChannel(stream, framed.DefaultOptions())

	fields, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, fields)

	fields, err = ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fields)

	_, err = ch.Receive()
	assert.Equal(t, io.EOF, err)
}

func TestReceiveAcrossChunkBoundaries(t *testing.T) {
	for i := 0; i <= len(twoMessages); i++ {
		checkTwoMessages(t, chunks(twoMessages[:i], twoMessages[i:]))
	}
	for i := 0; i <= len(twoMessages); i++ {
		for j := i; j <= len(twoMessages); j++ {
			checkTwoMessages(t, chunks(twoMessages[:i], twoMessages[i:j], twoMessages[j:]))
		}
	}
	checkTwoMessages(t, readWriter{iotest.OneByteReader(strings.NewReader(twoMessages)), io.Discard})
}

func TestReceiveQueuedMessagesWithoutReading(t *testing.T) {
	stream := chunks(twoMessages)
	ch := framed.NewChannel(stream, framed.DefaultOptions())

	_, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, 1, stream.reads)
	assert.Equal(t, len("a;b$"), ch.Buffered())

	fields, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fields)
	assert.Equal(t, 1, stream.reads)
}

func TestReceiveUnexpectedEOF(t *testing.T) {
	ch := framed.NewChannel(chunks("x;y$", "a;"), framed.DefaultOptions())

	_, err := ch.Receive()
	require.NoError(t, err)

	_, err = ch.Receive()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, 2, ch.Buffered())
}

func TestReceiveDefersErrorReturnedWithData(t *testing.T) {
	r := iotest.DataErrReader(strings.NewReader("a;b$"))
	ch := framed.NewChannel(readWriter{r, io.Discard}, framed.DefaultOptions())

	fields, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fields)

	_, err = ch.Receive()
	assert.Equal(t, io.EOF, err)
}

func TestReceiveReadErrorIsNotSticky(t *testing.T) {
	timeout := errors.New("timeout")
	r := strings.NewReader("a$")
	calls := 0
	stream := readWriter{readerFunc(func(p []byte) (int, error) {
		calls++
		if calls == 1 {
			return 0, timeout
		}
		return r.Read(p)
	}), io.Discard}
	ch := framed.NewChannel(stream, framed.DefaultOptions())

	_, err := ch.Receive()
	assert.Equal(t, timeout, err)

	fields, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, fields)
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}

func TestReceiveNoProgress(t *testing.T) {
	stream := readWriter{readerFunc(func(p []byte) (int, error) { return 0, nil }), io.Discard}
	ch := framed.NewChannel(stream, framed.DefaultOptions())
	_, err := ch.Receive()
	assert.Equal(t, io.ErrNoProgress, err)
}

func TestReceiveMaxBufferSize(t *testing.T) {
	opts := framed.DefaultOptions()
	opts.MaxBufferSize = 4

	ch := framed.NewChannel(chunks("ab$", "abcdefgh$"), opts)
	fields, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"ab"}, fields)

	_, err = ch.Receive()
	assert.Equal(t, framed.ErrBufferFull, err)
	assert.Equal(t, 4, ch.Buffered())

	// The full buffer is never drained, so the channel stays stuck.
	_, err = ch.Receive()
	assert.Equal(t, framed.ErrBufferFull, err)
	assert.Equal(t, 4, ch.Buffered())

	// A message that exactly fills the buffer is fine.
	opts.MaxBufferSize = 3
	ch = framed.NewChannel(chunks("ab$"), opts)
	fields, err = ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, []string{"ab"}, fields)
}

type recordingObserver struct {
	sent, received [][2]int
}

func (o *recordingObserver) MessageSent(fields, bytes int) {
	o.sent = append(o.sent, [2]int{fields, bytes})
}

func (o *recordingObserver) MessageReceived(fields, bytes int) {
	o.received = append(o.received, [2]int{fields, bytes})
}

func TestObserverAndLogger(t *testing.T) {
	var logs bytes.Buffer
	observer := &recordingObserver{}
	opts := framed.DefaultOptions()
	opts.Observer = observer
	opts.Logger = zerolog.New(&logs).Level(zerolog.DebugLevel)

	var stream bytes.Buffer
	ch := framed.NewChannel(&stream, opts)
	require.NoError(t, ch.Send([]string{"a", "b;c"}))
	_, err := ch.Receive()
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{2, len(`a;b\x3bc$`)}}, observer.sent)
	assert.Equal(t, [][2]int{{2, len(`a;b\x3bc$`)}}, observer.received)
	assert.Contains(t, logs.String(), `"message":"sent message"`)
	assert.Contains(t, logs.String(), `"message":"received message"`)
}
