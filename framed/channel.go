package framed

import (
	"errors"
	"io"

	"github.com/rs/zerolog"
)

const (
	defaultReadSize = 4096

	// Matches bufio: give up on a reader that keeps returning nothing.
	maxConsecutiveEmptyReads = 100
)

// Observer is notified of every message a Channel sends or receives.  The
// byte counts include the terminator.
type Observer interface {
	MessageSent(fields, bytes int)
	MessageReceived(fields, bytes int)
}

// Options configures a Channel.
type Options struct {
	// Mode selects the encoding of outgoing messages.
	Mode JoinMode
	// MaxBufferSize bounds the receive buffer.  Zero means unbounded.
	MaxBufferSize int
	// ReadSize is the size of the buffer handed to each Read call.
	ReadSize int
	Logger   zerolog.Logger
	Observer Observer
}

// DefaultOptions returns wire-compatible options with an unbounded receive
// buffer and no logging.
func DefaultOptions() Options {
	return Options{
		Mode:     JoinFirstRaw,
		ReadSize: defaultReadSize,
		Logger:   zerolog.Nop(),
	}
}

// Channel sends and receives messages over a byte stream.  Incoming bytes
// accumulate in a receive buffer owned by the channel until a terminator
// arrives; several messages delivered by a single read are handed out one per
// Receive call.
//
// A Channel is not safe for concurrent use.  Receive owns the receive buffer
// and Send touches nothing but the stream, so one goroutine may send while
// another receives, provided the stream and the Observer allow it.
type Channel struct {
	rw    io.ReadWriter
	opts  Options
	buf   []byte
	chunk []byte
	// err is a read error that arrived together with a complete message.  It
	// is reported by the next Receive that has to read.
	err error
}

// NewChannel wraps rw.  A non-positive ReadSize is replaced by the default.
func NewChannel(rw io.ReadWriter, opts Options) *Channel {
	if opts.ReadSize <= 0 {
		opts.ReadSize = defaultReadSize
	}
	if opts.MaxBufferSize > 0 && opts.ReadSize > opts.MaxBufferSize {
		opts.ReadSize = opts.MaxBufferSize
	}
	return &Channel{
		rw:    rw,
		opts:  opts,
		chunk: make([]byte, opts.ReadSize),
	}
}

// Send encodes fields as one message and writes it to the stream with a
// single Write call.  Write errors are returned unchanged.
func (c *Channel) Send(fields []string) error {
	msg := AppendMessage(nil, fields, c.opts.Mode)
	n, err := c.rw.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return io.ErrShortWrite
	}
	c.opts.Logger.Debug().Int("fields", len(fields)).Int("bytes", n).Msg("sent message")
	if c.opts.Observer != nil {
		c.opts.Observer.MessageSent(len(fields), n)
	}
	return nil
}

// Receive returns the fields of the next message.  It reads from the stream
// only while the receive buffer holds no complete message, and blocks for as
// long as the stream's Read does.
//
// If the stream ends in the middle of a message, Receive returns
// io.ErrUnexpectedEOF.  If the receive buffer would grow beyond
// Options.MaxBufferSize without a terminator, it returns ErrBufferFull; the
// buffered bytes are kept, so every later call fails the same way and the
// channel should be discarded.
func (c *Channel) Receive() ([]string, error) {
	empty := 0
	for {
		if fields, ok := c.next(); ok {
			return fields, nil
		}
		if c.err != nil {
			err := c.err
			c.err = nil
			return nil, c.readError(err)
		}
		if c.opts.MaxBufferSize > 0 && len(c.buf) >= c.opts.MaxBufferSize {
			return nil, ErrBufferFull
		}

		chunk := c.chunk
		if c.opts.MaxBufferSize > 0 && len(c.buf)+len(chunk) > c.opts.MaxBufferSize {
			chunk = chunk[:c.opts.MaxBufferSize-len(c.buf)]
		}
		n, err := c.rw.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			c.opts.Logger.Debug().Int("read", n).Int("buffered", len(c.buf)).Msg("buffered stream data")
			empty = 0
		}
		if err != nil {
			c.err = err
			continue
		}
		if n == 0 {
			empty++
			if empty >= maxConsecutiveEmptyReads {
				return nil, io.ErrNoProgress
			}
		}
	}
}

// next removes the first complete message from the receive buffer, if there
// is one.
func (c *Channel) next() ([]string, bool) {
	i := FindTerminator(c.buf)
	if i < 0 {
		return nil, false
	}
	fields := DecodeMessage(c.buf[:i])
	c.buf = c.buf[:copy(c.buf, c.buf[i+1:])]
	c.opts.Logger.Debug().Int("fields", len(fields)).Int("bytes", i+1).Msg("received message")
	if c.opts.Observer != nil {
		c.opts.Observer.MessageReceived(len(fields), i+1)
	}
	return fields, true
}

func (c *Channel) readError(err error) error {
	if errors.Is(err, io.EOF) && len(c.buf) > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Buffered returns the number of bytes read from the stream that have not
// yet been returned as part of a message.
func (c *Channel) Buffered() int {
	return len(c.buf)
}
