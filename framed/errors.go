package framed

import "errors"

var (
	// ErrBufferFull is returned by Receive when the receive buffer reaches
	// Options.MaxBufferSize without containing a terminator.  The channel
	// cannot recover from this and should be discarded.
	ErrBufferFull = errors.New("framed: receive buffer full")
)
