package framed

import (
	"bytes"
	"fmt"
)

// JoinMode selects how the first field of a message is encoded.
type JoinMode int

const (
	// JoinFirstRaw writes the first field unescaped and escapes the rest.
	// This is the encoding existing peers produce.
	JoinFirstRaw JoinMode = iota
	// JoinEscapeAll escapes every field.  The result is still decodable by
	// any peer, but a first field containing reserved bytes no longer
	// matches what a JoinFirstRaw peer would send.
	JoinEscapeAll
)

func (m JoinMode) String() string {
	switch m {
	case JoinFirstRaw:
		return "first-raw"
	case JoinEscapeAll:
		return "escape-all"
	}
	return fmt.Sprintf("JoinMode(%d)", int(m))
}

// ParseJoinMode is the inverse of JoinMode.String.
func ParseJoinMode(s string) (JoinMode, error) {
	switch s {
	case "first-raw":
		return JoinFirstRaw, nil
	case "escape-all":
		return JoinEscapeAll, nil
	}
	return 0, fmt.Errorf("framed: unknown join mode %q", s)
}

// AppendMessage appends the complete wire form of fields, including the
// trailing terminator, to dst.
func AppendMessage(dst []byte, fields []string, mode JoinMode) []byte {
	dst = appendJoined(dst, fields, string(Separator), mode)
	return append(dst, Terminator)
}

// DecodeMessage splits the wire text of one message (without its
// terminator) into its fields.
func DecodeMessage(text []byte) []string {
	return Split(string(text), string(Separator))
}

// FindTerminator returns the index of the first message terminator in buf, or
// -1 if there isn't one.
func FindTerminator(buf []byte) int {
	return bytes.IndexByte(buf, Terminator)
}

// MessageBuilder makes it easier to encode a batch of messages.  Add the
// fields of a message with AddField, then call FinishMessage.  Once you are
// done with all messages, call Encode to get the encoded representation of
// everything.
type MessageBuilder struct {
	Mode     JoinMode
	fields   []string
	start    int
	messages []index
}

type index struct {
	start, end int
}

// AddField appends a field to the message currently being built.
func (mb *MessageBuilder) AddField(field string) {
	mb.fields = append(mb.fields, field)
}

// FinishMessage indicates that you have finished adding the fields of a
// message.  Nothing is encoded until you call Encode.
func (mb *MessageBuilder) FinishMessage() {
	end := len(mb.fields)
	mb.messages = append(mb.messages, index{mb.start, end})
	mb.start = end
}

// Len returns the number of finished messages.
func (mb *MessageBuilder) Len() int {
	return len(mb.messages)
}

// Encode writes every finished message into dest, each followed by the
// terminator.
func (mb *MessageBuilder) Encode(dest *bytes.Buffer) {
	var scratch []byte
	for _, index := range mb.messages {
		scratch = AppendMessage(scratch[:0], mb.fields[index.start:index.end], mb.Mode)
		dest.Write(scratch)
	}
}

// Reset discards every message, finished or not.
func (mb *MessageBuilder) Reset() {
	mb.fields = mb.fields[:0]
	mb.messages = mb.messages[:0]
	mb.start = 0
}

// Scanner steps through a byte slice containing any number of complete wire
// messages.
//
//	var s framed.Scanner
//	s.Reset(encoded)
//	for s.Next() {
//		fields := s.Fields()
//	}
type Scanner struct {
	buf     []byte
	current []byte
}

// Reset points the scanner at a new slice of encoded messages.
func (s *Scanner) Reset(encoded []byte) {
	s.buf = encoded
	s.current = nil
}

// Next advances to the next complete message.  It returns false once no
// terminator remains; any trailing partial message is left in Remaining.
func (s *Scanner) Next() bool {
	i := FindTerminator(s.buf)
	if i < 0 {
		s.current = nil
		return false
	}
	s.current = s.buf[:i]
	s.buf = s.buf[i+1:]
	return true
}

// Encoded returns the wire text of the current message, without its
// terminator.
func (s *Scanner) Encoded() []byte {
	return s.current
}

// Fields decodes the current message.
func (s *Scanner) Fields() []string {
	return DecodeMessage(s.current)
}

// Remaining returns the bytes that follow the last message returned by Next.
func (s *Scanner) Remaining() []byte {
	return s.buf
}
