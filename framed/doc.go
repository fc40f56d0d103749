// Package framed implements a minimal text message protocol over a byte
// stream.  A message is an ordered list of fields.  On the wire, fields are
// separated by `;` and each message ends with `$`.  Any `;`, `$`, `\` or
// control byte inside a field is written as `\xHH`, so the terminator never
// appears inside a message.
package framed
