package term

import (
	"bytes"
)

const (
	esc          = 0x1b
	maxSeqLen    = 32
	seqSuffix    = 'm'
	seqSeparator = ';'
)

var seqPrefix = []byte{esc, '['}

// Segment is either a run of plain text or one SGR sequence.
type Segment struct {
	Text   []byte
	Seq    bool
	Params string
}

// Scanner splits a byte stream into text and SGR sequences. A sequence
// cut by a payload boundary is held back until the rest arrives, up to
// maxSeqLen bytes, after which it is passed through as text.
type Scanner struct {
	pending []byte
}

func isParamByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == seqSeparator
}

// Scan returns the segments completed by p. Text slices alias an
// internal buffer and are valid until the next call.
func (s *Scanner) Scan(p []byte) []Segment {
	buf := p
	if len(s.pending) > 0 {
		buf = append(s.pending, p...)
		s.pending = nil
	}
	var segs []Segment
	text := func(b []byte) {
		if len(b) > 0 {
			segs = append(segs, Segment{Text: b})
		}
	}
	for len(buf) > 0 {
		i := bytes.Index(buf, seqPrefix)
		if i < 0 {
			if buf[len(buf)-1] == esc {
				text(buf[:len(buf)-1])
				s.hold(buf[len(buf)-1:])
				return segs
			}
			text(buf)
			return segs
		}
		text(buf[:i])
		buf = buf[i:]
		j := len(seqPrefix)
		for j < len(buf) && isParamByte(buf[j]) {
			j++
		}
		switch {
		case j == len(buf):
			if len(buf) > maxSeqLen {
				text(buf)
				return segs
			}
			s.hold(buf)
			return segs
		case buf[j] == seqSuffix:
			segs = append(segs, Segment{Seq: true, Params: string(buf[len(seqPrefix):j])})
			buf = buf[j+1:]
		default:
			// Not an SGR sequence; pass it through untouched.
			text(buf[:j+1])
			buf = buf[j+1:]
		}
	}
	return segs
}

func (s *Scanner) hold(b []byte) {
	s.pending = append(make([]byte, 0, maxSeqLen+1), b...)
}

// Flush returns and forgets any held back partial sequence.
func (s *Scanner) Flush() []byte {
	b := s.pending
	s.pending = nil
	return b
}
