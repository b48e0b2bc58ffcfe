package wireframe

import "io"

// Frame is one part of a zlmb multi-frame message: a payload plus the
// "more frames follow" bit the ingress transport reported for it.
type Frame struct {
	Payload []byte
	More    bool
}

// Envelope reads and writes Frames over a wireframe Reader/Writer pair by
// reserving the first byte of every wire message as a flags byte. Bit 0 of
// the flags byte is the More indicator; the remaining bits are reserved
// and always written as zero.
//
// Envelope does not own r/w; callers construct one Reader/Writer per
// connection (see internal/transport) and wrap it once.
type Envelope struct {
	r io.Reader
	w io.Writer
}

// NewEnvelope wraps an already-constructed wireframe Reader and/or Writer.
// Either may be nil for a write-only or read-only envelope.
func NewEnvelope(r io.Reader, w io.Writer) *Envelope {
	return &Envelope{r: r, w: w}
}

const (
	flagMore byte = 1 << 0
)

// WriteFrame writes one frame as a single wireframe message.
func (e *Envelope) WriteFrame(fr Frame) error {
	if e.w == nil {
		return ErrInvalidArgument
	}
	buf := make([]byte, 1+len(fr.Payload))
	if fr.More {
		buf[0] = flagMore
	}
	copy(buf[1:], fr.Payload)
	n, err := e.w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// ReadFrame reads one frame from a single wireframe message.
func (e *Envelope) ReadFrame(maxLen int) (Frame, error) {
	if e.r == nil {
		return Frame{}, ErrInvalidArgument
	}
	buf := make([]byte, maxLen+1)
	n, err := e.r.Read(buf)
	if err != nil {
		return Frame{}, err
	}
	if n < 1 {
		return Frame{}, io.ErrUnexpectedEOF
	}
	payload := make([]byte, n-1)
	copy(payload, buf[1:n])
	return Frame{Payload: payload, More: buf[0]&flagMore != 0}, nil
}
