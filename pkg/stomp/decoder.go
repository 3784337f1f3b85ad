package stomp

import (
	"fmt"
	"io"
)

// Terminator ends every frame on a stream transport.
const Terminator = byte(0)

// DefaultMaxFrameSize bounds how many bytes the Decoder buffers for a single
// frame.
const DefaultMaxFrameSize = 1 << 20

// Decoder accumulates bytes from a stream until a NUL terminator completes a
// frame. A Decoder belongs to one connection and is not safe for concurrent
// use.
type Decoder struct {
	buf []byte
	max int
}

// NewDecoder returns a Decoder limited to DefaultMaxFrameSize.
func NewDecoder() *Decoder {
	return NewDecoderSize(DefaultMaxFrameSize)
}

// NewDecoderSize returns a Decoder that rejects frames longer than max bytes.
// A non-positive max disables the limit.
func NewDecoderSize(max int) *Decoder {
	return &Decoder{buf: make([]byte, 0, 256), max: max}
}

// DecodeNextByte feeds one byte. It returns the frame text and true once the
// terminator arrives. Line breaks received between frames are heart-beats
// and are dropped.
func (d *Decoder) DecodeNextByte(b byte) (string, bool, error) {
	if b == Terminator {
		frame := string(d.buf)
		d.buf = d.buf[:0]
		return frame, true, nil
	}
	if len(d.buf) == 0 && (b == '\n' || b == '\r') {
		return "", false, nil
	}
	if d.max > 0 && len(d.buf) >= d.max {
		d.buf = d.buf[:0]
		return "", false, fmt.Errorf("%w: limit %d bytes", ErrFrameTooLarge, d.max)
	}
	d.buf = append(d.buf, b)
	return "", false, nil
}

// Next reads from r until a complete frame is decoded. io.EOF is returned
// unchanged when the stream ends between frames; a stream that ends inside a
// frame yields io.ErrUnexpectedEOF.
func (d *Decoder) Next(r io.ByteReader) (string, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && len(d.buf) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		frame, ok, err := d.DecodeNextByte(b)
		if err != nil {
			return "", err
		}
		if ok {
			return frame, nil
		}
	}
}

// Encode returns the wire bytes of frame text: the text followed by the
// terminator.
func Encode(frame string) []byte {
	out := make([]byte, len(frame)+1)
	copy(out, frame)
	out[len(frame)] = Terminator
	return out
}
