// Package bitstream packs sequences of binary symbols into bytes and back.
//
// Bits are stored most significant bit first: bit i of a sequence lives in
// byte i/8 at position 7-i%8. The packed form is always ceil(Len/8) bytes and
// any trailing padding bits are zero.
package bitstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/icza/bitio"

	"hfa/pkg/archerr"
)

// ErrFinished is returned when writing to a Writer after Finish.
var ErrFinished = errors.New("bitstream: writer finished")

// Bits is an exact-length bit sequence together with its packed bytes.
type Bits struct {
	Data []byte
	Len  uint64
}

// ByteLen returns the number of bytes needed to hold bitCount bits.
func ByteLen(bitCount uint64) uint64 {
	return (bitCount + 7) / 8
}

// String renders the sequence as '0' and '1' characters.
func (b Bits) String() string {
	var sb strings.Builder
	sb.Grow(int(b.Len))
	for i := uint64(0); i < b.Len; i++ {
		if b.Data[i>>3]&(1<<(7-i&7)) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Writer appends bits to a growing buffer and counts them exactly.
type Writer struct {
	buf      bytes.Buffer
	bw       *bitio.Writer
	n        uint64
	finished bool
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	w := &Writer{}
	w.bw = bitio.NewWriter(&w.buf)
	return w
}

// WriteBit appends a single bit.
func (w *Writer) WriteBit(bit bool) error {
	if w.finished {
		return ErrFinished
	}
	if err := w.bw.WriteBool(bit); err != nil {
		return fmt.Errorf("write bit: %w", err)
	}
	w.n++
	return nil
}

// WriteBits appends the n low bits of v, most significant first.
func (w *Writer) WriteBits(v uint64, n uint8) error {
	if w.finished {
		return ErrFinished
	}
	if n == 0 {
		return nil
	}
	if n < 64 {
		v &= 1<<n - 1
	}
	if err := w.bw.WriteBits(v, n); err != nil {
		return fmt.Errorf("write %d bits: %w", n, err)
	}
	w.n += uint64(n)
	return nil
}

// Len returns the number of bits written so far.
func (w *Writer) Len() uint64 { return w.n }

// Finish pads the last byte with zero bits and returns the sequence.
// The Writer accepts no further bits.
func (w *Writer) Finish() (Bits, error) {
	if !w.finished {
		w.finished = true
		if err := w.bw.Close(); err != nil {
			return Bits{}, fmt.Errorf("flush bits: %w", err)
		}
	}
	return Bits{Data: w.buf.Bytes(), Len: w.n}, nil
}

// Reader consumes the bits of a sequence one at a time.
type Reader struct {
	br        *bitio.Reader
	remaining uint64
}

// NewReader returns a Reader over b. It fails when b.Data is too short to
// hold b.Len bits.
func NewReader(b Bits) (*Reader, error) {
	if uint64(len(b.Data)) < ByteLen(b.Len) {
		return nil, fmt.Errorf("%w: %d bits need %d bytes, have %d",
			archerr.ErrCorruptStream, b.Len, ByteLen(b.Len), len(b.Data))
	}
	return &Reader{
		br:        bitio.NewReader(bytes.NewReader(b.Data)),
		remaining: b.Len,
	}, nil
}

// ReadBit returns the next bit, or io.EOF once the sequence length has been
// consumed. Padding bits are never returned.
func (r *Reader) ReadBit() (bool, error) {
	if r.remaining == 0 {
		return false, io.EOF
	}
	bit, err := r.br.ReadBool()
	if err != nil {
		return false, fmt.Errorf("read bit: %w", err)
	}
	r.remaining--
	return bit, nil
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() uint64 { return r.remaining }

// Pack packs a bit sequence into bytes.
func Pack(bits []bool) Bits {
	data := make([]byte, ByteLen(uint64(len(bits))))
	for i, bit := range bits {
		if bit {
			data[i>>3] |= 1 << (7 - i&7)
		}
	}
	return Bits{Data: data, Len: uint64(len(bits))}
}

// Unpack expands packed bytes back into exactly b.Len bits.
func Unpack(b Bits) ([]bool, error) {
	r, err := NewReader(b)
	if err != nil {
		return nil, err
	}
	out := make([]bool, 0, b.Len)
	for {
		bit, err := r.ReadBit()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, bit)
	}
}
