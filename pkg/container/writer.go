package container

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"hfa/pkg/archerr"
	"hfa/pkg/bitstream"
	"hfa/pkg/huffman"
)

// WriteHeader writes the magic tag and entry count.
func WriteHeader(w io.Writer, count uint32) error {
	if _, err := io.WriteString(w, Magic); err != nil {
		return fmt.Errorf("%w: write magic: %w", archerr.ErrIO, err)
	}
	if err := binary.Write(w, order, count); err != nil {
		return fmt.Errorf("%w: write entry count: %w", archerr.ErrIO, err)
	}
	return nil
}

// WriteEntry writes one entry and returns the number of bytes written.
func WriteEntry(w io.Writer, e *Entry) (int64, error) {
	if err := ValidateName(e.Name); err != nil {
		return 0, err
	}
	if e.Tree == nil && e.OriginalLen > 0 {
		return 0, fmt.Errorf("entry %s: %d bytes without a tree", e.Name, e.OriginalLen)
	}
	byteCount := bitstream.ByteLen(e.Bits.Len)
	if uint64(len(e.Bits.Data)) != byteCount {
		return 0, fmt.Errorf("entry %s: %d payload bytes for %d bits", e.Name, len(e.Bits.Data), e.Bits.Len)
	}

	cw := &countingWriter{w: w}
	if err := binary.Write(cw, order, uint16(len(e.Name))); err != nil {
		return cw.n, fmt.Errorf("%w: write name length: %w", archerr.ErrIO, err)
	}
	if _, err := io.WriteString(cw, e.Name); err != nil {
		return cw.n, fmt.Errorf("%w: write name: %w", archerr.ErrIO, err)
	}
	if err := binary.Write(cw, order, e.OriginalLen); err != nil {
		return cw.n, fmt.Errorf("%w: write original length: %w", archerr.ErrIO, err)
	}
	if _, err := huffman.WriteTree(cw, e.Tree); err != nil {
		return cw.n, fmt.Errorf("%w: write tree: %w", archerr.ErrIO, err)
	}
	if err := binary.Write(cw, order, e.Bits.Len); err != nil {
		return cw.n, fmt.Errorf("%w: write bit count: %w", archerr.ErrIO, err)
	}
	if err := binary.Write(cw, order, byteCount); err != nil {
		return cw.n, fmt.Errorf("%w: write byte count: %w", archerr.ErrIO, err)
	}
	if _, err := cw.Write(e.Bits.Data); err != nil {
		return cw.n, fmt.Errorf("%w: write payload: %w", archerr.ErrIO, err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// Writer streams a container to a file. The entry count is fixed when the
// file is created and Close fails unless exactly that many entries were
// written.
type Writer struct {
	f    *os.File
	bw   *bufio.Writer
	want uint32
	n    uint32
}

// Create truncates path and writes a header announcing count entries.
func Create(path string, count int) (*Writer, error) {
	if count < 0 || uint64(count) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d entries", archerr.ErrCapacity, count)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", archerr.ErrIO, path, err)
	}
	w := &Writer{f: f, bw: bufio.NewWriterSize(f, 64*1024), want: uint32(count)}
	if err := WriteHeader(w.bw, w.want); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// WriteEntry appends e.
func (w *Writer) WriteEntry(e *Entry) error {
	if w.n == w.want {
		return fmt.Errorf("container: more than %d entries", w.want)
	}
	if _, err := WriteEntry(w.bw, e); err != nil {
		return err
	}
	w.n++
	return nil
}

// WriteEncoded appends one entry that is already in wire form, such as a
// worker's staging part.
func (w *Writer) WriteEncoded(r io.Reader) (int64, error) {
	if w.n == w.want {
		return 0, fmt.Errorf("container: more than %d entries", w.want)
	}
	n, err := io.Copy(w.bw, r)
	if err != nil {
		return n, fmt.Errorf("%w: copy entry: %w", archerr.ErrIO, err)
	}
	w.n++
	return n, nil
}

// Close flushes buffered data and closes the file.
func (w *Writer) Close() error {
	ferr := w.bw.Flush()
	cerr := w.f.Close()
	switch {
	case ferr != nil:
		return fmt.Errorf("%w: flush %s: %w", archerr.ErrIO, w.f.Name(), ferr)
	case cerr != nil:
		return fmt.Errorf("%w: close %s: %w", archerr.ErrIO, w.f.Name(), cerr)
	case w.n != w.want:
		return fmt.Errorf("container: wrote %d of %d entries", w.n, w.want)
	}
	return nil
}

// Write writes entries to path in the given order. Names are validated
// before the file is created, so a capacity error leaves no file behind. A
// failing write leaves a partial file that must not be used.
func Write(path string, entries []*Entry) error {
	for _, e := range entries {
		if err := ValidateName(e.Name); err != nil {
			return err
		}
	}
	w, err := Create(path, len(entries))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.WriteEntry(e); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
