package container

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"hfa/pkg/archerr"
	"hfa/pkg/bitstream"
	"hfa/pkg/huffman"
)

// scanner reads a container sequentially while tracking the absolute file
// offset, and seeks instead of reading when skipping payloads.
type scanner struct {
	rs   io.ReadSeeker
	br   *bufio.Reader
	off  int64
	size int64
}

func newScanner(rs io.ReadSeeker) (*scanner, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: seek end: %w", archerr.ErrIO, err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek start: %w", archerr.ErrIO, err)
	}
	return &scanner{rs: rs, br: bufio.NewReader(rs), size: size}, nil
}

func (s *scanner) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	s.off += int64(n)
	return n, err
}

func (s *scanner) ReadByte() (byte, error) {
	b, err := s.br.ReadByte()
	if err == nil {
		s.off++
	}
	return b, err
}

func (s *scanner) remaining() uint64 {
	return uint64(s.size - s.off)
}

func (s *scanner) skip(n uint64) error {
	if n > s.remaining() {
		return fmt.Errorf("%w: skip of %d bytes past end", archerr.ErrMalformedContainer, n)
	}
	target := s.off + int64(n)
	if _, err := s.rs.Seek(target, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek %d: %w", archerr.ErrIO, target, err)
	}
	s.br.Reset(s.rs)
	s.off = target
	return nil
}

// teeByteReader keeps a copy of every byte it passes through.
type teeByteReader struct {
	r   io.ByteReader
	buf []byte
}

func (t *teeByteReader) ReadByte() (byte, error) {
	b, err := t.r.ReadByte()
	if err == nil {
		t.buf = append(t.buf, b)
	}
	return b, err
}

func fieldError(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated %s", archerr.ErrMalformedContainer, field)
	}
	return fmt.Errorf("%w: read %s: %w", archerr.ErrIO, field, err)
}

func readHeader(r io.Reader) (uint32, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, fieldError("magic", err)
	}
	if string(magic[:]) != Magic {
		return 0, fmt.Errorf("%w: invalid magic %q", archerr.ErrMalformedContainer, magic[:])
	}
	var count uint32
	if err := binary.Read(r, order, &count); err != nil {
		return 0, fieldError("entry count", err)
	}
	return count, nil
}

// readMeta parses the fields of entry i up to its payload, leaving the
// scanner positioned at the first payload byte.
func readMeta(s *scanner, i int) (EntryMeta, error) {
	m := EntryMeta{Index: i}

	var nameLen uint16
	if err := binary.Read(s, order, &nameLen); err != nil {
		return m, fieldError(fmt.Sprintf("entry %d name length", i), err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(s, name); err != nil {
		return m, fieldError(fmt.Sprintf("entry %d name", i), err)
	}
	m.Name = string(name)

	if err := binary.Read(s, order, &m.OriginalLen); err != nil {
		return m, fieldError(fmt.Sprintf("entry %d original length", i), err)
	}

	tee := &teeByteReader{r: s}
	if _, err := huffman.SkipTree(tee); err != nil {
		return m, fmt.Errorf("%w: entry %d: %w", archerr.ErrMalformedContainer, i, err)
	}
	m.TreeBlob = tee.buf

	if err := binary.Read(s, order, &m.BitCount); err != nil {
		return m, fieldError(fmt.Sprintf("entry %d bit count", i), err)
	}
	if err := binary.Read(s, order, &m.ByteCount); err != nil {
		return m, fieldError(fmt.Sprintf("entry %d byte count", i), err)
	}
	if m.ByteCount != bitstream.ByteLen(m.BitCount) {
		return m, fmt.Errorf("%w: entry %d has %d bytes for %d bits",
			archerr.ErrMalformedContainer, i, m.ByteCount, m.BitCount)
	}

	m.PayloadOffset = s.off
	if m.ByteCount > s.remaining() {
		return m, fmt.Errorf("%w: truncated entry %d payload", archerr.ErrMalformedContainer, i)
	}
	return m, nil
}

// Index walks the container at path and returns the metadata of every
// entry. Payloads are skipped with a seek, so the cost is proportional to
// the metadata and tree bytes only.
func Index(path string) ([]EntryMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", archerr.ErrIO, path, err)
	}
	defer f.Close()

	metas, err := IndexReader(f)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	return metas, nil
}

// IndexReader is Index over an already open container.
func IndexReader(rs io.ReadSeeker) ([]EntryMeta, error) {
	s, err := newScanner(rs)
	if err != nil {
		return nil, err
	}
	count, err := readHeader(s)
	if err != nil {
		return nil, err
	}

	metas := make([]EntryMeta, 0, min(count, 4096))
	for i := 0; i < int(count); i++ {
		m, err := readMeta(s, i)
		if err != nil {
			return nil, err
		}
		if err := s.skip(m.ByteCount); err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, nil
}

// ReadPayload reads the packed payload of m from r.
func ReadPayload(r io.ReaderAt, m *EntryMeta) ([]byte, error) {
	buf := make([]byte, m.ByteCount)
	sr := io.NewSectionReader(r, m.PayloadOffset, int64(m.ByteCount))
	if _, err := io.ReadFull(sr, buf); err != nil {
		return nil, fieldError(fmt.Sprintf("entry %d payload", m.Index), err)
	}
	return buf, nil
}

// Decode rebuilds the entry's tree from its blob and decodes payload.
func (m *EntryMeta) Decode(payload []byte) ([]byte, error) {
	root, err := huffman.UnmarshalTree(m.TreeBlob)
	if err != nil {
		return nil, fmt.Errorf("entry %d (%s): %w", m.Index, m.Name, err)
	}
	data, err := huffman.Decode(bitstream.Bits{Data: payload, Len: m.BitCount}, root, m.OriginalLen)
	if err != nil {
		return nil, fmt.Errorf("entry %d (%s): %w", m.Index, m.Name, err)
	}
	return data, nil
}

// Restore opens the container at path on its own handle, reads the payload
// of m at its offset and decodes it.
func Restore(path string, m *EntryMeta) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", archerr.ErrIO, path, err)
	}
	payload, err := ReadPayload(f, m)
	f.Close()
	if err != nil {
		return nil, err
	}
	return m.Decode(payload)
}

// ExtractSequential decodes every entry of the container at path in file
// order and writes each one into outDir. It returns the number of files
// written. Any error stops the extraction; files already written stay.
func ExtractSequential(path, outDir string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", archerr.ErrIO, path, err)
	}
	defer f.Close()

	s, err := newScanner(f)
	if err != nil {
		return 0, err
	}
	count, err := readHeader(s)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", archerr.ErrIO, outDir, err)
	}

	for i := 0; i < int(count); i++ {
		m, err := readMeta(s, i)
		if err != nil {
			return i, err
		}
		payload := make([]byte, m.ByteCount)
		if _, err := io.ReadFull(s, payload); err != nil {
			return i, fieldError(fmt.Sprintf("entry %d payload", i), err)
		}
		data, err := m.Decode(payload)
		if err != nil {
			return i, err
		}
		out, err := OutputPath(outDir, m.Name)
		if err != nil {
			return i, err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return i, fmt.Errorf("%w: write %s: %w", archerr.ErrIO, out, err)
		}
	}
	return int(count), nil
}
