package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"hfa/pkg/archerr"
)

// WriteMeta serializes m so that a separate process can restore the entry
// without indexing the container again.
func WriteMeta(w io.Writer, m *EntryMeta) error {
	if len(m.Name) > MaxNameLen || len(m.TreeBlob) > math.MaxUint16 || m.Index < 0 || uint64(m.Index) > math.MaxUint32 {
		return fmt.Errorf("%w: entry %d metadata", archerr.ErrCapacity, m.Index)
	}
	fields := []any{
		uint32(m.Index),
		uint16(len(m.Name)), []byte(m.Name),
		m.OriginalLen, m.BitCount, m.ByteCount, m.PayloadOffset,
		uint16(len(m.TreeBlob)), m.TreeBlob,
	}
	for _, v := range fields {
		if err := binary.Write(w, order, v); err != nil {
			return fmt.Errorf("%w: write entry %d metadata: %w", archerr.ErrIO, m.Index, err)
		}
	}
	return nil
}

// ReadMeta is the inverse of WriteMeta.
func ReadMeta(r io.Reader) (*EntryMeta, error) {
	var (
		index   uint32
		nameLen uint16
		treeLen uint16
		m       EntryMeta
	)
	if err := binary.Read(r, order, &index); err != nil {
		return nil, fieldError("metadata index", err)
	}
	m.Index = int(index)
	if err := binary.Read(r, order, &nameLen); err != nil {
		return nil, fieldError("metadata name length", err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fieldError("metadata name", err)
	}
	m.Name = string(name)
	for _, v := range []any{&m.OriginalLen, &m.BitCount, &m.ByteCount, &m.PayloadOffset, &treeLen} {
		if err := binary.Read(r, order, v); err != nil {
			return nil, fieldError("metadata", err)
		}
	}
	m.TreeBlob = make([]byte, treeLen)
	if _, err := io.ReadFull(r, m.TreeBlob); err != nil {
		return nil, fieldError("metadata tree", err)
	}
	return &m, nil
}
