// Package container reads and writes .hfa archives: a header followed by
// independently coded, self-describing entries.
//
// Wire format (all integers little-endian, no padding):
//
//	magic      = "HFA1"
//	entryCount = uint32
//	repeat entryCount times:
//	  nameLen     = uint16
//	  name        = nameLen bytes
//	  originalLen = uint64
//	  tree        = tree blob, terminated by 0xFF
//	  bitCount    = uint64
//	  byteCount   = uint64, always ceil(bitCount/8)
//	  payload     = byteCount bytes
package container

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"hfa/pkg/archerr"
	"hfa/pkg/bitstream"
	"hfa/pkg/huffman"
)

const (
	Magic       = "HFA1"         // Magic tag opening every container
	HeaderSize  = 8              // magic + entryCount
	MaxNameLen  = math.MaxUint16 // Longest name the uint16 length field holds
	DefaultName = "archive.hfa"  // Container name used when none is given
	StagePrefix = ".hfp."        // Prefix of per-worker staging parts
	StageSuffix = ".part"        // Suffix of per-worker staging parts
)

var order = binary.LittleEndian

// Entry holds one compressed input ready to be written.
type Entry struct {
	Name        string
	OriginalLen uint64
	Tree        *huffman.Node // nil only when OriginalLen is 0
	Bits        bitstream.Bits
}

// NewEntry compresses data under its own tree.
func NewEntry(name string, data []byte) (*Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	root, bits, err := huffman.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", name, err)
	}
	return &Entry{
		Name:        name,
		OriginalLen: uint64(len(data)),
		Tree:        root,
		Bits:        bits,
	}, nil
}

// EntryMeta locates one entry inside a container without holding its
// payload. TreeBlob is a private copy of the serialized tree.
type EntryMeta struct {
	Index         int
	Name          string
	OriginalLen   uint64
	BitCount      uint64
	ByteCount     uint64
	PayloadOffset int64
	TreeBlob      []byte
}

// ValidateName checks that name fits the uint16 length field.
func ValidateName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: name of %d bytes exceeds %d", archerr.ErrCapacity, len(name), MaxNameLen)
	}
	return nil
}

// OutputPath joins an entry name onto dir. Names must be plain base names.
func OutputPath(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: entry name %q is not a plain file name", archerr.ErrMalformedContainer, name)
	}
	return filepath.Join(dir, name), nil
}
