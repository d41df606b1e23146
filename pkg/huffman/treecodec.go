package huffman

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"hfa/pkg/archerr"
)

// Tree blob protocol: a preorder walk where each node is one marker byte,
// leaves are followed by their symbol and internal nodes by their left then
// right subtrees. The root's encoding is followed by a sentinel byte.
const (
	markerNull     byte = 0
	markerLeaf     byte = 1
	markerInternal byte = 2

	treeSentinel byte = 0xFF

	// A tree over 256 symbols is at most 255 edges deep.
	maxTreeDepth = 255
)

// AppendTree appends the blob for root to dst. A nil root is written as the
// null marker, which is how entries without a tree are stored.
func AppendTree(dst []byte, root *Node) []byte {
	dst = appendNode(dst, root)
	return append(dst, treeSentinel)
}

func appendNode(dst []byte, n *Node) []byte {
	switch {
	case n == nil:
		return append(dst, markerNull)
	case n.IsLeaf():
		return append(dst, markerLeaf, n.Symbol)
	}
	dst = append(dst, markerInternal)
	dst = appendNode(dst, n.Left)
	return appendNode(dst, n.Right)
}

// MarshalTree returns the blob for root.
func MarshalTree(root *Node) []byte {
	return AppendTree(make([]byte, 0, 3*root.Leaves()+1), root)
}

// UnmarshalTree parses a complete blob. Bytes after the sentinel are an
// error. A null-marker blob yields a nil tree.
func UnmarshalTree(blob []byte) (*Node, error) {
	r := bytes.NewReader(blob)
	root, err := ReadTree(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after sentinel", archerr.ErrCorruptTree, r.Len())
	}
	return root, nil
}

// ReadTree parses one blob from r, verifying the sentinel.
func ReadTree(r io.ByteReader) (*Node, error) {
	root, err := readNode(r, 0)
	if err != nil {
		return nil, err
	}
	if err := readSentinel(r); err != nil {
		return nil, err
	}
	return root, nil
}

func readNode(r io.ByteReader, depth int) (*Node, error) {
	if depth > maxTreeDepth {
		return nil, fmt.Errorf("%w: deeper than %d", archerr.ErrCorruptTree, maxTreeDepth)
	}
	m, err := r.ReadByte()
	if err != nil {
		return nil, treeReadError(err)
	}
	switch m {
	case markerNull:
		return nil, nil
	case markerLeaf:
		sym, err := r.ReadByte()
		if err != nil {
			return nil, treeReadError(err)
		}
		return NewLeaf(sym, 0), nil
	case markerInternal:
		left, err := readNode(r, depth+1)
		if err != nil {
			return nil, err
		}
		right, err := readNode(r, depth+1)
		if err != nil {
			return nil, err
		}
		return NewInternal(left, right), nil
	}
	return nil, fmt.Errorf("%w: invalid marker %#02x", archerr.ErrCorruptTree, m)
}

// SkipTree advances r past one blob without building nodes and returns the
// number of bytes consumed, sentinel included.
func SkipTree(r io.ByteReader) (int64, error) {
	n, err := skipNode(r, 0)
	if err != nil {
		return 0, err
	}
	if err := readSentinel(r); err != nil {
		return 0, err
	}
	return n + 1, nil
}

func skipNode(r io.ByteReader, depth int) (int64, error) {
	if depth > maxTreeDepth {
		return 0, fmt.Errorf("%w: deeper than %d", archerr.ErrCorruptTree, maxTreeDepth)
	}
	m, err := r.ReadByte()
	if err != nil {
		return 0, treeReadError(err)
	}
	switch m {
	case markerNull:
		return 1, nil
	case markerLeaf:
		if _, err := r.ReadByte(); err != nil {
			return 0, treeReadError(err)
		}
		return 2, nil
	case markerInternal:
		left, err := skipNode(r, depth+1)
		if err != nil {
			return 0, err
		}
		right, err := skipNode(r, depth+1)
		if err != nil {
			return 0, err
		}
		return 1 + left + right, nil
	}
	return 0, fmt.Errorf("%w: invalid marker %#02x", archerr.ErrCorruptTree, m)
}

func readSentinel(r io.ByteReader) error {
	b, err := r.ReadByte()
	if err != nil {
		return treeReadError(err)
	}
	if b != treeSentinel {
		return fmt.Errorf("%w: sentinel is %#02x, want %#02x", archerr.ErrCorruptTree, b, treeSentinel)
	}
	return nil
}

func treeReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: ends prematurely", archerr.ErrCorruptTree)
	}
	return fmt.Errorf("%w: read tree: %w", archerr.ErrIO, err)
}

// WriteTree writes the blob for root to w.
func WriteTree(w io.Writer, root *Node) (int, error) {
	return w.Write(MarshalTree(root))
}
