package huffman

import (
	"fmt"
	"io"

	"hfa/pkg/archerr"
	"hfa/pkg/bitstream"
)

// Encode concatenates the code of every byte of data, in order.
func Encode(data []byte, codes *CodeTable) (bitstream.Bits, error) {
	w := bitstream.NewWriter()
	for i, b := range data {
		c, ok := codes.Lookup(b)
		if !ok {
			return bitstream.Bits{}, fmt.Errorf("huffman: no code for symbol %#02x at offset %d", b, i)
		}
		if err := w.WriteBits(c.Bits, c.Len); err != nil {
			return bitstream.Bits{}, err
		}
	}
	return w.Finish()
}

// Decode walks root once per symbol, consuming one bit per edge, until
// expected symbols have been produced. Bits left over after the last symbol
// are ignored.
func Decode(bits bitstream.Bits, root *Node, expected uint64) ([]byte, error) {
	if expected == 0 {
		return []byte{}, nil
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no tree for %d symbols", archerr.ErrCorruptTree, expected)
	}
	// Every symbol costs at least one bit.
	if expected > bits.Len {
		return nil, fmt.Errorf("%w: %d symbols cannot fit in %d bits", archerr.ErrCorruptStream, expected, bits.Len)
	}
	r, err := bitstream.NewReader(bits)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, expected)
	if root.IsLeaf() {
		for uint64(len(out)) < expected {
			bit, err := r.ReadBit()
			if err != nil {
				return nil, exhausted(err, len(out), expected)
			}
			if bit {
				return nil, fmt.Errorf("%w: bit 1 under a single-symbol tree at symbol %d", archerr.ErrCorruptStream, len(out))
			}
			out = append(out, root.Symbol)
		}
		return out, nil
	}

	n := root
	for uint64(len(out)) < expected {
		bit, err := r.ReadBit()
		if err != nil {
			return nil, exhausted(err, len(out), expected)
		}
		if bit {
			n = n.Right
		} else {
			n = n.Left
		}
		if n == nil {
			return nil, fmt.Errorf("%w: missing child at symbol %d", archerr.ErrCorruptStream, len(out))
		}
		if n.IsLeaf() {
			out = append(out, n.Symbol)
			n = root
		}
	}
	return out, nil
}

func exhausted(err error, got int, expected uint64) error {
	if err == io.EOF {
		return fmt.Errorf("%w: bits exhausted after %d of %d symbols", archerr.ErrCorruptStream, got, expected)
	}
	return fmt.Errorf("%w: %w", archerr.ErrCorruptStream, err)
}

// Compress runs the whole pipeline over data: histogram, tree, code table
// and encoding. An empty input yields a nil tree and no bits.
func Compress(data []byte) (*Node, bitstream.Bits, error) {
	if len(data) == 0 {
		return nil, bitstream.Bits{Data: []byte{}}, nil
	}
	root, err := BuildTree(CountFrequencies(data))
	if err != nil {
		return nil, bitstream.Bits{}, err
	}
	codes, err := BuildCodes(root)
	if err != nil {
		return nil, bitstream.Bits{}, err
	}
	bits, err := Encode(data, codes)
	if err != nil {
		return nil, bitstream.Bits{}, err
	}
	return root, bits, nil
}
