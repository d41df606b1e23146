package huffman

import (
	"fmt"
	"strings"

	"hfa/pkg/archerr"
)

// MaxCodeLen bounds a code to one machine word. Reaching it needs an input
// whose length exceeds the 66th Fibonacci number.
const MaxCodeLen = 64

// Code is a prefix code of Len bits held in the low bits of Bits, the first
// bit of the code being the most significant.
type Code struct {
	Bits uint64
	Len  uint8
}

func (c Code) String() string {
	var sb strings.Builder
	for i := int(c.Len) - 1; i >= 0; i-- {
		if c.Bits>>uint(i)&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// CodeTable maps each symbol to its code. Symbols absent from the tree have
// a zero-length code.
type CodeTable [256]Code

// Lookup returns the code for sym and whether the tree contains sym.
func (t *CodeTable) Lookup(sym byte) (Code, bool) {
	c := t[sym]
	return c, c.Len > 0
}

// BuildCodes derives the code table by depth-first traversal, appending 0 on
// the left edge and 1 on the right. A tree that is a single leaf gets the
// one-bit code "0" so every symbol still consumes a bit.
func BuildCodes(root *Node) (*CodeTable, error) {
	if root == nil {
		return nil, ErrEmptyTable
	}
	var table CodeTable
	if root.IsLeaf() {
		table[root.Symbol] = Code{Bits: 0, Len: 1}
		return &table, nil
	}
	if err := assignCodes(&table, root, 0, 0); err != nil {
		return nil, err
	}
	return &table, nil
}

func assignCodes(table *CodeTable, n *Node, bits uint64, depth int) error {
	if n == nil {
		return fmt.Errorf("%w: internal node with a missing child at depth %d", archerr.ErrCorruptTree, depth)
	}
	if n.IsLeaf() {
		table[n.Symbol] = Code{Bits: bits, Len: uint8(depth)}
		return nil
	}
	if depth == MaxCodeLen {
		return fmt.Errorf("%w: code longer than %d bits", archerr.ErrCapacity, MaxCodeLen)
	}
	if err := assignCodes(table, n.Left, bits<<1, depth+1); err != nil {
		return err
	}
	return assignCodes(table, n.Right, bits<<1|1, depth+1)
}
