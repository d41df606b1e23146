// Package huffman builds per-input Huffman codes over the byte alphabet and
// encodes, decodes and serializes them.
package huffman

import "errors"

// ErrEmptyTable is returned when a tree is requested for a table with no
// symbols. An empty input has no tree; callers store it without one.
var ErrEmptyTable = errors.New("huffman: empty frequency table")

// FrequencyTable counts occurrences of each byte value.
type FrequencyTable [256]uint64

// CountFrequencies builds the histogram of data in a single pass.
func CountFrequencies(data []byte) FrequencyTable {
	var t FrequencyTable
	for _, b := range data {
		t[b]++
	}
	return t
}

// Distinct returns the number of symbols with a non-zero count.
func (t *FrequencyTable) Distinct() int {
	n := 0
	for _, c := range t {
		if c > 0 {
			n++
		}
	}
	return n
}

// Total returns the sum of all counts.
func (t *FrequencyTable) Total() uint64 {
	var n uint64
	for _, c := range t {
		n += c
	}
	return n
}

// Node is a leaf carrying a symbol or an internal node owning two children.
// Every node has exactly one parent; trees never share nodes.
type Node struct {
	Symbol      byte
	Weight      uint64
	Left, Right *Node

	leaf bool
}

// NewLeaf returns a leaf for sym.
func NewLeaf(sym byte, weight uint64) *Node {
	return &Node{Symbol: sym, Weight: weight, leaf: true}
}

// NewInternal returns an internal node taking ownership of left and right.
func NewInternal(left, right *Node) *Node {
	n := &Node{Left: left, Right: right}
	if left != nil {
		n.Weight += left.Weight
	}
	if right != nil {
		n.Weight += right.Weight
	}
	return n
}

// IsLeaf reports whether n carries a symbol.
func (n *Node) IsLeaf() bool { return n.leaf }

// Leaves returns the number of leaves under n.
func (n *Node) Leaves() int {
	if n == nil {
		return 0
	}
	if n.leaf {
		return 1
	}
	return n.Left.Leaves() + n.Right.Leaves()
}

// Equal reports whether a and b have the same shape with the same symbols at
// the same leaves. Weights are not compared since serialized trees drop them.
func Equal(a, b *Node) bool {
	switch {
	case a == nil || b == nil:
		return a == b
	case a.leaf != b.leaf:
		return false
	case a.leaf:
		return a.Symbol == b.Symbol
	}
	return Equal(a.Left, b.Left) && Equal(a.Right, b.Right)
}

// BuildTree merges the two lowest-weight roots of the forest until one root
// remains. The forest starts as one leaf per present symbol in ascending
// symbol order; merged nodes are appended at the end and the surviving roots
// keep their relative order. Ties go to the earliest root in the forest, so
// the resulting codes are identical on every run.
func BuildTree(t FrequencyTable) (*Node, error) {
	forest := make([]*Node, 0, len(t))
	for sym, w := range t {
		if w > 0 {
			forest = append(forest, NewLeaf(byte(sym), w))
		}
	}
	if len(forest) == 0 {
		return nil, ErrEmptyTable
	}

	for len(forest) > 1 {
		first, second := twoMinimums(forest)
		merged := NewInternal(forest[first], forest[second])

		rest := forest[:0]
		for i, n := range forest {
			if i != first && i != second {
				rest = append(rest, n)
			}
		}
		forest = append(rest, merged)
	}
	return forest[0], nil
}

// twoMinimums returns the indexes of the lowest and second-lowest weights.
// forest must hold at least two roots.
func twoMinimums(forest []*Node) (first, second int) {
	first, second = 0, 1
	if forest[0].Weight > forest[1].Weight {
		first, second = 1, 0
	}
	for i := 2; i < len(forest); i++ {
		switch {
		case forest[i].Weight < forest[first].Weight:
			second, first = first, i
		case forest[i].Weight < forest[second].Weight:
			second = i
		}
	}
	return first, second
}
