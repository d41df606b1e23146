package huffman

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfa/pkg/archerr"
)

func TestMarshalTreeKnownLayout(t *testing.T) {
	root, _ := codesOf(t, "bbbbccca")
	assert.Equal(t, []byte{2, 1, 'b', 2, 1, 'a', 1, 'c', 0xFF}, MarshalTree(root))

	root, _ = codesOf(t, "aaab")
	assert.Equal(t, []byte{2, 1, 'b', 1, 'a', 0xFF}, MarshalTree(root))

	assert.Equal(t, []byte{0, 0xFF}, MarshalTree(nil))
}

func TestTreeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		data := make([]byte, 1+rng.Intn(2000))
		alphabet := 1 + rng.Intn(256)
		for j := range data {
			data[j] = byte(rng.Intn(alphabet))
		}
		root, err := BuildTree(CountFrequencies(data))
		require.NoError(t, err)

		blob := MarshalTree(root)
		got, err := UnmarshalTree(blob)
		require.NoError(t, err)
		assert.True(t, Equal(root, got), "iteration %d", i)
		assert.Equal(t, root.Leaves(), got.Leaves())

		n, err := SkipTree(bytes.NewReader(blob))
		require.NoError(t, err)
		assert.Equal(t, int64(len(blob)), n)
	}
}

func TestUnmarshalNullTree(t *testing.T) {
	root, err := UnmarshalTree([]byte{0, 0xFF})
	require.NoError(t, err)
	assert.Nil(t, root)
}

func TestSkipTreeStopsAtSentinel(t *testing.T) {
	r := bytes.NewReader([]byte{2, 1, 'b', 1, 'a', 0xFF, 0xAA, 0xBB})
	n, err := SkipTree(r)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, 2, r.Len())
}

func TestCorruptTrees(t *testing.T) {
	deep := append(bytes.Repeat([]byte{2}, 300), 1, 'a')
	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"invalid marker", []byte{3, 0xFF}},
		{"missing sentinel", []byte{1, 'a'}},
		{"wrong sentinel", []byte{1, 'a', 0x00}},
		{"leaf without symbol", []byte{1}},
		{"internal without right", []byte{2, 1, 'a'}},
		{"too deep", deep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalTree(tt.blob)
			assert.ErrorIs(t, err, archerr.ErrCorruptTree)

			_, err = SkipTree(bytes.NewReader(tt.blob))
			assert.ErrorIs(t, err, archerr.ErrCorruptTree)
		})
	}
}

func TestUnmarshalTrailingBytes(t *testing.T) {
	_, err := UnmarshalTree([]byte{1, 'a', 0xFF, 0})
	assert.ErrorIs(t, err, archerr.ErrCorruptTree)
}
