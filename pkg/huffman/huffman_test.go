package huffman

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfa/pkg/archerr"
	"hfa/pkg/bitstream"
)

func codesOf(t *testing.T, input string) (*Node, *CodeTable) {
	t.Helper()
	root, err := BuildTree(CountFrequencies([]byte(input)))
	require.NoError(t, err)
	codes, err := BuildCodes(root)
	require.NoError(t, err)
	return root, codes
}

func TestCountFrequencies(t *testing.T) {
	table := CountFrequencies([]byte("bbbbccca"))
	assert.Equal(t, uint64(1), table['a'])
	assert.Equal(t, uint64(4), table['b'])
	assert.Equal(t, uint64(3), table['c'])
	assert.Equal(t, 3, table.Distinct())
	assert.Equal(t, uint64(8), table.Total())
}

func TestBuildTreeEmpty(t *testing.T) {
	_, err := BuildTree(FrequencyTable{})
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestCodesFollowScanOrder(t *testing.T) {
	tests := []struct {
		input string
		want  map[byte]string
	}{
		{"aaab", map[byte]string{'a': "1", 'b': "0"}},
		{"bbbbccca", map[byte]string{'a': "10", 'b': "0", 'c': "11"}},
		{"abcd", map[byte]string{'a': "00", 'b': "01", 'c': "10", 'd': "11"}},
		{"aaaa", map[byte]string{'a': "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, codes := codesOf(t, tt.input)
			for sym, want := range tt.want {
				c, ok := codes.Lookup(sym)
				require.True(t, ok, "symbol %q", sym)
				assert.Equal(t, want, c.String(), "symbol %q", sym)
			}
			_, ok := codes.Lookup('z')
			assert.False(t, ok)
		})
	}
}

func TestEncodeKnownInput(t *testing.T) {
	_, codes := codesOf(t, "bbbbccca")
	bits, err := Encode([]byte("bbbbccca"), codes)
	require.NoError(t, err)
	assert.Equal(t, "000011111110", bits.String())
	assert.Equal(t, []byte{0x0F, 0xE0}, bits.Data)
}

func TestEncodeUnknownSymbol(t *testing.T) {
	_, codes := codesOf(t, "ab")
	_, err := Encode([]byte("abc"), codes)
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	random := make([]byte, 4096)
	rng.Read(random)
	all := make([]byte, 0, 512)
	for i := 0; i < 512; i++ {
		all = append(all, byte(i))
	}
	skewed := bytes.Repeat([]byte("aaaaaaaabbbbccd"), 100)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"single byte", []byte{'x'}},
		{"single symbol repeated", bytes.Repeat([]byte{'a'}, 1000)},
		{"two symbols", []byte("aaab")},
		{"full alphabet", all},
		{"random", random},
		{"skewed", skewed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, bits, err := Compress(tt.data)
			require.NoError(t, err)
			assert.Equal(t, bitstream.ByteLen(bits.Len), uint64(len(bits.Data)))

			got, err := Decode(bits, root, uint64(len(tt.data)))
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(got))
			assert.True(t, bytes.Equal(tt.data, got))
		})
	}
}

func TestSingleSymbolUsesOneBitPerSymbol(t *testing.T) {
	root, bits, err := Compress(bytes.Repeat([]byte{'a'}, 1000))
	require.NoError(t, err)
	assert.True(t, root.IsLeaf())
	assert.Equal(t, uint64(1000), bits.Len)
	assert.Len(t, bits.Data, 125)
}

func TestDecodeCorruptStream(t *testing.T) {
	root, bits, err := Compress([]byte("bbbbccca"))
	require.NoError(t, err)

	t.Run("fewer bits than symbols", func(t *testing.T) {
		_, err := Decode(bitstream.Bits{Data: bits.Data, Len: 5}, root, 8)
		assert.ErrorIs(t, err, archerr.ErrCorruptStream)
	})
	t.Run("bits exhausted mid stream", func(t *testing.T) {
		_, err := Decode(bitstream.Bits{Data: bits.Data[:1], Len: 8}, root, 8)
		assert.ErrorIs(t, err, archerr.ErrCorruptStream)
	})
	t.Run("missing child", func(t *testing.T) {
		lopsided := NewInternal(NewLeaf('a', 1), nil)
		_, err := Decode(bitstream.Pack([]bool{true}), lopsided, 1)
		assert.ErrorIs(t, err, archerr.ErrCorruptStream)
	})
	t.Run("one bit under single leaf", func(t *testing.T) {
		_, err := Decode(bitstream.Pack([]bool{false, true}), NewLeaf('a', 2), 2)
		assert.ErrorIs(t, err, archerr.ErrCorruptStream)
	})
	t.Run("no tree", func(t *testing.T) {
		_, err := Decode(bits, nil, 8)
		assert.ErrorIs(t, err, archerr.ErrCorruptTree)
	})
}

func TestDecodeIgnoresPadding(t *testing.T) {
	root, codes := codesOf(t, "aaab")
	bits, err := Encode([]byte("aaab"), codes)
	require.NoError(t, err)
	// Pretend the padding bits are part of the stream.
	padded := bitstream.Bits{Data: bits.Data, Len: 8}
	got, err := Decode(padded, root, 4)
	require.NoError(t, err)
	assert.Equal(t, "aaab", string(got))
}
