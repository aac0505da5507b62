package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDocumentRoundTrip(t *testing.T) {
	docs := []Document{
		"a string",
		42.0,
		true,
		nil,
		[]interface{}{1.0, "two", false},
		map[string]interface{}{"b": 1.0, "a": "x"},
	}
	for _, d := range docs {
		raw, err := encodeDocument(d)
		require.NoError(t, err)
		got, err := decodeDocument(raw)
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestEncodeDocumentIsCanonical(t *testing.T) {
	a, err := encodeDocument(map[string]interface{}{"z": 1.0, "a": 2.0})
	require.NoError(t, err)
	b, err := encodeDocument(map[string]interface{}{"a": 2.0, "z": 1.0})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "json.Marshal sorts map keys, giving a stable encoding regardless of input key order")
}

func TestChecksumOfIsDeterministicAndSensitive(t *testing.T) {
	a := checksumOf([]byte("hello"))
	b := checksumOf([]byte("hello"))
	c := checksumOf([]byte("hello!"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	plain := []byte("the quick brown fox jumps over the lazy dog, repeated. " +
		"the quick brown fox jumps over the lazy dog, repeated.")
	compressed, err := compress(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, compressed)

	got, err := decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestChecksumMatchesPreCompressionPlaintext(t *testing.T) {
	plain := []byte(`{"key":"value"}`)
	want := checksumOf(plain)

	compressed, err := compress(plain)
	require.NoError(t, err)
	decompressed, err := decompress(compressed)
	require.NoError(t, err)

	assert.Equal(t, want, checksumOf(decompressed), "checksum must be computed pre-compression and verified post-decompression")
}
