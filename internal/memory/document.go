package memory

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// Document is Brain's dynamically-typed value blob: string, number, bool,
// null, list, or map, per the system prompt's "tagged-variant document type"
// design note. Go's encoding/json already gives us exactly that variant set
// via interface{}, and json.Marshal sorts map keys, which gives the
// canonical text encoding the note asks for without extra machinery.
type Document = interface{}

// encodeDocument produces the canonical byte encoding of a document.
func encodeDocument(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

func decodeDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// checksumOf hashes the canonical *uncompressed* bytes. Open Question #2 in
// DESIGN.md: the checksum is always computed pre-compression so it stays
// meaningful independent of the compression library/version in use.
func checksumOf(plain []byte) string {
	sum := sha256.Sum256(plain)
	return hex.EncodeToString(sum[:])
}

// compress gzips plain bytes.
func compress(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(plain); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompress reverses compress.
func decompress(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
