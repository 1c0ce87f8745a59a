package docmap

import (
	"encoding/binary"
	"math"
	"slices"
	"strconv"
)

// DocumentID is an internally assigned document identifier.
//
// Keys are stored as 8-byte big-endian integers, so that the byte order of
// the keys in the store matches the numeric order of the identifiers.
type DocumentID uint64

const (
	documentIDSize = 8

	MaxDocumentID = DocumentID(math.MaxUint64)
)

// Bytes returns the key encoding of id.
func (id DocumentID) Bytes() []byte {
	return appendDocumentID(make([]byte, 0, documentIDSize), id)
}

func (id DocumentID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func appendDocumentID(buf []byte, id DocumentID) []byte {
	return appendFixedUint64(buf, uint64(id))
}

// DecodeDocumentID decodes a key produced by DocumentID.Bytes.
func DecodeDocumentID(raw []byte) (DocumentID, error) {
	if len(raw) != documentIDSize {
		return 0, dataErrf(slices.Clone(raw), 0, nil, "invalid document id key: %d bytes, wanted %d", len(raw), documentIDSize)
	}
	return DocumentID(binary.BigEndian.Uint64(raw)), nil
}

// ParseDocumentID parses a decimal document id.
func ParseDocumentID(s string) (DocumentID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return DocumentID(v), nil
}
