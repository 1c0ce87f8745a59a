package docmap

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Dump format, a msgpack stream of arrays:
//
//	header:  ["docmap", version, mapping name]
//	entry:   [document id, user id]          (ascending document ids)
//	trailer: ["end", entry count, checksum]
//
// The checksum is XXH64 over, for every entry, the 8-byte big-endian document
// id followed by the uvarint-prefixed user id.
const (
	dumpMagic      = "docmap"
	dumpVersion    = 1
	dumpTrailerTag = "end"

	dumpHeaderLen  = 3
	dumpEntryLen   = 2
	dumpTrailerLen = 3
)

type dumpChecksum struct {
	digest *xxhash.Digest
	bb     bytesBuilder
}

func newDumpChecksum() *dumpChecksum {
	return &dumpChecksum{digest: xxhash.New()}
}

func (dc *dumpChecksum) add(id DocumentID, userID []byte) {
	dc.bb.Reset()
	dc.bb.AppendFixedUint64(uint64(id))
	dc.bb.AppendVarBytes(userID)
	dc.digest.Write(dc.bb.Buf)
}

// Export writes all entries of the mapping to w, and returns the number of
// entries written.
func (m Mapping) Export(txh Txish, w io.Writer) (int, error) {
	enc := msgpack.GetEncoder()
	enc.Reset(w)
	defer msgpack.PutEncoder(enc)

	werr := func(err error) error {
		return fmt.Errorf("docmap: export %s: %w", m.name, err)
	}

	if err := encodeDumpTuple(enc, dumpMagic, dumpVersion, m.name); err != nil {
		return 0, werr(err)
	}

	sum := newDumpChecksum()
	var n int
	c := m.Iterate(txh)
	for c.Next() {
		id, userID := c.ID(), c.UserIDBytes()
		if err := encodeDumpTuple(enc, uint64(id), userID); err != nil {
			return n, werr(err)
		}
		sum.add(id, userID)
		n++
	}
	if err := c.Err(); err != nil {
		return n, err
	}

	if err := encodeDumpTuple(enc, dumpTrailerTag, n, sum.digest.Sum64()); err != nil {
		return n, werr(err)
	}
	return n, nil
}

func encodeDumpTuple(enc *msgpack.Encoder, values ...any) error {
	if err := enc.EncodeArrayLen(len(values)); err != nil {
		return err
	}
	for _, v := range values {
		var err error
		switch v := v.(type) {
		case string:
			err = enc.EncodeString(v)
		case []byte:
			err = enc.EncodeString(string(v))
		case int:
			err = enc.EncodeInt(int64(v))
		case uint64:
			err = enc.EncodeUint(v)
		default:
			panic(fmt.Errorf("unsupported dump value %T", v))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Import replaces the contents of the mapping with the entries of a dump
// produced by Export, and returns the number of entries imported. The dump
// may come from a mapping with a different name.
//
// Import validates the dump as it goes; on error, the caller must roll back
// tx, because the mapping may be partially rebuilt.
func (m Mapping) Import(tx *WriteTx, r io.Reader) (int, error) {
	dec := msgpack.GetDecoder()
	dec.Reset(r)
	defer msgpack.PutDecoder(dec)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return 0, dumpErrf(0, err, "header")
	}
	if n != dumpHeaderLen {
		return 0, dumpErrf(0, nil, "header has %d elements, wanted %d", n, dumpHeaderLen)
	}
	magic, err := dec.DecodeString()
	if err != nil || magic != dumpMagic {
		return 0, dumpErrf(0, err, "not a docmap dump")
	}
	ver, err := dec.DecodeInt()
	if err != nil {
		return 0, dumpErrf(0, err, "version")
	}
	if ver != dumpVersion {
		return 0, dumpErrf(0, nil, "unsupported version %d", ver)
	}
	source, err := dec.DecodeString()
	if err != nil {
		return 0, dumpErrf(0, err, "mapping name")
	}

	if err := m.Clear(tx); err != nil {
		return 0, err
	}

	sum := newDumpChecksum()
	var count int
	var prev DocumentID
	for rec := 1; ; rec++ {
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return count, dumpErrf(rec, err, "truncated")
		}
		switch n {
		case dumpEntryLen:
			raw, err := dec.DecodeUint64()
			if err != nil {
				return count, dumpErrf(rec, err, "document id")
			}
			id := DocumentID(raw)
			userID, err := dec.DecodeString()
			if err != nil {
				return count, dumpErrf(rec, err, "user id")
			}
			if count > 0 && id <= prev {
				return count, dumpErrf(rec, nil, "document id %d out of order after %d", id, prev)
			}
			if err := m.Put(tx, id, userID); err != nil {
				return count, err
			}
			sum.add(id, []byte(userID))
			prev = id
			count++

		case dumpTrailerLen:
			tag, err := dec.DecodeString()
			if err != nil || tag != dumpTrailerTag {
				return count, dumpErrf(rec, err, "bad trailer")
			}
			expectedCount, err := dec.DecodeInt()
			if err != nil {
				return count, dumpErrf(rec, err, "trailer count")
			}
			expectedSum, err := dec.DecodeUint64()
			if err != nil {
				return count, dumpErrf(rec, err, "trailer checksum")
			}
			if expectedCount != count {
				return count, dumpErrf(rec, nil, "dump has %d entries, trailer says %d", count, expectedCount)
			}
			if actual := sum.digest.Sum64(); actual != expectedSum {
				return count, dumpErrf(rec, nil, "checksum mismatch: %016x, trailer says %016x", actual, expectedSum)
			}
			if tx.isVerboseLoggingEnabled() {
				tx.logOp("docmap: IMPORT", slog.String("mapping", m.name), slog.String("source", source), slog.Int("count", count))
			}
			return count, nil

		default:
			return count, dumpErrf(rec, nil, "unexpected %d-element record", n)
		}
	}
}
