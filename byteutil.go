package docmap

import "encoding/binary"

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

func appendFixedUint64(buf []byte, v uint64) []byte {
	off, buf := grow(buf, 8)
	binary.BigEndian.PutUint64(buf[off:], v)
	return buf
}

func appendVarbytes(buf []byte, v []byte) []byte {
	n := len(v)
	off, buf := grow(buf, binary.MaxVarintLen64+n)
	off += binary.PutUvarint(buf[off:], uint64(n))
	copy(buf[off:], v)
	return buf[:off+n]
}

type bytesBuilder struct {
	Buf []byte
}

func (bb *bytesBuilder) AppendFixedUint64(v uint64) {
	bb.Buf = appendFixedUint64(bb.Buf, v)
}

func (bb *bytesBuilder) AppendVarBytes(v []byte) {
	bb.Buf = appendVarbytes(bb.Buf, v)
}

func (bb *bytesBuilder) Reset() {
	bb.Buf = bb.Buf[:0]
}
