package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindRecord byte = 1
	kindList   byte = 2

	recordHdr = 4 + 1 + 1 + 8 + 4
	listHdr   = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("docsource: corrupt cache entry")
	magic4     = [...]byte{'D', 'S', 'R', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record: magic(4) | ver(1) | kind(1=record) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeRecord(gen uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(recordHdr + len(payload))
	writeHeader(&buf, kindRecord, gen)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes()
}

func DecodeRecord(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < recordHdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return 0, nil, ErrCorrupt
	}
	gen = binary.BigEndian.Uint64(b[6:14])
	vlen := int(binary.BigEndian.Uint32(b[14:18]))
	if vlen != len(b)-recordHdr {
		return 0, nil, ErrCorrupt
	}
	return gen, b[recordHdr:], nil
}

// List holds the full result sequence of a field-set query. It may be empty.
//
//	magic(4) | ver(1) | kind(2=list) | gen(u64 be) | n(u32 be)
//	vlen(u32 be) | payload(vlen) * n
func EncodeList(gen uint64, payloads [][]byte) []byte {
	total := listHdr
	for _, p := range payloads {
		total += 4 + len(p)
	}
	var buf bytes.Buffer
	buf.Grow(total)
	writeHeader(&buf, kindList, gen)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payloads)))
	buf.Write(u4[:])
	for _, p := range payloads {
		binary.BigEndian.PutUint32(u4[:], uint32(len(p)))
		buf.Write(u4[:])
		buf.Write(p)
	}
	return buf.Bytes()
}

func DecodeList(b []byte) (gen uint64, payloads [][]byte, err error) {
	if len(b) < listHdr || !hasMagic(b) || b[4] != version || b[5] != kindList {
		return 0, nil, ErrCorrupt
	}
	gen = binary.BigEndian.Uint64(b[6:14])
	n := int(binary.BigEndian.Uint32(b[14:18]))
	off := listHdr
	// every item needs at least its length prefix
	if n < 0 || n > (len(b)-off)/4 {
		return 0, nil, ErrCorrupt
	}

	payloads = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return 0, nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
			return 0, nil, ErrCorrupt
		}
		payloads = append(payloads, b[off:off+vlen])
		off += vlen
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return gen, payloads, nil
}

func writeHeader(buf *bytes.Buffer, kind byte, gen uint64) {
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])
}
