package wal

import (
	"encoding/binary"
	"hash/crc32"
)

// Encode serializes a Record as LSN(8) | Length(4) | CRC(4) | Data.
func (r *Record) Encode() []byte {
	buf := make([]byte, RecordHeaderSize+len(r.Data))
	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	binary.BigEndian.PutUint32(buf[12:16], r.CRC)
	copy(buf[16:], r.Data)
	return buf
}

func (r *Record) ValidateCRC() bool {
	return calculateCRC(r.LSN, r.Data) == r.CRC
}

func calculateCRC(lsn uint64, data []byte) uint32 {
	hasher := crc32.NewIEEE()
	lsnBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(lsnBytes, lsn)
	hasher.Write(lsnBytes)
	hasher.Write(data)
	return hasher.Sum32()
}
