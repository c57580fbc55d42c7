package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// writeLenPrefixed writes a uint32 big-endian length prefix followed by b.
func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// readLenPrefixed reads one length-prefixed byte slice from r.
func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("memory: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("memory: read payload: %w", err)
	}
	return buf, nil
}
