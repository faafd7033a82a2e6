package encoding

import (
	"fmt"
	"io"
)

// ReadPrefix reads a 4-byte length prefix followed by that many bytes,
// rejecting anything whose declared length exceeds maxLen before ever
// allocating a buffer for it.
func ReadPrefix(r io.Reader, maxLen uint32) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}
	dataLen := DecLen(prefix[:])
	if dataLen < 0 || uint32(dataLen) > maxLen {
		return nil, fmt.Errorf("length %d exceeds maxLen of %d", dataLen, maxLen)
	}

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d-byte payload: %w", dataLen, err)
	}
	return data, nil
}

// ReadObject reads and decodes a length-prefixed, marshaled object.
func ReadObject(r io.Reader, maxLen uint32, obj interface{}) error {
	data, err := ReadPrefix(r, maxLen)
	if err != nil {
		return err
	}
	return Unmarshal(data, obj)
}

// WritePrefix writes data preceded by its 4-byte length.
func WritePrefix(w io.Writer, data []byte) (int, error) {
	return w.Write(append(EncLen(len(data)), data...))
}

// WriteObject marshals obj and writes it preceded by its 4-byte length.
func WriteObject(w io.Writer, obj interface{}) (int, error) {
	return WritePrefix(w, Marshal(obj))
}
