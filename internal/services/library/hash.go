package library

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const hashChunkSize = 64 * 1024

// Hash computes the OpenSubtitles movie hash: the file size plus the
// little-endian uint64 words of the first and last 64 KiB
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat video: %w", err)
	}
	size := info.Size()
	if size < hashChunkSize {
		return "", fmt.Errorf("video too small to hash: %d bytes", size)
	}

	buf := make([]byte, hashChunkSize*2)
	if _, err := io.ReadFull(f, buf[:hashChunkSize]); err != nil {
		return "", fmt.Errorf("failed to read video head: %w", err)
	}
	if _, err := f.ReadAt(buf[hashChunkSize:], size-hashChunkSize); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read video tail: %w", err)
	}

	hash := uint64(size)
	for i := 0; i < len(buf); i += 8 {
		hash += binary.LittleEndian.Uint64(buf[i : i+8])
	}
	return fmt.Sprintf("%016x", hash), nil
}
