// Package integrity provides CRC32 checksumming for buffers and files.
//
// DirShare uses a single checksum, the IEEE (reflected, 0xEDB88320)
// polynomial, for every integrity check in the engine: whole-file CRCs in
// FileContent and DirectorySnapshot metadata, and per-chunk CRCs in
// FileChunk. All three share this package so the polynomial and buffer
// sizing are defined in exactly one place.
package integrity

import (
	"bufio"
	"io"
	"os"

	"github.com/klauspost/crc32"
	"github.com/pkg/errors"
)

// fileReadBufferSize bounds the memory used by CRC32File regardless of the
// size of the file being hashed.
const fileReadBufferSize = 256 * 1024

// CRC32 returns the IEEE CRC32 of buf. Pure; cannot fail.
func CRC32(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf)
}

// State is incremental CRC32 accumulator state. The zero value represents
// the initial (empty) checksum.
type State struct {
	crc uint32
}

// Update folds buf into the running checksum and returns the new state.
// Update is associative under concatenation: hashing a++b in one call
// produces the same final value as hashing a then b across two calls.
func (s State) Update(buf []byte) State {
	return State{crc: crc32.Update(s.crc, crc32.IEEETable, buf)}
}

// Finalize returns the checksum accumulated so far. Finalize does not
// consume the state; further Update calls remain valid.
func (s State) Finalize() uint32 {
	return s.crc
}

// CRC32File streams path in bounded-size chunks and returns its IEEE CRC32.
// The only failure mode is the underlying I/O error, wrapped for context.
func CRC32File(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "integrity: open file")
	}
	defer f.Close() //nolint:errcheck

	h := crc32.NewIEEE()

	buf := bufio.NewReaderSize(f, fileReadBufferSize)
	if _, err := io.Copy(h, buf); err != nil {
		return 0, errors.Wrap(err, "integrity: read file")
	}

	return h.Sum32(), nil
}
