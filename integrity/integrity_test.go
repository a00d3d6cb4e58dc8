package integrity_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirshare/dirshare/integrity"
)

// P1: CRC associativity across any split of a byte sequence.
func TestCRC32_AssociativeUnderSplit(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, 1234567890")

	want := integrity.CRC32(data)

	for split := 0; split <= len(data); split++ {
		var s integrity.State
		s = s.Update(data[:split])
		s = s.Update(data[split:])
		require.Equalf(t, want, s.Finalize(), "split at %d", split)
	}
}

func TestCRC32_EmptyBuffer(t *testing.T) {
	var s integrity.State
	require.Equal(t, integrity.CRC32(nil), s.Finalize())
}

func TestCRC32File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	data := make([]byte, 3*1024*1024+17)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := integrity.CRC32File(path)
	require.NoError(t, err)
	require.Equal(t, integrity.CRC32(data), got)
}

func TestCRC32File_Missing(t *testing.T) {
	_, err := integrity.CRC32File(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
