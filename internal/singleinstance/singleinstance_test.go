package singleinstance_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirshare/dirshare/internal/singleinstance"
)

func TestAcquire_SecondCallFails(t *testing.T) {
	dir := t.TempDir()

	l1, err := singleinstance.Acquire(dir)
	require.NoError(t, err)
	defer l1.Release() //nolint:errcheck

	_, err = singleinstance.Acquire(dir)
	require.ErrorIs(t, err, singleinstance.ErrAlreadyRunning)
}

func TestAcquire_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	l1, err := singleinstance.Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	l2, err := singleinstance.Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquire_LockFileNotInsideDir(t *testing.T) {
	dir := t.TempDir()

	l, err := singleinstance.Acquire(dir)
	require.NoError(t, err)
	defer l.Release() //nolint:errcheck

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "lock file must never appear inside the watched directory")
}
