package suppression_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirshare/dirshare/suppression"
)

func TestSuppressResumeIdempotent(t *testing.T) {
	s := suppression.New()

	require.False(t, s.IsSuppressed("a"))

	s.Suppress("a")
	s.Suppress("a") // idempotent
	require.True(t, s.IsSuppressed("a"))

	s.Resume("a")
	require.False(t, s.IsSuppressed("a"))

	s.Resume("a") // no-op on absent ident
	require.False(t, s.IsSuppressed("a"))
}

func TestSet_ConcurrentAccess(t *testing.T) {
	s := suppression.New()

	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			ident := "file"
			s.Suppress(ident)
			_ = s.IsSuppressed(ident)
			s.Resume(ident)
		}(i)
	}

	wg.Wait()
	require.False(t, s.IsSuppressed("file"))
}
