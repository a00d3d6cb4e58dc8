// Package fsadapter implements the low-level, non-recursive filesystem
// operations the rest of the engine is built on (spec §4.B). It is the
// only package that touches os/io directly for the shared directory;
// every other component goes through it.
package fsadapter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"

	"github.com/dirshare/dirshare/internal/logging"
	"github.com/dirshare/dirshare/transport"
)

var log = logging.GetContextLoggerFunc("dirshare/fsadapter")

// Kind classifies a filesystem failure the way spec §4.B/§7 requires
// callers to: not-found, permission-denied, or io-other. Callers branch on
// Kind, not on error string content.
type Kind int

const (
	// KindOther is any I/O failure that is neither NotFound nor
	// PermissionDenied.
	KindOther Kind = iota
	KindNotFound
	KindPermissionDenied
)

// Error wraps an underlying I/O error with its Kind and the path it
// concerns.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return errors.Wrapf(e.Err, "fsadapter: %s", e.Path).Error()
}

// Unwrap allows errors.Is/errors.As to reach the underlying error.
func (e *Error) Unwrap() error { return e.Err }

func classify(path string, err error) error {
	if err == nil {
		return nil
	}

	k := KindOther

	switch {
	case os.IsNotExist(err):
		k = KindNotFound
	case os.IsPermission(err):
		k = KindPermissionDenied
	}

	return &Error{Kind: k, Path: path, Err: err}
}

// Adapter operates on files rooted at Dir, the shared directory.
type Adapter struct {
	Dir string

	// stagingDir is a sibling of Dir used to stage atomic writes (see
	// WriteAll) so the temp file natefinch/atomic creates mid-rename never
	// transiently appears inside Dir, where a concurrent scanner tick could
	// list it as a spurious ident.
	stagingDir string
}

// New returns an Adapter rooted at dir.
func New(dir string) *Adapter {
	return &Adapter{Dir: dir, stagingDir: filepath.Clean(dir) + ".dirshare-staging"}
}

// Path resolves ident to its absolute path under Dir. It does not validate
// ident; callers must do so via transport.ValidIdent first.
func (a *Adapter) Path(ident string) string {
	return filepath.Join(a.Dir, ident)
}

// ListRegularFiles lists every regular file directly inside Dir,
// non-recursively. "." and ".." are never returned by os.ReadDir; symlinks,
// directories, and other special files are skipped. Names that fail
// transport.ValidIdent are dropped and logged at error level.
func (a *Adapter) ListRegularFiles(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		return nil, classify(a.Dir, err)
	}

	idents := make([]string, 0, len(entries))

	for _, e := range entries {
		if !isRegular(e) {
			continue
		}

		if !transport.ValidIdent(e.Name()) {
			log(ctx).Errorf("skipping file with invalid ident: %q", e.Name())
			continue
		}

		idents = append(idents, e.Name())
	}

	return idents, nil
}

// isRegular reports whether e is itself a regular file. Symlinks are
// excluded without being resolved, whatever they point to (spec §4.B:
// "symlinks, directories, and special files are ignored").
func isRegular(e os.DirEntry) bool {
	if e.Type()&os.ModeSymlink != 0 {
		return false
	}

	info, err := e.Info()
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// ReadAll reads the whole contents of ident.
func (a *Adapter) ReadAll(ident string) ([]byte, error) {
	path := a.Path(ident)

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, classify(path, err)
	}

	return b, nil
}

// WriteAll creates or truncates ident with bytes. The write lands via
// natefinch/atomic into a staging directory sibling to Dir, then a single
// os.Rename moves the finished file into place. Staging outside Dir means
// no reader (including the scanner's next tick, which lists Dir directly)
// ever observes the temp file atomic.WriteFile creates mid-write, nor the
// partially written file itself.
func (a *Adapter) WriteAll(ident string, data []byte) error {
	path := a.Path(ident)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return classify(path, err)
	}

	if err := os.MkdirAll(a.stagingDir, 0o755); err != nil {
		return classify(a.stagingDir, err)
	}

	stagingPath := filepath.Join(a.stagingDir, ident)

	if err := atomic.WriteFile(stagingPath, bytes.NewReader(data)); err != nil {
		return classify(stagingPath, err)
	}

	if err := os.Rename(stagingPath, path); err != nil {
		return classify(path, err)
	}

	return nil
}

// GetSize returns the size in bytes of ident.
func (a *Adapter) GetSize(ident string) (uint64, error) {
	path := a.Path(ident)

	info, err := os.Stat(path)
	if err != nil {
		return 0, classify(path, err)
	}

	return uint64(info.Size()), nil //nolint:gosec
}

// GetMtime returns the (sec, nsec) modification time of ident. nsec
// precision depends on the host filesystem; some platforms only expose
// second granularity, in which case nsec is 0 (spec §4.B note, §9 Open
// Question 3).
func (a *Adapter) GetMtime(ident string) (sec uint64, nsec uint32, err error) {
	path := a.Path(ident)

	info, statErr := os.Stat(path)
	if statErr != nil {
		return 0, 0, classify(path, statErr)
	}

	mt := info.ModTime()

	return uint64(mt.Unix()), uint32(mt.Nanosecond()), nil //nolint:gosec
}

// SetMtime sets ident's modification time to (sec, nsec). This is
// best-effort: failure is returned to the caller so it can be logged, but
// spec §4.B/§7 requires it never be treated as fatal.
func (a *Adapter) SetMtime(ident string, sec uint64, nsec uint32) error {
	path := a.Path(ident)

	t := time.Unix(int64(sec), int64(nsec)) //nolint:gosec
	if err := os.Chtimes(path, t, t); err != nil {
		return classify(path, err)
	}

	return nil
}

// ExistsRegular reports whether ident exists and is a regular file.
func (a *Adapter) ExistsRegular(ident string) bool {
	info, err := os.Lstat(a.Path(ident))
	if err != nil {
		return false
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return false
	}

	return info.Mode().IsRegular()
}

// IsDirectory reports whether ident exists and is a directory.
func (a *Adapter) IsDirectory(ident string) bool {
	info, err := os.Stat(a.Path(ident))
	if err != nil {
		return false
	}

	return info.IsDir()
}

// Remove deletes ident, reporting whether a file was actually removed.
func (a *Adapter) Remove(ident string) bool {
	return os.Remove(a.Path(ident)) == nil
}
