package scheduler

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/backmassage/histpack/internal/fault"
)

// Ledger appends md5sum-compatible lines to checksums.<stamp>.md5 in each
// output directory. Appends from concurrent jobs are serialized.
type Ledger struct {
	stamp string
	mu    sync.Mutex
}

// NewLedger returns a ledger writing files named after stamp.
func NewLedger(stamp string) *Ledger {
	if stamp == "" {
		stamp = time.Now().Format("20060102-150405")
	}
	return &Ledger{stamp: stamp}
}

// Path is the ledger file for dir.
func (l *Ledger) Path(dir string) string {
	return filepath.Join(dir, "checksums."+l.stamp+".md5")
}

// Append hashes file and records "<md5>  <basename>" in its directory's
// ledger. It returns the hex digest.
func (l *Ledger) Append(file string) (string, error) {
	sum, err := Digest(file)
	if err != nil {
		return "", err
	}
	line := sum + "  " + filepath.Base(file) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	path := l.Path(filepath.Dir(file))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fault.Newf(fault.KindTool, "checksum", path, "%v", err)
	}
	if _, err := io.WriteString(f, line); err != nil {
		_ = f.Close()
		return "", fault.Newf(fault.KindTool, "checksum", path, "%v", err)
	}
	if err := f.Close(); err != nil {
		return "", fault.Newf(fault.KindTool, "checksum", path, "%v", err)
	}
	return sum, nil
}

// Digest returns the hex md5 of file.
func Digest(file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fault.New("checksum", file, fmt.Errorf("%w: %v", fault.ErrMissingFile, err))
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fault.Newf(fault.KindTool, "checksum", file, "%v", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// stampMtime sets out's modification time to the newest input mtime.
func stampMtime(out string, inputs []string) error {
	var newest time.Time
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return fault.New("stat", in, fmt.Errorf("%w: %v", fault.ErrMissingFile, err))
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	if newest.IsZero() {
		return nil
	}
	if err := os.Chtimes(out, newest, newest); err != nil {
		return fault.Newf(fault.KindTool, "touch", out, "%v", err)
	}
	return nil
}

// copyFile copies src to dst byte for byte, keeping src's permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fault.New("copy", src, fmt.Errorf("%w: %v", fault.ErrMissingFile, err))
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fault.Newf(fault.KindTool, "copy", src, "%v", err)
	}

	tmp := dst + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fault.Newf(fault.KindTool, "copy", dst, "%v", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fault.Newf(fault.KindTool, "copy", dst, "%v", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fault.Newf(fault.KindTool, "copy", dst, "%v", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fault.Newf(fault.KindTool, "copy", dst, "%v", err)
	}
	return nil
}

// moveFile renames src to dst, falling back to copy and remove across
// filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fault.Newf(fault.KindTool, "move", dst, "%v", err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fault.Newf(fault.KindTool, "move", src, "%v", err)
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fault.Newf(fault.KindTool, "move", src, "%v", err)
	}
	return nil
}
