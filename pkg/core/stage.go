package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"

	"hfa/pkg/archerr"
	"hfa/pkg/container"
)

// partPath returns a fresh staging location in dir.
func partPath(dir string) string {
	return filepath.Join(dir, container.StagePrefix+uuid.NewString()+container.StageSuffix)
}

// writePart stores e in wire form at path inside an LZ4 frame carrying a
// content checksum. A failed write removes the part.
func writePart(path string, e *container.Entry) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("%w: create part %s: %w", archerr.ErrIO, path, err)
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	zw := lz4.NewWriter(f)
	if err := zw.Apply(lz4.ChecksumOption(true)); err != nil {
		f.Close()
		return fmt.Errorf("configure part writer: %w", err)
	}
	if _, err := container.WriteEntry(zw, e); err != nil {
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("%w: close part frame %s: %w", archerr.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close part %s: %w", archerr.ErrIO, path, err)
	}
	return nil
}

// partFile is an entry staged on disk by a worker process.
type partFile struct{ path string }

// merge unframes the part into w. The frame checksum is verified as the
// part is read.
func (p partFile) merge(w *container.Writer) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("%w: open part %s: %w", archerr.ErrIO, p.path, err)
	}
	defer f.Close()
	if _, err := w.WriteEncoded(lz4.NewReader(f)); err != nil {
		return fmt.Errorf("merge part %s: %w", p.path, err)
	}
	return nil
}

func (p partFile) release() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove part %s: %w", archerr.ErrIO, p.path, err)
	}
	return nil
}
