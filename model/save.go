package model

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// WriteExclusive creates path and writes data to it. It fails if path already
// exists and removes partial files on error.
func WriteExclusive(path string, data []byte) error {
	return CopyExclusive(path, bytes.NewReader(data))
}

// CopyExclusive is WriteExclusive for content streamed from r.
func CopyExclusive(path string, r io.Reader) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
