package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// atomicWriteJSON writes v as JSON to path using the write-temp-then-rename
// pattern: a temp file in the same directory (so rename is same-filesystem),
// fsync'd and permission-locked before the rename, with a manual
// copy-and-fsync fallback for EXDEV (temp dir on a different filesystem than
// the destination), and a final fsync of the parent directory so the rename
// itself is durable. Grounded on the teacher's JSONStorage.saveUnsafe.
func atomicWriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("atomicWriteJSON: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("atomicWriteJSON: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanTemp := true
	defer func() {
		if cleanTemp {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("atomicWriteJSON: chmod temp file: %w", err)
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("atomicWriteJSON: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("atomicWriteJSON: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomicWriteJSON: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if errors.Is(err, syscall.EXDEV) {
			if err := copyFileSync(tmpPath, path); err != nil {
				return fmt.Errorf("atomicWriteJSON: cross-device copy fallback: %w", err)
			}
			cleanTemp = true
		} else {
			return fmt.Errorf("atomicWriteJSON: rename: %w", err)
		}
	} else {
		cleanTemp = false
	}

	return syncParentDir(dir)
}

// copyFileSync copies src to dst and fsyncs the destination, used only when
// the temp file and destination live on different filesystems and a rename
// is not possible.
func copyFileSync(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// syncParentDir fsyncs a directory so a preceding rename into it is durable
// across a crash, not just visible to subsequent reads.
func syncParentDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("syncParentDir: open %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		// Some filesystems (notably certain network mounts) don't support
		// fsync on directories; that's not fatal to the write we already
		// completed and renamed.
		if !errors.Is(err, syscall.EINVAL) {
			return fmt.Errorf("syncParentDir: sync %s: %w", dir, err)
		}
	}
	return nil
}

func readJSONIfExists(path string, v interface{}) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("readJSONIfExists: open %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, fmt.Errorf("readJSONIfExists: decode %s: %w", path, err)
	}
	return true, nil
}
