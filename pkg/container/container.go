// Package container implements the archive layer of the secure package
// format: a ZIP file treated as an ordered bag of write-once named byte
// entries. The rest of the system uses it as an opaque key-value store.
//
// The reader is hardened against hostile input: entries are rejected when
// their declared size exceeds the configured ceiling, aborted mid-stream if
// the inflated bytes exceed it anyway (decompression bombs lie about their
// size), and extraction refuses any path that resolves outside the
// destination directory (zip-slip).
package container

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DefaultMaxEntrySize is the per-entry ceiling (100 MiB).
	DefaultMaxEntrySize int64 = 100 * 1024 * 1024

	// MetadataPrefix is the reserved namespace for archive bookkeeping.
	// Entries under it carry no semantic content and are exempt from the
	// file-inventory and whitelist checks.
	MetadataPrefix = "META/"

	// ManifestEntry and SignatureEntry are reserved names. The signature
	// covers the manifest and the manifest's inventory covers everything
	// else, so neither can appear in the inventory itself.
	ManifestEntry  = "manifest.json"
	SignatureEntry = "signature.json"
)

var (
	ErrEntryTooLarge  = errors.New("entry exceeds size ceiling")
	ErrEntryNotFound  = errors.New("entry not found in archive")
	ErrDuplicateEntry = errors.New("entry already written")
	ErrWriterClosed   = errors.New("container writer is closed")
	ErrPathTraversal  = errors.New("entry path escapes destination directory")
)

// Reserved reports whether name is exempt from inventory and whitelist
// checks.
func Reserved(name string) bool {
	return name == ManifestEntry || name == SignatureEntry ||
		strings.HasPrefix(name, MetadataPrefix)
}

// Option configures a Writer or Reader.
type Option func(*options)

type options struct {
	maxEntrySize int64
}

// WithMaxEntrySize overrides the per-entry size ceiling.
func WithMaxEntrySize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntrySize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxEntrySize: DefaultMaxEntrySize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Writer builds a fresh archive. Entries are write-once; there is no
// update or delete. It records the SHA-256 of every entry as it is
// written, so the caller can build a file inventory without re-reading.
type Writer struct {
	zw        *zip.Writer
	opts      options
	inventory map[string]string
	closed    bool
}

// NewWriter creates a writer emitting to w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{
		zw:        zip.NewWriter(w),
		opts:      buildOptions(opts),
		inventory: map[string]string{},
	}
}

// WriteEntry adds a named entry. The size ceiling is enforced before any
// bytes are buffered into the archive.
func (w *Writer) WriteEntry(name string, data []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	if int64(len(data)) > w.opts.maxEntrySize {
		return fmt.Errorf("%w: %s is %d bytes", ErrEntryTooLarge, name, len(data))
	}
	if _, dup := w.inventory[name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}

	ew, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}

	sum := sha256.Sum256(data)
	w.inventory[name] = hex.EncodeToString(sum[:])
	return nil
}

// Inventory returns path → SHA-256 for every non-reserved entry written
// so far.
func (w *Writer) Inventory() map[string]string {
	out := make(map[string]string, len(w.inventory))
	for name, hash := range w.inventory {
		if Reserved(name) {
			continue
		}
		out[name] = hash
	}
	return out
}

// Close finalizes the archive. The writer is unusable afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true
	return w.zw.Close()
}

// Reader opens an existing archive for verification and extraction.
type Reader struct {
	zr   *zip.ReadCloser
	opts options
}

// OpenReader opens the archive at path.
func OpenReader(path string, opts ...Option) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &Reader{zr: zr, opts: buildOptions(opts)}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.zr.Close()
}

func (r *Reader) find(name string) (*zip.File, error) {
	for _, f := range r.zr.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

// HasEntry reports whether the archive contains name.
func (r *Reader) HasEntry(name string) bool {
	_, err := r.find(name)
	return err == nil
}

// ReadEntry returns the full contents of a named entry. The declared size
// is checked before materializing, and the inflating stream is capped so a
// lying header cannot force unbounded buffering.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	f, err := r.find(name)
	if err != nil {
		return nil, err
	}
	if int64(f.UncompressedSize64) > r.opts.maxEntrySize {
		return nil, fmt.Errorf("%w: %s declares %d bytes", ErrEntryTooLarge, name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, r.opts.maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	if int64(len(data)) > r.opts.maxEntrySize {
		return nil, fmt.Errorf("%w: %s inflated past ceiling", ErrEntryTooLarge, name)
	}
	return data, nil
}

// ListEntries returns the names of all file entries in the archive,
// including reserved ones, in sorted order.
func (r *Reader) ListEntries() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// HashEntries streams every non-reserved entry through SHA-256 with
// bounded memory and returns path → hex digest. An entry that inflates
// past the ceiling mid-stream aborts the whole operation; the declared
// size alone is never trusted.
func (r *Reader) HashEntries() (map[string]string, error) {
	hashes := map[string]string{}
	for _, f := range r.zr.File {
		name := f.Name
		if strings.HasSuffix(name, "/") || Reserved(name) {
			continue
		}
		if int64(f.UncompressedSize64) > r.opts.maxEntrySize {
			return nil, fmt.Errorf("%w: %s declares %d bytes", ErrEntryTooLarge, name, f.UncompressedSize64)
		}

		digest, err := r.hashEntry(f)
		if err != nil {
			return nil, err
		}
		hashes[name] = digest
	}
	return hashes, nil
}

func (r *Reader) hashEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	h := sha256.New()
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > r.opts.maxEntrySize {
				return "", fmt.Errorf("%w: %s inflated past ceiling while hashing", ErrEntryTooLarge, f.Name)
			}
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("hash entry %s: %w", f.Name, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ExtractEntry writes a named entry under destDir and returns the written
// path. The target is canonicalized first; anything resolving outside
// destDir is refused.
func (r *Reader) ExtractEntry(name, destDir string) (string, error) {
	f, err := r.find(name)
	if err != nil {
		return "", err
	}
	if int64(f.UncompressedSize64) > r.opts.maxEntrySize {
		return "", fmt.Errorf("%w: %s declares %d bytes", ErrEntryTooLarge, name, f.UncompressedSize64)
	}

	target, err := SafeJoin(destDir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create extraction directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(rc, r.opts.maxEntrySize+1))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	if n > r.opts.maxEntrySize {
		os.Remove(target)
		return "", fmt.Errorf("%w: %s inflated past ceiling", ErrEntryTooLarge, name)
	}
	return target, nil
}

// SafeJoin resolves name under destDir and rejects traversal. Exported so
// the package service can apply the same discipline to decrypted payload
// filenames that never pass through ExtractEntry.
func SafeJoin(destDir, name string) (string, error) {
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("resolve destination: %w", err)
	}
	if filepath.IsAbs(name) || filepath.IsAbs(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}

	target := filepath.Join(absDest, filepath.FromSlash(name))
	if target != absDest && !strings.HasPrefix(target, absDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	return target, nil
}
