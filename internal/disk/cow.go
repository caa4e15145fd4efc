// Package disk provides the block images attached to emulated storage
// controllers.
package disk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// BlockSize is the granularity of the copy-on-write overlay.
const BlockSize = 512

// ErrClosed is returned by operations on a closed image.
var ErrClosed = errors.New("disk: image closed")

// Image is a fixed-size block device.
type Image interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Size() int64
}

// CowImage serves reads from a read-only base and keeps every write in an
// in-memory overlay. Close discards the overlay, so the base is never
// modified.
type CowImage struct {
	mu sync.Mutex

	name   string
	base   io.ReaderAt
	closer io.Closer
	size   int64

	overlay map[int64][]byte
	closed  bool
}

var _ Image = (*CowImage)(nil)

// NewCow returns an image of size bytes backed by base. A nil base reads as
// zeroes.
func NewCow(name string, base io.ReaderAt, size int64) *CowImage {
	return &CowImage{
		name:    name,
		base:    base,
		size:    size,
		overlay: make(map[int64][]byte),
	}
}

// OpenCow opens the file at path read-only as the base of a new image.
func OpenCow(path string) (*CowImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("disk: %s is a directory", path)
	}
	img := NewCow(path, f, info.Size())
	img.closer = f
	return img, nil
}

func (c *CowImage) Name() string { return c.name }

func (c *CowImage) Size() int64 { return c.size }

// Dirty returns the number of overlay blocks holding writes.
func (c *CowImage) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.overlay)
}

func (c *CowImage) ReadAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("disk: %s: negative offset %d", c.name, off)
	}
	if off >= c.size {
		return 0, io.EOF
	}

	n := len(p)
	var eof error
	if rem := c.size - off; int64(n) > rem {
		n = int(rem)
		eof = io.EOF
	}

	for done := 0; done < n; {
		pos := off + int64(done)
		within := int(pos % BlockSize)
		chunk := min(BlockSize-within, n-done)
		if blk, ok := c.overlay[pos/BlockSize]; ok {
			copy(p[done:done+chunk], blk[within:])
		} else if err := c.readBase(p[done:done+chunk], pos); err != nil {
			return done, err
		}
		done += chunk
	}
	return n, eof
}

func (c *CowImage) WriteAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > c.size {
		return 0, fmt.Errorf("disk: %s: write of %d bytes at %d beyond size %d", c.name, len(p), off, c.size)
	}

	for done := 0; done < len(p); {
		pos := off + int64(done)
		idx := pos / BlockSize
		within := int(pos % BlockSize)
		chunk := min(BlockSize-within, len(p)-done)

		blk, ok := c.overlay[idx]
		if !ok {
			blk = make([]byte, BlockSize)
			start := idx * BlockSize
			if err := c.readBase(blk[:min(BlockSize, c.size-start)], start); err != nil {
				return done, err
			}
			c.overlay[idx] = blk
		}
		copy(blk[within:], p[done:done+chunk])
		done += chunk
	}
	return len(p), nil
}

// readBase fills p from the base; anything the base does not hold reads as
// zeroes.
func (c *CowImage) readBase(p []byte, off int64) error {
	if c.base == nil {
		clear(p)
		return nil
	}
	n, err := c.base.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		clear(p[n:])
		return nil
	}
	if err != nil {
		return fmt.Errorf("disk: %s: read base at %d: %w", c.name, off, err)
	}
	return nil
}

// Close drops every write made through the image and releases the base.
func (c *CowImage) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	slog.Debug("discarding copy-on-write overlay", "image", c.name, "blocks", len(c.overlay))
	c.overlay = nil
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
