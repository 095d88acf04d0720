package lsm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrOutOfRange is the invariant-violation panic value raised when a read
// extends past the end of a ByteFile, per spec section 4.1 / 4.11: file
// bounds are a fatal precondition, not a recoverable error.
type ErrOutOfRange struct {
	Offset, Length, Size uint64
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("lsm: read [%d, %d) out of range for file of size %d", e.Offset, e.Offset+e.Length, e.Size)
}

// ByteFile is an append-once blob: Read(offset, length), WriteAll(bytes),
// Size(). Two implementations exist in this package: diskFile, a plain
// disk-backed file named sstable_<id> in the store's working directory,
// and bufferedFile, which routes reads through the frame cache while still
// writing straight to the underlying path (spec section 4.1).
type ByteFile interface {
	Read(offset, length uint64) ([]byte, error)
	WriteAll(data []byte) error
	Size() uint64
	// Close releases the backing file, removing it from disk. There is no
	// reference count: the first Close removes the file.
	Close() error
}

// diskFile is a disk-backed ByteFile with identity name sstable_<id> in
// dir, removed on Close.
type diskFile struct {
	path string
	f    *os.File
	size uint64
}

func newDiskFile(dir string, tableID uint64) (*diskFile, error) {
	path := filepath.Join(dir, sstableFileName(tableID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "lsm: open %s", path)
	}
	return &diskFile{path: path, f: f}, nil
}

// openDiskFileForRead opens an existing sstable_<id> file without
// truncating it. Its only caller is openBufferedFileForRead, which nothing
// in this package calls.
func openDiskFileForRead(dir string, tableID uint64) (*diskFile, error) {
	path := filepath.Join(dir, sstableFileName(tableID))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "lsm: open %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "lsm: stat %s", path)
	}
	return &diskFile{path: path, f: f, size: uint64(st.Size())}, nil
}

func (d *diskFile) Read(offset, length uint64) ([]byte, error) {
	if offset+length > d.size {
		panic(&ErrOutOfRange{Offset: offset, Length: length, Size: d.size})
	}
	buf := make([]byte, length)
	if _, err := d.f.ReadAt(buf, int64(offset)); err != nil {
		return nil, errors.Wrapf(err, "lsm: read %s", d.path)
	}
	return buf, nil
}

func (d *diskFile) WriteAll(data []byte) error {
	if err := d.f.Truncate(0); err != nil {
		return errors.Wrapf(err, "lsm: truncate %s", d.path)
	}
	if _, err := d.f.WriteAt(data, 0); err != nil {
		return errors.Wrapf(err, "lsm: write %s", d.path)
	}
	d.size = uint64(len(data))
	return nil
}

func (d *diskFile) Size() uint64 { return d.size }

func (d *diskFile) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	if rmErr := os.Remove(d.path); rmErr != nil && err == nil {
		err = errors.Wrapf(rmErr, "lsm: remove %s", d.path)
	}
	return err
}

// bufferedFile wraps a diskFile so that reads are served through a
// frameCache in fixed-size pages, while writes still go straight to the
// underlying path (spec section 4.1).
type bufferedFile struct {
	tableID uint64
	disk    *diskFile
	cache   *frameCache
}

func newBufferedFile(dir string, tableID uint64, cache *frameCache) (*bufferedFile, error) {
	d, err := newDiskFile(dir, tableID)
	if err != nil {
		return nil, err
	}
	return &bufferedFile{tableID: tableID, disk: d, cache: cache}, nil
}

func openBufferedFileForRead(dir string, tableID uint64, cache *frameCache) (*bufferedFile, error) {
	d, err := openDiskFileForRead(dir, tableID)
	if err != nil {
		return nil, err
	}
	return &bufferedFile{tableID: tableID, disk: d, cache: cache}, nil
}

func (b *bufferedFile) WriteAll(data []byte) error { return b.disk.WriteAll(data) }
func (b *bufferedFile) Size() uint64               { return b.disk.Size() }
func (b *bufferedFile) Close() error                { return b.disk.Close() }

func (b *bufferedFile) Read(offset, length uint64) ([]byte, error) {
	if offset+length > b.disk.size {
		panic(&ErrOutOfRange{Offset: offset, Length: length, Size: b.disk.size})
	}
	if length == 0 {
		return nil, nil
	}
	frameSize := b.cache.frameSize
	l := offset / frameSize
	r := (offset + length - 1) / frameSize
	frames, err := b.cache.GetFrames(b.tableID, l, r)
	if err != nil {
		return nil, err
	}
	result := make([]byte, length)
	if l == r {
		start := offset % frameSize
		copy(result, frames[0].data[start:start+length])
		return result, nil
	}
	start := offset % frameSize
	firstLen := frameSize - start
	copy(result, frames[0].data[start:])
	written := firstLen
	for i := 1; i < len(frames)-1; i++ {
		copy(result[written:], frames[i].data)
		written += frameSize
	}
	copy(result[written:], frames[len(frames)-1].data[:length-written])
	return result, nil
}
