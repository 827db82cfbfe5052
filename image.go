package fat32

import (
	"io"
	"os"
	"sync"

	"github.com/fatcrawl/fat32/checkpoint"
)

// Image is the L1 abstraction over the underlying file or block device
// that backs a FAT32 volume. All offsets are absolute byte offsets into
// the image; sector and cluster arithmetic lives above this layer.
//
// Implementations must make writes durable no later than Flush returns.
type Image interface {
	ReadAt(offset int64, length int) ([]byte, error)
	WriteAt(offset int64, data []byte) error
	Flush() error
	Size() (int64, error)
}

// sectorCache remembers the single most-recently fetched sector - most
// traffic in this engine is sequential directory/FAT reads where the
// previous sector is likely to be re-read immediately (e.g. re-deriving
// an offset within the same sector for both a read and, during mutation,
// the paired write).
type sectorCache struct {
	sectorSize int64
	current    int64
	buffer     []byte
	valid      bool
}

func (c *sectorCache) get(sectorNum int64) ([]byte, bool) {
	if c.valid && c.current == sectorNum {
		return c.buffer, true
	}
	return nil, false
}

func (c *sectorCache) put(sectorNum int64, data []byte) {
	c.current = sectorNum
	c.buffer = data
	c.valid = true
}

func (c *sectorCache) invalidate() {
	c.valid = false
}

// fileImage implements Image over any io.ReaderAt/io.WriterAt combined with
// a Sync-like flush and a size query (see ReadWriteFlusher).
type fileImage struct {
	mu         sync.Mutex
	backing    ReadWriteFlusher
	sectorSize int64
	cache      sectorCache
}

// ReadWriteFlusher is the minimal surface an image backing needs: readable
// and writable at arbitrary offsets, with an explicit durability point.
// An *os.File is adapted to it by osFileBacking (see NewFileImage), whose
// Flush calls Sync.
type ReadWriteFlusher interface {
	io.ReaderAt
	io.WriterAt
	Flush() error
	Size() (int64, error)
}

// NewImage wraps backing as an Image. sectorSize is used only to size the
// single-sector read cache; it need not match the volume's actual sector
// size exactly, but using the real value (once known) avoids cache thrash.
func NewImage(backing ReadWriteFlusher, sectorSize int64) Image {
	if sectorSize <= 0 {
		sectorSize = 512
	}
	return &fileImage{
		backing:    backing,
		sectorSize: sectorSize,
		cache:      sectorCache{sectorSize: sectorSize},
	}
}

func (f *fileImage) ReadAt(offset int64, length int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Fast path: the whole read falls inside the single cached sector.
	sectorNum := offset / f.sectorSize
	sectorStart := sectorNum * f.sectorSize
	if int64(length) <= f.sectorSize && offset+int64(length) <= sectorStart+f.sectorSize {
		if cached, ok := f.cache.get(sectorNum); ok {
			start := offset - sectorStart
			return append([]byte(nil), cached[start:start+int64(length)]...), nil
		}

		buf := make([]byte, f.sectorSize)
		n, err := f.backing.ReadAt(buf, sectorStart)
		if err != nil && !(err == io.EOF && n > 0) {
			return nil, checkpoint.Wrap(err, &IoError{Underlying: err})
		}
		f.cache.put(sectorNum, buf)
		start := offset - sectorStart
		return append([]byte(nil), buf[start:start+int64(length)]...), nil
	}

	buf := make([]byte, length)
	n, err := f.backing.ReadAt(buf, offset)
	if err != nil && !(err == io.EOF && n == length) {
		return nil, checkpoint.Wrap(err, &IoError{Underlying: err})
	}
	return buf, nil
}

func (f *fileImage) WriteAt(offset int64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Any write invalidates the cache unconditionally: recomputing the
	// overlap precisely is not worth the bookkeeping for a single-sector
	// cache whose whole point is cheap repeated reads, not writes.
	f.cache.invalidate()

	_, err := f.backing.WriteAt(data, offset)
	if err != nil {
		return checkpoint.Wrap(err, &IoError{Underlying: err})
	}
	return nil
}

func (f *fileImage) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.backing.Flush(); err != nil {
		return checkpoint.Wrap(err, &IoError{Underlying: err})
	}
	return nil
}

func (f *fileImage) Size() (int64, error) {
	return f.backing.Size()
}

// osFileBacking adapts *os.File (or anything with the same four methods)
// to ReadWriteFlusher so it can be passed straight to NewImage.
type osFileBacking struct {
	File interface {
		io.ReaderAt
		io.WriterAt
		Sync() error
		Stat() (os.FileInfo, error)
	}
}

func (o osFileBacking) ReadAt(p []byte, off int64) (int, error)  { return o.File.ReadAt(p, off) }
func (o osFileBacking) WriteAt(p []byte, off int64) (int, error) { return o.File.WriteAt(p, off) }
func (o osFileBacking) Flush() error                             { return o.File.Sync() }
func (o osFileBacking) Size() (int64, error) {
	info, err := o.File.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// NewFileImage opens f (typically an *os.File opened on the image path) as
// an Image. sectorSize sizes the read cache only; pass 0 to use the
// default of 512 until the real geometry is known.
func NewFileImage(f interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Stat() (os.FileInfo, error)
}, sectorSize int64) Image {
	return NewImage(osFileBacking{File: f}, sectorSize)
}
