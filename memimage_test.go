package fat32

import "sync"

// memBacking is an in-memory ReadWriteFlusher used to build synthetic FAT32
// images for tests without touching the filesystem.
type memBacking struct {
	mu   sync.Mutex
	data []byte
}

func newMemBacking(size int64) *memBacking {
	return &memBacking{data: make([]byte, size)}
}

func (m *memBacking) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memBacking) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(m.data[off:], p)
	return n, nil
}

func (m *memBacking) Flush() error { return nil }

func (m *memBacking) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}
