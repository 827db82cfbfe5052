package fat32

import (
	"io"
	"os"

	"github.com/spf13/afero"
)

// handle adapts a decoded File into an afero.File. Content is read lazily
// and buffered in memory between Open and Close/Sync, matching the
// browser's use case of short-lived handles on modestly sized files.
type handle struct {
	vol    *Volume
	file   *File
	data   []byte
	loaded bool
	pos    int64
	dirty  bool
}

func newHandle(v *Volume, f *File) afero.File {
	return &handle{vol: v, file: f}
}

var _ afero.File = (*handle)(nil)

func (h *handle) ensureLoaded() error {
	if h.loaded {
		return nil
	}
	if !h.file.IsDir() {
		data, err := h.vol.ReadFile(h.file)
		if err != nil {
			return err
		}
		h.data = data
	}
	h.loaded = true
	return nil
}

func (h *handle) Read(p []byte) (int, error) {
	if err := h.ensureLoaded(); err != nil {
		return 0, err
	}
	if h.pos >= int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *handle) ReadAt(p []byte, off int64) (int, error) {
	if err := h.ensureLoaded(); err != nil {
		return 0, err
	}
	if off >= int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.data[off:])
	var err error
	if off+int64(n) >= int64(len(h.data)) {
		err = io.EOF
	}
	return n, err
}

func (h *handle) Seek(offset int64, whence int) (int64, error) {
	if err := h.ensureLoaded(); err != nil {
		return 0, err
	}
	switch whence {
	case io.SeekStart:
		h.pos = offset
	case io.SeekCurrent:
		h.pos += offset
	case io.SeekEnd:
		h.pos = int64(len(h.data)) + offset
	}
	return h.pos, nil
}

func (h *handle) Write(p []byte) (int, error) {
	if err := h.ensureLoaded(); err != nil {
		return 0, err
	}
	end := h.pos + int64(len(p))
	if end > int64(len(h.data)) {
		grown := make([]byte, end)
		copy(grown, h.data)
		h.data = grown
	}
	copy(h.data[h.pos:end], p)
	h.pos = end
	h.dirty = true
	return len(p), nil
}

func (h *handle) WriteAt(p []byte, off int64) (int, error) {
	h.pos = off
	return h.Write(p)
}

func (h *handle) WriteString(s string) (int, error) { return h.Write([]byte(s)) }

func (h *handle) Name() string { return h.file.Name() }

func (h *handle) Readdir(count int) ([]os.FileInfo, error) {
	children := h.file.Children()
	if count > 0 && count < len(children) {
		children = children[:count]
	}
	out := make([]os.FileInfo, len(children))
	for i, c := range children {
		out[i] = fileInfo{c}
	}
	return out, nil
}

func (h *handle) Readdirnames(n int) ([]string, error) {
	infos, err := h.Readdir(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

func (h *handle) Stat() (os.FileInfo, error) { return fileInfo{h.file}, nil }

func (h *handle) Sync() error {
	if !h.dirty {
		return nil
	}
	if err := h.vol.writeFileContent(h.file, h.data); err != nil {
		return err
	}
	h.dirty = false
	return nil
}

func (h *handle) Truncate(size int64) error {
	if err := h.ensureLoaded(); err != nil {
		return err
	}
	if size <= int64(len(h.data)) {
		h.data = h.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, h.data)
		h.data = grown
	}
	h.dirty = true
	return nil
}

func (h *handle) Close() error { return h.Sync() }
