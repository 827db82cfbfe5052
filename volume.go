package fat32

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/fatcrawl/fat32/checkpoint"
)

// Volume is the top-level handle onto an open FAT32 filesystem: geometry,
// FAT table and decoded file tree, built around explicit Options instead
// of package-scope state.
type Volume struct {
	mu sync.Mutex

	image    Image
	geometry *Geometry
	table    *Table
	options  Options
	logger   Logger

	root *File
}

// New opens a FAT32 volume from image. The boot sector and FSInfo sector
// are parsed and validated, the FAT copies are checked for divergence, and
// the whole directory tree is decoded eagerly starting from the root.
func New(image Image, opts Options) (*Volume, error) {
	logger := opts.logger()

	boot, err := image.ReadAt(0, 512)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidImage)
	}

	var geometry *Geometry
	if opts.SkipChecks {
		geometry, err = ParseGeometrySkipChecks(boot)
	} else {
		geometry, err = ParseGeometry(boot)
	}
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidImage)
	}

	if _, err := ReadFSInfo(image, geometry); err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidImage)
	}

	if err := VerifyFatCopiesEqual(image, geometry); err != nil {
		if !opts.ScanMode {
			return nil, checkpoint.Wrap(err, ErrFatCopiesDiverged)
		}
		logger.Warn("fat copies diverged, continuing because scan mode is enabled", "error", err)
	}

	v := &Volume{
		image:    image,
		geometry: geometry,
		table:    NewTable(image, geometry, logger),
		options:  opts,
		logger:   logger,
	}

	root, err := v.buildTree()
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidImage)
	}
	v.root = root

	return v, nil
}

// Geometry returns the volume's parsed boot-sector layout.
func (v *Volume) Geometry() *Geometry { return v.geometry }

// Table returns the volume's FAT table, for callers (scandisk, write.go)
// that need direct chain manipulation.
func (v *Volume) Table() *Table { return v.table }

// Root returns the decoded root directory entry.
func (v *Volume) Root() *File { return v.root }

// Label returns the volume label recorded in the boot sector.
func (v *Volume) Label() string { return v.geometry.VolumeLabel }

// dirQueueItem is one pending directory to decode, used by the iterative
// (non-recursive) tree builder below.
type dirQueueItem struct {
	parent  *File
	cluster uint32
	depth   int
}

// buildTree decodes the whole directory tree starting at the root, using
// an explicit work-queue instead of recursion so that a corrupt image with
// a cyclic ".." chain cannot grow the Go call stack without bound.
func (v *Volume) buildTree() (*File, error) {
	root := &File{Attributes: AttrDirectory, LongName: "/"}

	queue := []dirQueueItem{{parent: root, cluster: v.geometry.RootFirstCluster, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth > maxDirectoryDepth {
			v.logger.Warn("directory depth bound exceeded, truncating traversal",
				"path", item.parent.Path(), "depth", item.depth)
			continue
		}

		data, err := v.readClusterChain(item.cluster)
		if err != nil {
			v.logger.Warn("could not read directory, skipping", "path", item.parent.Path(), "error", err)
			continue
		}

		entries := parseDirectoryBytes(data, v.logger)
		for _, e := range entries {
			child := newFileFromEntry(e)
			child.parent = item.parent
			item.parent.children = append(item.parent.children, child)

			if child.IsDir() && child.FirstCluster >= 2 {
				queue = append(queue, dirQueueItem{parent: child, cluster: child.FirstCluster, depth: item.depth + 1})
			}
		}
	}

	return root, nil
}

// readClusterChain follows start's FAT chain and concatenates every
// cluster's raw bytes. Used both for directory contents and (truncated to
// SizeBytes) regular file contents.
func (v *Volume) readClusterChain(start uint32) ([]byte, error) {
	if start < 2 {
		return nil, nil
	}

	chain, err := v.table.Walk(start)
	if err != nil && len(chain) == 0 {
		return nil, checkpoint.Wrap(err, errIo)
	}

	buf := make([]byte, 0, len(chain)*int(v.geometry.ClusterSize))
	for _, c := range chain {
		start, end := v.geometry.ClusterByteRange(c)
		b, rerr := v.image.ReadAt(start, int(end-start))
		if rerr != nil {
			return buf, checkpoint.Wrap(rerr, errIo)
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

// ReadFile returns f's full content, truncated to its recorded size.
func (v *Volume) ReadFile(f *File) ([]byte, error) {
	if f.IsDir() {
		return nil, checkpoint.From(ErrIsADirectory)
	}
	if f.FirstCluster < 2 || f.SizeBytes == 0 {
		return nil, nil
	}

	data, err := v.readClusterChain(f.FirstCluster)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) > f.SizeBytes {
		data = data[:f.SizeBytes]
	}
	return data, nil
}

// Resolve walks the tree from the root following slash-separated path
// components, case-insensitively (FAT short/long names are not case
// sensitive for lookup purposes).
func (v *Volume) Resolve(path string) (*File, error) {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" || path == "." {
		return v.root, nil
	}

	current := v.root
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		next := findChild(current, part)
		if next == nil {
			return nil, checkpoint.From(&NotFoundError{Path: path})
		}
		current = next
	}
	return current, nil
}

func findChild(dir *File, name string) *File {
	upper := strings.ToUpper(name)
	for _, c := range dir.children {
		if strings.ToUpper(c.Name()) == upper {
			return c
		}
	}
	return nil
}

// afero.Fs implementation, backed by Resolve/ReadFile and write.go.

var _ afero.Fs = (*Volume)(nil)

func (v *Volume) Name() string { return "FAT32" }

func (v *Volume) Open(name string) (afero.File, error) {
	f, err := v.Resolve(name)
	if err != nil {
		return nil, err
	}
	return newHandle(v, f), nil
}

func (v *Volume) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_CREATE) != 0 {
		if _, err := v.Resolve(name); err != nil {
			return v.Create(name)
		}
	}
	return v.Open(name)
}

func (v *Volume) Stat(name string) (os.FileInfo, error) {
	f, err := v.Resolve(name)
	if err != nil {
		return nil, err
	}
	return fileInfo{f}, nil
}

func (v *Volume) Create(name string) (afero.File, error) {
	if v.options.ReadOnly {
		return nil, checkpoint.From(ErrPermissionDenied)
	}
	dir, base := splitParentBase(name)
	parent, err := v.Resolve(dir)
	if err != nil {
		return nil, err
	}
	f, err := v.createEntry(parent, base, 0)
	if err != nil {
		return nil, err
	}
	return newHandle(v, f), nil
}

func (v *Volume) Mkdir(name string, perm os.FileMode) error {
	if v.options.ReadOnly {
		return checkpoint.From(ErrPermissionDenied)
	}
	dir, base := splitParentBase(name)
	parent, err := v.Resolve(dir)
	if err != nil {
		return err
	}
	_, err = v.createEntry(parent, base, AttrDirectory)
	return err
}

func (v *Volume) MkdirAll(path string, perm os.FileMode) error {
	path = strings.TrimPrefix(filepath.ToSlash(path), "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	current := ""
	for _, part := range parts {
		current = current + "/" + part
		if _, err := v.Resolve(current); err != nil {
			if err := v.Mkdir(current, perm); err != nil {
				return err
			}
		}
	}
	return nil
}

// Remove is not implemented: deletion and directory-entry reclaim are out
// of scope (see DESIGN.md's dropped-feature note).
func (v *Volume) Remove(name string) error {
	return checkpoint.From(ErrUnsupported)
}

// RemoveAll is not implemented for the same reason as Remove.
func (v *Volume) RemoveAll(path string) error {
	return checkpoint.From(ErrUnsupported)
}

// Rename is not implemented (see DESIGN.md's dropped-feature note).
func (v *Volume) Rename(oldname, newname string) error {
	return checkpoint.From(ErrUnsupported)
}

func (v *Volume) Chmod(name string, mode os.FileMode) error { return nil }

func (v *Volume) Chown(name string, uid, gid int) error { return nil }

func (v *Volume) Chtimes(name string, atime time.Time, mtime time.Time) error { return nil }

func splitParentBase(name string) (dir, base string) {
	name = strings.TrimSuffix(filepath.ToSlash(name), "/")
	idx := strings.LastIndexByte(name, '/')
	if idx < 0 {
		return "/", name
	}
	return name[:idx], name[idx+1:]
}

// fileInfo adapts *File to os.FileInfo.
type fileInfo struct{ f *File }

func (i fileInfo) Name() string { return i.f.Name() }
func (i fileInfo) Size() int64  { return int64(i.f.SizeBytes) }
func (i fileInfo) Mode() os.FileMode {
	if i.f.IsDir() {
		return os.ModeDir | 0o755
	}
	if i.f.Attributes&AttrReadOnly != 0 {
		return 0o444
	}
	return 0o644
}
func (i fileInfo) ModTime() time.Time {
	if i.f.ChangeOK {
		return i.f.ChangeTime
	}
	return time.Time{}
}
func (i fileInfo) IsDir() bool      { return i.f.IsDir() }
func (i fileInfo) Sys() interface{} { return i.f }
