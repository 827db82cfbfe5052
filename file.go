package fat32

import (
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

var cp866Decoder = charmap.CodePage866.NewDecoder()

// maxDirectoryDepth bounds directory traversal depth, defending against
// cyclic ".." corruption.
const maxDirectoryDepth = 128

// File is the in-memory record of one directory entry. parent is a
// back-reference only (a lookup, never an ownership edge); the owning
// edge is the parent's children slice.
type File struct {
	ShortName       [11]byte
	LongName        string
	Attributes      byte
	CreateTime      time.Time
	CreateTimeOK    bool
	CreateTimeTenth uint8 // raw 0..199 centisecond byte, already folded into CreateTime's sub-second component
	LastAccessDate  time.Time
	LastAccessOK    bool
	ChangeTime      time.Time
	ChangeOK        bool
	SizeBytes       uint32
	FirstCluster    uint32

	parent   *File
	children []*File
}

// IsDir reports whether the entry is a directory.
func (f *File) IsDir() bool { return f.Attributes&AttrDirectory != 0 }

// Name returns the long name if one was decoded, otherwise the formatted
// short name.
func (f *File) Name() string {
	if f.LongName != "" {
		return f.LongName
	}
	return ShortNameOf(f.ShortName)
}

// Parent returns the back-reference to the containing directory, or nil
// for the root.
func (f *File) Parent() *File { return f.parent }

// Children returns the directory's decoded entries in on-disk order. Nil
// for regular files.
func (f *File) Children() []*File { return f.children }

// Path reconstructs the absolute slash-separated path of f by walking
// parent back-references.
func (f *File) Path() string {
	if f.parent == nil {
		return "/"
	}
	var parts []string
	for cur := f; cur.parent != nil; cur = cur.parent {
		parts = append([]string{cur.Name()}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

// rawDirEntry is one decoded logical directory entry (a standard entry
// plus whatever long name preceded it), before it is attached to the File
// tree or recursed into.
type rawDirEntry struct {
	Short    shortEntry
	LongName string
	LFNWarn  bool // checksum mismatch between LFN chain and short entry
}

// parseDirectoryBytes decodes a directory's raw cluster-chain bytes into
// a sequence of logical entries. It never fails: malformed entries are
// skipped or degraded rather than treated as a fatal error.
func parseDirectoryBytes(data []byte, logger Logger) []rawDirEntry {
	var out []rawDirEntry
	var acc lfnAccumulator

	for off := 0; off+entrySize <= len(data); off += entrySize {
		slot := data[off : off+entrySize]

		if slot[0] == 0x00 {
			break
		}
		if slot[0] == 0xE5 {
			acc.reset()
			continue
		}

		// Work on a copy: slot[0] == 0x05 means "literal 0xE5", not a
		// deletion marker, but we must not mutate the backing buffer.
		entryBytes := append([]byte(nil), slot...)
		if entryBytes[0] == 0x05 {
			entryBytes[0] = 0xE5
		}

		attribute := entryBytes[11]

		if attribute&AttrLongName == AttrLongName {
			lfn := decodeLfnEntry(entryBytes)
			acc.add(lfn)
			continue
		}

		if attribute&AttrVolumeID == AttrVolumeID {
			acc.reset()
			continue
		}

		short := decodeShortEntry(entryBytes)

		name := ShortNameOf(short.Name)
		base := strings.TrimRight(string(short.Name[0:8]), " ")
		if base == "." || base == ".." {
			acc.reset()
			continue
		}
		_ = name

		entry := rawDirEntry{Short: short}
		if !acc.empty() {
			checksum := shortNameChecksum(short.Name)
			if acc.checksum != checksum {
				entry.LFNWarn = true
				if logger != nil {
					logger.Warn("lfn checksum mismatch, accepting entry anyway",
						"short_name", name, "expected", checksum, "got", acc.checksum)
				}
			}
			entry.LongName = acc.text
		}
		acc.reset()

		out = append(out, entry)
	}

	return out
}

// decodeShortNameDisplay formats a short entry's name for display: no dot
// for directories, CP866-decoded otherwise trimmed of padding on both
// sides.
func decodeShortNameDisplay(short shortEntry) string {
	nameBytes, _ := cp866Decoder.Bytes(short.Name[0:8])
	extBytes, _ := cp866Decoder.Bytes(short.Name[8:11])

	name := strings.TrimRight(string(nameBytes), " ")
	ext := strings.TrimRight(string(extBytes), " ")

	if short.Attribute&AttrDirectory != 0 || ext == "" {
		return name
	}
	return name + "." + ext
}

func newFileFromEntry(e rawDirEntry) *File {
	f := &File{
		ShortName:  e.Short.Name,
		LongName:   e.LongName,
		Attributes: e.Short.Attribute,
		SizeBytes:  e.Short.FileSize,
		FirstCluster: e.Short.firstCluster(),
	}
	if f.LongName == "" {
		f.LongName = decodeShortNameDisplay(e.Short)
	}

	if t, ok := DecodeDateTime(e.Short.CreateDate, e.Short.CreateTime); ok {
		f.CreateTime = t.Add(centisecondsToDuration(e.Short.CreateTimeTenth))
		f.CreateTimeTenth = e.Short.CreateTimeTenth
		f.CreateTimeOK = true
	}
	if y, m, d, ok := ParseDate(e.Short.LastAccessDate); ok {
		f.LastAccessDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		f.LastAccessOK = true
	}
	if t, ok := DecodeDateTime(e.Short.WriteDate, e.Short.WriteTime); ok {
		f.ChangeTime = t
		f.ChangeOK = true
	}
	return f
}
