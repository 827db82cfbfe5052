package fat32

import (
	"strings"
	"time"

	"github.com/fatcrawl/fat32/checkpoint"
)

// dirDataCluster returns the cluster where dir's own entries live. The
// synthetic root File (its parent back-reference is nil) has no
// FirstCluster of its own - its data lives at the boot sector's
// RootFirstCluster.
func (v *Volume) dirDataCluster(dir *File) uint32 {
	if dir.parent == nil {
		return v.geometry.RootFirstCluster
	}
	return dir.FirstCluster
}

// writeClusterChain writes data across start's existing chain (walking it
// first), allocating additional clusters as needed. Chains only grow:
// trailing clusters beyond what data currently fills are left allocated
// and untouched rather than freed. It returns the chain's first cluster,
// which differs from start only when start was 0 (brand new content).
func (v *Volume) writeClusterChain(start uint32, data []byte) (uint32, error) {
	clusterSize := int(v.geometry.ClusterSize)
	needed := (len(data) + clusterSize - 1) / clusterSize
	if needed == 0 {
		needed = 1
	}

	var chain []uint32
	if start >= 2 {
		walked, err := v.table.Walk(start)
		if err != nil && len(walked) == 0 {
			return 0, err
		}
		chain = walked
	}

	for len(chain) < needed {
		more, err := v.table.Allocate(1)
		if err != nil {
			return 0, err
		}
		if len(chain) == 0 {
			chain = more
		} else {
			if err := v.table.Set(chain[len(chain)-1], more[0]); err != nil {
				return 0, err
			}
			chain = append(chain, more[0])
		}
	}

	for i, c := range chain {
		if i == len(chain)-1 {
			if err := v.table.SetEOC(c); err != nil {
				return 0, err
			}
		}
		lo := i * clusterSize
		hi := lo + clusterSize

		buf := make([]byte, clusterSize)
		if lo < len(data) {
			end := hi
			if end > len(data) {
				end = len(data)
			}
			copy(buf, data[lo:end])
		}

		byteStart, _ := v.geometry.ClusterByteRange(c)
		if err := v.image.WriteAt(byteStart, buf); err != nil {
			return 0, checkpoint.Wrap(err, errIo)
		}
	}
	if err := v.image.Flush(); err != nil {
		return 0, checkpoint.Wrap(err, errIo)
	}

	if len(chain) == 0 {
		return 0, nil
	}
	return chain[0], nil
}

func existingShortNames(parent *File) [][11]byte {
	out := make([][11]byte, 0, len(parent.children))
	for _, c := range parent.children {
		out = append(out, c.ShortName)
	}
	return out
}

// createEntry allocates a short (and, if needed, long) name for longName
// inside parent, optionally as a directory, and appends the encoded
// directory entries to parent's content.
func (v *Volume) createEntry(parent *File, longName string, extraAttr byte) (*File, error) {
	if longName == "" || longName == "." || longName == ".." {
		return nil, checkpoint.From(&InvalidNameError{Char: 0})
	}
	if err := validateUserName(longName); err != nil {
		return nil, err
	}
	if findChild(parent, longName) != nil {
		return nil, checkpoint.From(&AlreadyExistsError{Path: longName})
	}

	short, err := GenerateShortName(longName, existingShortNames(parent))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dateWord, timeWord := EncodeDateTime(now)

	entry := shortEntry{
		Name:           short,
		Attribute:      AttrArchive | extraAttr,
		CreateTime:     timeWord,
		CreateDate:     dateWord,
		LastAccessDate: dateWord,
		WriteTime:      timeWord,
		WriteDate:      dateWord,
	}

	var firstCluster uint32
	if extraAttr&AttrDirectory != 0 {
		clusters, aerr := v.table.Allocate(1)
		if aerr != nil {
			return nil, aerr
		}
		firstCluster = clusters[0]
		if err := v.table.SetEOC(firstCluster); err != nil {
			return nil, err
		}
		parentCluster := v.dirDataCluster(parent)
		if parent.parent == nil {
			parentCluster = 0
		}
		if err := v.writeNewDirectoryContent(firstCluster, parentCluster); err != nil {
			return nil, err
		}
		entry.Attribute &^= AttrArchive
	}
	setFirstCluster(&entry, firstCluster)

	var rawEntries [][]byte
	storedLongName := ""
	if !strings.EqualFold(ShortNameOf(short), longName) {
		rawEntries = append(rawEntries, encodeLFNChain(longName, shortNameChecksum(short))...)
		storedLongName = longName
	}
	rawEntries = append(rawEntries, entry.encode())

	if err := v.appendDirectoryEntries(parent, rawEntries); err != nil {
		return nil, err
	}

	file := newFileFromEntry(rawDirEntry{Short: entry, LongName: storedLongName})
	file.parent = parent
	parent.children = append(parent.children, file)
	return file, nil
}

// writeNewDirectoryContent writes the synthesized "." and ".." entries
// that open every new subdirectory. A parentCluster of 0 is the FAT32
// convention for "parent is the root directory".
func (v *Volume) writeNewDirectoryContent(selfCluster, parentCluster uint32) error {
	dateWord, timeWord := EncodeDateTime(time.Now())

	dot := shortEntry{
		Name: [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
		Attribute: AttrDirectory, CreateDate: dateWord, CreateTime: timeWord,
		LastAccessDate: dateWord, WriteDate: dateWord, WriteTime: timeWord,
	}
	dotdot := shortEntry{
		Name: [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
		Attribute: AttrDirectory, CreateDate: dateWord, CreateTime: timeWord,
		LastAccessDate: dateWord, WriteDate: dateWord, WriteTime: timeWord,
	}
	setFirstCluster(&dot, selfCluster)
	setFirstCluster(&dotdot, parentCluster)

	data := append(dot.encode(), dotdot.encode()...)
	_, err := v.writeClusterChain(selfCluster, data)
	return err
}

// appendDirectoryEntries writes rawEntries into parent's directory
// content, first trying to reuse a contiguous run of empty (0x00) or
// deleted (0xE5) slots before growing the chain.
func (v *Volume) appendDirectoryEntries(parent *File, rawEntries [][]byte) error {
	startCluster := v.dirDataCluster(parent)
	data, err := v.readClusterChain(startCluster)
	if err != nil {
		return err
	}

	if slot := findEmptySlotRun(data, len(rawEntries)); slot >= 0 {
		for i, e := range rawEntries {
			copy(data[slot+i*entrySize:slot+(i+1)*entrySize], e)
		}
	} else {
		for _, e := range rawEntries {
			data = append(data, e...)
		}
	}

	_, err = v.writeClusterChain(startCluster, data)
	return err
}

// findEmptySlotRun returns the byte offset of a contiguous run of need
// empty/deleted 32-byte slots, or -1 if none exists.
func findEmptySlotRun(data []byte, need int) int {
	run := 0
	for off := 0; off+entrySize <= len(data); off += entrySize {
		b := data[off]
		if b == 0x00 || b == 0xE5 {
			run++
			if run == need {
				return off - (need-1)*entrySize
			}
		} else {
			run = 0
		}
	}
	return -1
}

// WriteFile rewrites f's content with data, growing its cluster chain as
// needed. Used by the interactive browser's copyToImage command; afero.File
// handles call the same writeFileContent on Sync/Close.
func (v *Volume) WriteFile(f *File, data []byte) error {
	return v.writeFileContent(f, data)
}

// writeFileContent rewrites f's cluster chain with data and updates its
// directory entry's first-cluster and size fields to match.
func (v *Volume) writeFileContent(f *File, data []byte) error {
	if v.options.ReadOnly {
		return checkpoint.From(ErrPermissionDenied)
	}

	newStart, err := v.writeClusterChain(f.FirstCluster, data)
	if err != nil {
		return err
	}
	if err := v.updateDirectoryEntry(f, newStart, uint32(len(data))); err != nil {
		return err
	}
	f.FirstCluster = newStart
	f.SizeBytes = uint32(len(data))
	return nil
}

// updateDirectoryEntry patches f's own 32-byte short entry in its parent's
// directory content with a new first cluster, size, and write timestamp.
func (v *Volume) updateDirectoryEntry(f *File, newCluster, newSize uint32) error {
	if f.parent == nil {
		return nil
	}

	startCluster := v.dirDataCluster(f.parent)
	data, err := v.readClusterChain(startCluster)
	if err != nil {
		return err
	}

	for off := 0; off+entrySize <= len(data); off += entrySize {
		if data[off] == 0x00 {
			break
		}
		if data[off+11]&AttrLongName == AttrLongName {
			continue
		}
		var nameBuf [11]byte
		copy(nameBuf[:], data[off:off+11])
		if nameBuf != f.ShortName {
			continue
		}

		short := decodeShortEntry(data[off : off+entrySize])
		setFirstCluster(&short, newCluster)
		short.FileSize = newSize
		short.WriteDate, short.WriteTime = EncodeDateTime(time.Now())
		copy(data[off:off+entrySize], short.encode())
		break
	}

	_, err = v.writeClusterChain(startCluster, data)
	return err
}
