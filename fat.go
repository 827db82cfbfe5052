package fat32

import (
	"encoding/binary"

	"github.com/fatcrawl/fat32/checkpoint"
)

// fatEntry classifies a masked 28-bit FAT value.
type fatEntry uint32

func (e fatEntry) masked() uint32 { return uint32(e) & 0x0FFFFFFF }

func (e fatEntry) IsFree() bool     { return e.masked() == 0x00000000 }
func (e fatEntry) IsReserved1() bool { return e.masked() == 0x00000001 }
func (e fatEntry) IsNext() bool {
	v := e.masked()
	return v >= 0x00000002 && v <= 0x0FFFFFEF
}
func (e fatEntry) IsReservedRange() bool {
	v := e.masked()
	return v >= 0x0FFFFFF0 && v <= 0x0FFFFFF6
}
func (e fatEntry) IsBad() bool { return e.masked() == 0x0FFFFFF7 }
func (e fatEntry) IsEOC() bool { return e.masked() >= 0x0FFFFFF8 }

// usedOrEOC reports whether the entry should be treated as belonging to a
// live chain for the purposes of scandisk's lost-cluster sweep: a normal
// link or an end-of-chain marker.
func (e fatEntry) usedOrEOC() bool { return e.IsNext() || e.IsEOC() }

const eocValue = 0x0FFFFFFF

// Table is the L3 FAT table: reads and writes cluster-link values across
// all FAT copies atomically, finds free clusters, and walks chains.
type Table struct {
	img      Image
	geometry *Geometry
	logger   Logger
}

// NewTable constructs a Table over img using g's geometry.
func NewTable(img Image, g *Geometry, logger Logger) *Table {
	return &Table{img: img, geometry: g, logger: logger}
}

func (t *Table) entryOffset(cluster uint32, fatIndex int) int64 {
	start, _ := t.geometry.FATCopyByteRange(fatIndex)
	return start + int64(cluster)*4
}

// Get reads the 28-bit link value for cluster from the active FAT copy.
func (t *Table) Get(cluster uint32) (uint32, error) {
	off := t.entryOffset(cluster, int(t.geometry.ActiveFAT))
	b, err := t.img.ReadAt(off, 4)
	if err != nil {
		return 0, checkpoint.Wrap(err, errIo)
	}
	return binary.LittleEndian.Uint32(b) & 0x0FFFFFFF, nil
}

// Set writes value (masked to 28 bits) to cluster in every FAT copy,
// flushing after each copy. A failure partway through is fatal: the
// caller must assume the volume is now damaged.
func (t *Table) Set(cluster uint32, value uint32) error {
	value &= 0x0FFFFFFF

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)

	for i := 0; i < int(t.geometry.FATCount); i++ {
		off := t.entryOffset(cluster, i)

		// Preserve the reserved high 4 bits already on disk for this copy.
		existing, err := t.img.ReadAt(off, 4)
		if err == nil {
			high := binary.LittleEndian.Uint32(existing) & 0xF0000000
			binary.LittleEndian.PutUint32(buf, value|high)
		}

		if err := t.img.WriteAt(off, buf); err != nil {
			return checkpoint.Wrap(err, ErrFatWriteIncomplete)
		}
		if err := t.img.Flush(); err != nil {
			return checkpoint.Wrap(err, ErrFatWriteIncomplete)
		}
	}
	return nil
}

// SetEOC marks cluster as the end of its chain.
func (t *Table) SetEOC(cluster uint32) error {
	return t.Set(cluster, eocValue)
}

// Free marks cluster as unused. Used by scandisk's lost-cluster sweep.
func (t *Table) Free(cluster uint32) error {
	return t.Set(cluster, 0)
}

// maxWalkSteps bounds Table.Walk to sectors_per_fat * bytes_per_sector / 4,
// the maximum number of entries the FAT can hold.
func (t *Table) maxWalkSteps() int {
	return int(t.geometry.SectorsPerFAT) * int(t.geometry.BytesPerSector) / 4
}

// Walk returns the cluster chain starting at start, following next-links
// until a value outside [2, 0xFFFFFEF] is reached. A FAT value of 1 (the
// "invalid/reserved" value) terminates the walk as a tolerated corruption.
// CycleDetectedError is returned if the chain exceeds the FAT's own
// capacity, which can only happen if a loop exists.
func (t *Table) Walk(start uint32) ([]uint32, error) {
	if start < 2 {
		return nil, nil
	}

	limit := t.maxWalkSteps()
	chain := make([]uint32, 0, 8)
	current := start

	for steps := 0; ; steps++ {
		if steps >= limit {
			return chain, checkpoint.From(&CycleDetectedError{Cluster: current})
		}

		chain = append(chain, current)

		next, err := t.Get(current)
		if err != nil {
			return chain, err
		}

		entry := fatEntry(next)
		if entry.IsNext() {
			current = entry.masked()
			continue
		}

		// EOC, reserved, bad, free, or the tolerated "1" corruption: all
		// terminate the walk without error.
		return chain, nil
	}
}

// FindFree scans for n free clusters starting from hint (the FSInfo
// next_free_hint, or cluster 2 if hint is 0xFFFFFFFF / below 2). It does
// not mark the clusters used; callers must Set/SetEOC them to claim them.
func (t *Table) FindFree(n int, hint uint32) ([]uint32, error) {
	if hint == fsInfoUnknown || hint < 2 {
		hint = 2
	}

	found := make([]uint32, 0, n)
	total := t.geometry.TotalDataClusters + 2

	scan := func(from, to uint32) error {
		for c := from; c < to && len(found) < n; c++ {
			v, err := t.Get(c)
			if err != nil {
				return err
			}
			if fatEntry(v).IsFree() {
				found = append(found, c)
			}
		}
		return nil
	}

	if err := scan(hint, total); err != nil {
		return nil, err
	}
	if len(found) < n {
		if err := scan(2, hint); err != nil {
			return nil, err
		}
	}

	if len(found) < n {
		return found, checkpoint.From(&NoSpaceError{Required: n, Found: len(found)})
	}
	return found, nil
}

// Allocate finds n free clusters (using the FSInfo next_free_hint) and
// updates the FSInfo free-count and next-free-hint fields to reflect the
// allocation. It does not link or mark the clusters used; callers must
// Set/SetEOC them and then write their content.
func (t *Table) Allocate(n int) ([]uint32, error) {
	info, err := ReadFSInfo(t.img, t.geometry)
	if err != nil {
		return nil, err
	}

	clusters, err := t.FindFree(n, info.NextFreeHint)
	if err != nil {
		return clusters, err
	}

	var newFree uint32 = fsInfoUnknown
	if info.FreeClusterCount != fsInfoUnknown {
		newFree = info.FreeClusterCount - uint32(len(clusters))
	}
	nextFree := clusters[len(clusters)-1] + 1

	if err := WriteFSInfoFields(t.img, t.geometry, newFree, nextFree); err != nil {
		return clusters, err
	}
	return clusters, nil
}

// VerifyFatCopiesEqual reads every FAT copy and compares it byte-for-byte.
// It reports the first pair found to diverge.
func VerifyFatCopiesEqual(img Image, g *Geometry) error {
	if g.FATCount < 2 {
		return nil
	}

	size := int64(g.SectorsPerFAT) * int64(g.BytesPerSector)
	const chunk = 64 * 1024

	start0, _ := g.FATCopyByteRange(0)

	for i := 1; i < int(g.FATCount); i++ {
		starti, _ := g.FATCopyByteRange(i)

		for off := int64(0); off < size; off += chunk {
			n := chunk
			if off+int64(n) > size {
				n = int(size - off)
			}
			a, err := img.ReadAt(start0+off, n)
			if err != nil {
				return checkpoint.Wrap(err, errIo)
			}
			b, err := img.ReadAt(starti+off, n)
			if err != nil {
				return checkpoint.Wrap(err, errIo)
			}
			if !bytesEqual(a, b) {
				return checkpoint.From(&FatCopiesDivergedError{I: 0, J: i})
			}
		}
	}
	return nil
}
