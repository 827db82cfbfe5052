package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fatcrawl/fat32/checkpoint"
)

// bpb mirrors the fixed portion of a FAT32 BIOS Parameter Block, laid out
// exactly as it appears in the boot sector. Field names follow the
// Microsoft FAT on-disk format documentation.
type bpb struct {
	BSJumpBoot          [3]byte
	BSOEMName           [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	NumFATs             uint8
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32

	// FAT32-specific extension of the BPB.
	FATSize32       uint32
	ExtFlags        uint16
	FSVersion       uint16
	RootCluster     uint32
	FSInfoSector    uint16
	BkBootSector    uint16
	Reserved        [12]byte
	BSDriveNumber   byte
	BSReserved1     byte
	BSBootSig       byte
	BSVolumeID      uint32
	BSVolumeLabel   [11]byte
	BSFileSystemTyp [8]byte
}

// Geometry is the immutable-after-parse layout of a FAT32 volume, derived
// once at open time.
type Geometry struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	SectorsPerFAT     uint32
	RootFirstCluster  uint32
	FSInfoSector      uint16
	TotalSectors      uint32
	ActiveFAT         uint8

	ClusterSize       uint32
	DataAreaStartByte int64
	TotalDataClusters uint32

	VolumeLabel string
}

// ParseGeometry parses and validates the 512-byte boot sector. See
// ParseGeometrySkipChecks for a variant that bypasses the structural
// sanity checks (useful for exploring non-standard images) while
// extracting the same fields.
func ParseGeometry(bootSector []byte) (*Geometry, error) {
	return parseGeometry(bootSector, false)
}

// ParseGeometrySkipChecks behaves like ParseGeometry but skips validation.
func ParseGeometrySkipChecks(bootSector []byte) (*Geometry, error) {
	return parseGeometry(bootSector, true)
}

func parseGeometry(bootSector []byte, skipChecks bool) (*Geometry, error) {
	if len(bootSector) < 512 {
		return nil, checkpoint.From(&InvalidImageError{Reason: "boot sector shorter than 512 bytes"})
	}

	var b bpb
	if err := binary.Read(bytes.NewReader(bootSector), binary.LittleEndian, &b); err != nil {
		return nil, checkpoint.Wrap(err, &InvalidImageError{Reason: "could not parse BPB"})
	}

	if !skipChecks {
		if err := validateBPB(bootSector, &b); err != nil {
			return nil, err
		}
	}

	g := &Geometry{
		BytesPerSector:    b.BytesPerSector,
		SectorsPerCluster: b.SectorsPerCluster,
		ReservedSectors:   b.ReservedSectorCount,
		FATCount:          b.NumFATs,
		SectorsPerFAT:     b.FATSize32,
		RootFirstCluster:  b.RootCluster,
		FSInfoSector:      b.FSInfoSector,
	}

	if b.TotalSectors16 != 0 {
		g.TotalSectors = uint32(b.TotalSectors16)
	} else {
		g.TotalSectors = b.TotalSectors32
	}

	// ExtFlags bits 0-3 name the active FAT copy when mirroring (bit 7) is
	// disabled; when mirroring is enabled (the common case) FAT 0 is active
	// and every copy should agree anyway.
	if b.ExtFlags&0x80 != 0 {
		g.ActiveFAT = uint8(b.ExtFlags & 0x0F)
	}

	g.ClusterSize = uint32(g.BytesPerSector) * uint32(g.SectorsPerCluster)
	g.DataAreaStartByte = int64(uint32(g.ReservedSectors)+uint32(g.FATCount)*g.SectorsPerFAT) * int64(g.BytesPerSector)

	dataSectors := g.TotalSectors - (uint32(g.ReservedSectors) + uint32(g.FATCount)*g.SectorsPerFAT)
	if g.SectorsPerCluster > 0 {
		g.TotalDataClusters = dataSectors / uint32(g.SectorsPerCluster)
	}

	g.VolumeLabel = trimPadded(string(b.BSVolumeLabel[:]))

	return g, nil
}

func validateBPB(bootSector []byte, b *bpb) error {
	if !(b.BSJumpBoot[0] == 0xEB && b.BSJumpBoot[2] == 0x90) && b.BSJumpBoot[0] != 0xE9 {
		return checkpoint.From(&InvalidImageError{Reason: "no valid jump instruction at the start of the boot sector"})
	}

	switch b.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return checkpoint.From(&InvalidImageError{Reason: fmt.Sprintf("invalid bytes per sector: %d", b.BytesPerSector)})
	}

	if b.SectorsPerCluster == 0 || (b.SectorsPerCluster&(b.SectorsPerCluster-1)) != 0 {
		return checkpoint.From(&InvalidImageError{Reason: fmt.Sprintf("sectors per cluster is not a power of two: %d", b.SectorsPerCluster)})
	}

	if uint32(b.BytesPerSector)*uint32(b.SectorsPerCluster) > 32*1024 {
		return checkpoint.From(&InvalidImageError{Reason: "cluster size exceeds 32K"})
	}

	if b.ReservedSectorCount == 0 {
		return checkpoint.From(&InvalidImageError{Reason: "reserved sector count is zero"})
	}

	if b.NumFATs < 1 {
		return checkpoint.From(&InvalidImageError{Reason: "FAT count is zero"})
	}

	if b.RootEntryCount != 0 {
		return checkpoint.From(&InvalidImageError{Reason: "FAT32 volumes must have a zero root entry count"})
	}

	if b.FATSize16 != 0 {
		return checkpoint.From(&InvalidImageError{Reason: "FAT32 volumes must use the 32-bit FAT size field"})
	}

	if b.RootCluster < 2 {
		return checkpoint.From(&InvalidImageError{Reason: fmt.Sprintf("invalid root cluster: %d", b.RootCluster)})
	}

	if bootSector[510] != 0x55 || bootSector[511] != 0xAA {
		return checkpoint.From(&InvalidImageError{Reason: "missing 0x55AA signature at offset 510"})
	}

	return nil
}

// ClusterByteRange returns the absolute byte range [start, end) of cluster
// n (n >= 2) in the data area.
func (g *Geometry) ClusterByteRange(n uint32) (start, end int64) {
	start = g.DataAreaStartByte + int64(n-2)*int64(g.ClusterSize)
	end = start + int64(g.ClusterSize)
	return
}

// FATCopyByteRange returns the absolute byte range of the i-th (0-based)
// FAT copy.
func (g *Geometry) FATCopyByteRange(i int) (start, end int64) {
	start = int64(g.ReservedSectors)*int64(g.BytesPerSector) + int64(i)*int64(g.SectorsPerFAT)*int64(g.BytesPerSector)
	end = start + int64(g.SectorsPerFAT)*int64(g.BytesPerSector)
	return
}

// FSInfoOffset returns the absolute byte offset of the FSInfo sector.
func (g *Geometry) FSInfoOffset() int64 {
	return int64(g.FSInfoSector) * int64(g.BytesPerSector)
}

func trimPadded(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end]
}
