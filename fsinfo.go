package fat32

import (
	"encoding/binary"

	"github.com/fatcrawl/fat32/checkpoint"
)

// FSInfo is the auxiliary 512-byte sector tracking the free-cluster count
// and next-free allocation hint.
type FSInfo struct {
	FreeClusterCount uint32
	NextFreeHint     uint32
}

const (
	fsInfoLeadSigOffset  = 0x000
	fsInfoStrucSigOffset = 0x1E4
	fsInfoTrailSigOffset = 0x1FC
	fsInfoFreeCountOffset = 0x1E8
	fsInfoNextFreeOffset  = 0x1EC

	fsInfoUnknown = 0xFFFFFFFF
)

var (
	fsInfoLeadSig  = [4]byte{'R', 'R', 'a', 'A'}
	fsInfoStrucSig = [4]byte{'r', 'r', 'A', 'a'}
	fsInfoTrailSig = [4]byte{0x00, 0x00, 0x55, 0xAA}
)

func validateFSInfoBytes(b []byte) error {
	if len(b) < 512 {
		return checkpoint.From(&InvalidImageError{Reason: "FSInfo sector shorter than 512 bytes"})
	}
	if !bytesEqual(b[fsInfoLeadSigOffset:fsInfoLeadSigOffset+4], fsInfoLeadSig[:]) {
		return checkpoint.From(&InvalidImageError{Reason: "bad FSInfo lead signature"})
	}
	if !bytesEqual(b[fsInfoStrucSigOffset:fsInfoStrucSigOffset+4], fsInfoStrucSig[:]) {
		return checkpoint.From(&InvalidImageError{Reason: "bad FSInfo struct signature"})
	}
	if !bytesEqual(b[fsInfoTrailSigOffset:fsInfoTrailSigOffset+4], fsInfoTrailSig[:]) {
		return checkpoint.From(&InvalidImageError{Reason: "bad FSInfo trail signature"})
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReadFSInfo reads and validates the FSInfo sector.
func ReadFSInfo(img Image, g *Geometry) (*FSInfo, error) {
	b, err := img.ReadAt(g.FSInfoOffset(), 512)
	if err != nil {
		return nil, checkpoint.Wrap(err, errIo)
	}
	if err := validateFSInfoBytes(b); err != nil {
		return nil, err
	}

	return &FSInfo{
		FreeClusterCount: binary.LittleEndian.Uint32(b[fsInfoFreeCountOffset:]),
		NextFreeHint:     binary.LittleEndian.Uint32(b[fsInfoNextFreeOffset:]),
	}, nil
}

// WriteFSInfoFields rewrites only the free-count and next-free-hint fields
// of the FSInfo sector, leaving everything else (including the signatures)
// untouched. Must be called after every allocation.
func WriteFSInfoFields(img Image, g *Geometry, freeCount, nextFree uint32) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], freeCount)
	binary.LittleEndian.PutUint32(buf[4:8], nextFree)

	if err := img.WriteAt(g.FSInfoOffset()+fsInfoFreeCountOffset, buf); err != nil {
		return checkpoint.Wrap(err, errIo)
	}
	return checkpoint.Wrap(img.Flush(), errIo)
}
