package fat32

import "encoding/binary"

// Synthetic geometry shared by every test that needs a real image: 512-byte
// sectors, one sector per cluster, two FAT copies, 64 data clusters. Small
// enough to keep test images cheap, large enough to exercise chain growth,
// cross-linking and lost-cluster scenarios.
const (
	testBytesPerSector    = 512
	testSectorsPerCluster = 1
	testReservedSectors   = 32
	testNumFATs           = 2
	testSectorsPerFAT     = 4
	testDataClusters      = 64
	testFSInfoSector      = 1
)

func testImageSize() int64 {
	totalSectors := testReservedSectors + testNumFATs*testSectorsPerFAT + testDataClusters*testSectorsPerCluster
	return int64(totalSectors) * testBytesPerSector
}

// buildTestImage assembles a blank, valid FAT32 image (root directory at
// cluster 2, empty) over an in-memory backing and returns it ready for New.
func buildTestImage() *memBacking {
	backing := newMemBacking(testImageSize())

	boot := make([]byte, 512)
	boot[0], boot[1], boot[2] = 0xEB, 0x00, 0x90
	binary.LittleEndian.PutUint16(boot[11:13], testBytesPerSector)
	boot[13] = testSectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:16], testReservedSectors)
	boot[16] = testNumFATs
	// RootEntryCount (17:19) left 0, TotalSectors16 (19:21) left 0.
	boot[21] = 0xF8 // Media
	// FATSize16 (22:24) left 0.
	totalSectors := testReservedSectors + testNumFATs*testSectorsPerFAT + testDataClusters*testSectorsPerCluster
	binary.LittleEndian.PutUint32(boot[32:36], uint32(totalSectors))
	binary.LittleEndian.PutUint32(boot[36:40], testSectorsPerFAT) // FATSize32
	binary.LittleEndian.PutUint32(boot[44:48], 2)                 // RootCluster
	binary.LittleEndian.PutUint16(boot[48:50], testFSInfoSector)
	copy(boot[71:82], "TESTVOL    ")
	boot[510], boot[511] = 0x55, 0xAA

	if _, err := backing.WriteAt(boot, 0); err != nil {
		panic(err)
	}

	fsinfo := make([]byte, 512)
	copy(fsinfo[0x000:], []byte{'R', 'R', 'a', 'A'})
	copy(fsinfo[0x1E4:], []byte{'r', 'r', 'A', 'a'})
	binary.LittleEndian.PutUint32(fsinfo[0x1E8:], testDataClusters-1)
	binary.LittleEndian.PutUint32(fsinfo[0x1EC:], 3)
	copy(fsinfo[0x1FC:], []byte{0x00, 0x00, 0x55, 0xAA})
	if _, err := backing.WriteAt(fsinfo, int64(testFSInfoSector)*testBytesPerSector); err != nil {
		panic(err)
	}

	g := &Geometry{
		BytesPerSector:    testBytesPerSector,
		SectorsPerCluster: testSectorsPerCluster,
		ReservedSectors:   testReservedSectors,
		FATCount:          testNumFATs,
		SectorsPerFAT:     testSectorsPerFAT,
	}
	g.ClusterSize = uint32(g.BytesPerSector) * uint32(g.SectorsPerCluster)
	g.DataAreaStartByte = int64(uint32(g.ReservedSectors)+uint32(g.FATCount)*g.SectorsPerFAT) * int64(g.BytesPerSector)

	// Mark cluster 2 (the root directory) as end-of-chain in both FAT
	// copies.
	for i := 0; i < testNumFATs; i++ {
		start, _ := g.FATCopyByteRange(i)
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, eocValue)
		if _, err := backing.WriteAt(buf, start+2*4); err != nil {
			panic(err)
		}
	}

	return backing
}

// openTestVolume opens a fresh blank test volume.
func openTestVolume() (*Volume, error) {
	img := NewImage(buildTestImage(), testBytesPerSector)
	return New(img, Options{})
}
