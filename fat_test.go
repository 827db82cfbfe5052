package fat32

import (
	"errors"
	"testing"
)

func testTable(t *testing.T) (*Table, *Geometry, Image) {
	t.Helper()
	backing := buildTestImage()
	img := NewImage(backing, testBytesPerSector)

	boot, err := img.ReadAt(0, 512)
	if err != nil {
		t.Fatalf("ReadAt boot sector: %v", err)
	}
	g, err := ParseGeometry(boot)
	if err != nil {
		t.Fatalf("ParseGeometry: %v", err)
	}

	return NewTable(img, g, nil), g, img
}

func TestTableGetSetRoundTrip(t *testing.T) {
	table, _, _ := testTable(t)

	if err := table.Set(5, 9); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := table.Get(5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 9 {
		t.Errorf("Get(5) = %d, want 9", got)
	}
}

func TestTableWalkFollowsChain(t *testing.T) {
	table, _, _ := testTable(t)

	if err := table.Set(10, 11); err != nil {
		t.Fatal(err)
	}
	if err := table.Set(11, 12); err != nil {
		t.Fatal(err)
	}
	if err := table.SetEOC(12); err != nil {
		t.Fatal(err)
	}

	chain, err := table.Walk(10)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []uint32{10, 11, 12}
	if len(chain) != len(want) {
		t.Fatalf("Walk chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("Walk chain[%d] = %d, want %d", i, chain[i], want[i])
		}
	}
}

func TestTableWalkDetectsCycle(t *testing.T) {
	table, _, _ := testTable(t)

	// 20 -> 21 -> 20: a direct cycle.
	if err := table.Set(20, 21); err != nil {
		t.Fatal(err)
	}
	if err := table.Set(21, 20); err != nil {
		t.Fatal(err)
	}

	_, err := table.Walk(20)
	if err == nil {
		t.Fatal("Walk over a cyclic chain should fail")
	}
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("Walk error = %v, want ErrCycleDetected", err)
	}
}

func TestTableFindFreeSkipsUsedClusters(t *testing.T) {
	table, _, _ := testTable(t)

	if err := table.SetEOC(2); err != nil { // root directory
		t.Fatal(err)
	}
	if err := table.SetEOC(3); err != nil {
		t.Fatal(err)
	}

	free, err := table.FindFree(2, 2)
	if err != nil {
		t.Fatalf("FindFree: %v", err)
	}
	for _, c := range free {
		if c == 2 || c == 3 {
			t.Errorf("FindFree returned an already-used cluster: %d", c)
		}
	}
}

func TestTableAllocateUpdatesFSInfo(t *testing.T) {
	table, g, img := testTable(t)

	before, err := ReadFSInfo(img, g)
	if err != nil {
		t.Fatalf("ReadFSInfo: %v", err)
	}

	clusters, err := table.Allocate(3)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(clusters) != 3 {
		t.Fatalf("Allocate returned %d clusters, want 3", len(clusters))
	}

	after, err := ReadFSInfo(img, g)
	if err != nil {
		t.Fatalf("ReadFSInfo: %v", err)
	}
	if after.FreeClusterCount != before.FreeClusterCount-3 {
		t.Errorf("FreeClusterCount = %d, want %d", after.FreeClusterCount, before.FreeClusterCount-3)
	}
}

func TestVerifyFatCopiesEqualDetectsDivergence(t *testing.T) {
	table, g, img := testTable(t)

	if err := VerifyFatCopiesEqual(img, g); err != nil {
		t.Fatalf("freshly built image copies should agree: %v", err)
	}

	// Corrupt only the second FAT copy directly, bypassing Table.Set (which
	// always writes every copy).
	start, _ := g.FATCopyByteRange(1)
	buf := make([]byte, 4)
	buf[0] = 0xAB
	if err := img.WriteAt(start+9*4, buf); err != nil {
		t.Fatal(err)
	}

	err := VerifyFatCopiesEqual(img, g)
	if err == nil {
		t.Fatal("VerifyFatCopiesEqual should detect the divergence")
	}
	if !errors.Is(err, ErrFatCopiesDiverged) {
		t.Errorf("error = %v, want ErrFatCopiesDiverged", err)
	}
	_ = table
}
