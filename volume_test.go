package fat32

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewOpensBlankVolume(t *testing.T) {
	vol, err := openTestVolume()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if vol.Label() != "TESTVOL" {
		t.Errorf("Label() = %q, want TESTVOL", vol.Label())
	}
	if got := len(vol.Root().Children()); got != 0 {
		t.Errorf("blank root has %d children, want 0", got)
	}
}

func TestCreateThenResolveRoundTrip(t *testing.T) {
	vol, err := openTestVolume()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := vol.Create("/hello.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	f, err := vol.Resolve("/hello.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if f.Name() != "HELLO.TXT" {
		t.Errorf("Name() = %q, want HELLO.TXT", f.Name())
	}
}

func TestMkdirAndNestedCreate(t *testing.T) {
	vol, err := openTestVolume()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := vol.Mkdir("/docs", 0); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := vol.Create("/docs/readme.txt"); err != nil {
		t.Fatalf("Create nested: %v", err)
	}

	dir, err := vol.Resolve("/docs")
	if err != nil {
		t.Fatalf("Resolve /docs: %v", err)
	}
	if !dir.IsDir() {
		t.Fatal("/docs should be a directory")
	}
	if len(dir.Children()) != 1 {
		t.Fatalf("/docs has %d children, want 1", len(dir.Children()))
	}
}

func TestWriteFileThenReadBack(t *testing.T) {
	vol, err := openTestVolume()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := vol.Create("/data.bin"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	f, err := vol.Resolve("/data.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAB}, int(testSectorsPerCluster*testBytesPerSector)*3+17)
	if err := vol.WriteFile(f, payload); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := vol.ReadFile(f)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read back %d bytes, want %d bytes matching the payload", len(got), len(payload))
	}
}

func TestRemoveIsUnsupported(t *testing.T) {
	vol, err := openTestVolume()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := vol.Create("/gone.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := vol.Remove("/gone.txt"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Remove = %v, want ErrUnsupported", err)
	}
	if err := vol.RemoveAll("/gone.txt"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("RemoveAll = %v, want ErrUnsupported", err)
	}
	if _, err := vol.Resolve("/gone.txt"); err != nil {
		t.Errorf("Resolve after rejected Remove = %v, want the entry to still exist", err)
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	vol, err := openTestVolume()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := vol.Create("/dup.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := vol.Create("/dup.txt"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second Create = %v, want ErrAlreadyExists", err)
	}
}

func TestResolveMissingPathReturnsNotFound(t *testing.T) {
	vol, err := openTestVolume()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := vol.Resolve("/nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(/nope) = %v, want ErrNotFound", err)
	}
}

func TestReadFileOnDirectoryFails(t *testing.T) {
	vol, err := openTestVolume()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := vol.Mkdir("/d", 0); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	dir, err := vol.Resolve("/d")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := vol.ReadFile(dir); !errors.Is(err, ErrIsADirectory) {
		t.Errorf("ReadFile(dir) = %v, want ErrIsADirectory", err)
	}
}

func TestReadOnlyVolumeRejectsMutation(t *testing.T) {
	img := NewImage(buildTestImage(), testBytesPerSector)
	vol, err := New(img, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := vol.Create("/x.txt"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Create on read-only volume = %v, want ErrPermissionDenied", err)
	}
}
