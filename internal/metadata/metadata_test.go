package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := New("Hades", now)

	if meta.Version != formatVersion {
		t.Errorf("Expected version %s, got %s", formatVersion, meta.Version)
	}
	if meta.Game != "Hades" {
		t.Errorf("Expected game Hades, got %s", meta.Game)
	}
	if meta.Files == nil {
		t.Error("Files should be initialized")
	}
	if !meta.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", meta.Timestamp, now)
	}
}

func TestAddFileInfo(t *testing.T) {
	meta := New("g", time.Now())
	meta.AddFileInfo(FileInfo{Path: "a.sav", Size: 1024})
	meta.AddFileInfo(FileInfo{Path: "b.sav", Size: 24})

	if len(meta.Files) != 2 {
		t.Errorf("Expected 2 files, got %d", len(meta.Files))
	}
	if meta.TotalSize != 1048 {
		t.Errorf("Expected total size 1048, got %d", meta.TotalSize)
	}
}

func TestMarshalAndParse(t *testing.T) {
	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	meta := New("Celeste", time.Now())
	meta.AddFileInfo(FileInfo{Path: "z/slot2.sav", Size: 3, ModTime: mod, Checksum: "abc"})
	meta.AddFileInfo(FileInfo{Path: "slot1.sav", Size: 4, ModTime: mod, Checksum: "def"})

	data, err := meta.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	loaded, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if loaded.Game != "Celeste" {
		t.Errorf("Game = %s, want Celeste", loaded.Game)
	}
	if loaded.Files[0].Path != "slot1.sav" {
		t.Errorf("Files should be sorted, first = %s", loaded.Files[0].Path)
	}
	f, ok := loaded.Lookup("z/slot2.sav")
	if !ok || !f.ModTime.Equal(mod) {
		t.Errorf("Lookup(z/slot2.sav) = %v, %v", f, ok)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("Parse should fail for invalid JSON")
	}
	if _, err := Parse([]byte(`{"version":"99"}`)); err == nil {
		t.Error("Parse should fail for unknown versions")
	}
}

func TestVerify(t *testing.T) {
	root := t.TempDir()
	content := []byte("save data")
	if err := os.WriteFile(filepath.Join(root, "slot.sav"), content, 0644); err != nil {
		t.Fatal(err)
	}

	sum, err := Checksum(strings.NewReader(string(content)))
	if err != nil {
		t.Fatal(err)
	}

	meta := New("g", time.Now())
	meta.AddFileInfo(FileInfo{Path: "slot.sav", Size: int64(len(content)), Checksum: sum})

	if err := meta.Verify(root); err != nil {
		t.Errorf("Verify() = %v, want nil", err)
	}

	if err := os.WriteFile(filepath.Join(root, "slot.sav"), []byte("tampered!"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := meta.Verify(root); err == nil {
		t.Error("Verify should detect modified content")
	}

	os.Remove(filepath.Join(root, "slot.sav"))
	if err := meta.Verify(root); err == nil {
		t.Error("Verify should detect missing files")
	}
}

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	os.WriteFile(path, []byte(""), 0644)

	sum, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile failed: %v", err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if sum != want {
		t.Errorf("ChecksumFile() = %s, want %s", sum, want)
	}

	if _, err := ChecksumFile("/nonexistent/file"); err == nil {
		t.Error("ChecksumFile should fail for nonexistent file")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if result := FormatSize(tt.bytes); result != tt.expected {
			t.Errorf("FormatSize(%d) = %s, want %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	meta := New("g", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			meta.AddFileInfo(FileInfo{Size: 1})
		}()
	}
	wg.Wait()

	if len(meta.Files) != 50 || meta.TotalSize != 50 {
		t.Errorf("got %d files / %d bytes, want 50 / 50", len(meta.Files), meta.TotalSize)
	}
}
