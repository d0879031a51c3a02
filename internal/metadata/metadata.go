// Package metadata describes the contents of a packed save archive.
// Every archive embeds a FileName entry listing each file with its size,
// permissions, modification time and sha256 checksum. Unpacking verifies the
// extracted tree against it and uses the recorded times to restore mtimes.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileName is the archive entry that holds the metadata document.
const FileName = ".savehaven.json"

const formatVersion = "1"

type FileInfo struct {
	Path     string      `json:"path"`
	Size     int64       `json:"size"`
	Mode     os.FileMode `json:"mode"`
	ModTime  time.Time   `json:"mod_time"`
	Checksum string      `json:"checksum"`
}

type Metadata struct {
	Version   string     `json:"version"`
	Game      string     `json:"game"`
	Timestamp time.Time  `json:"timestamp"`
	Hostname  string     `json:"hostname"`
	Files     []FileInfo `json:"files"`
	TotalSize int64      `json:"total_size"`
	mu        sync.Mutex
}

func New(game string, now time.Time) *Metadata {
	hostname, _ := os.Hostname()

	return &Metadata{
		Version:   formatVersion,
		Game:      game,
		Timestamp: now,
		Hostname:  hostname,
		Files:     []FileInfo{},
	}
}

func (m *Metadata) AddFileInfo(fileInfo FileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Files = append(m.Files, fileInfo)
	m.TotalSize += fileInfo.Size
}

// Lookup returns the recorded entry for a slash-separated relative path.
func (m *Metadata) Lookup(path string) (FileInfo, bool) {
	for _, f := range m.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileInfo{}, false
}

func (m *Metadata) Marshal() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.Slice(m.Files, func(i, j int) bool {
		return m.Files[i].Path < m.Files[j].Path
	})
	return json.MarshalIndent(m, "", "  ")
}

func Parse(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse archive metadata: %w", err)
	}
	if meta.Version != formatVersion {
		return nil, fmt.Errorf("unsupported archive metadata version %q", meta.Version)
	}
	return &meta, nil
}

// Verify checks every recorded file under root against its size and checksum.
func (m *Metadata) Verify(root string) error {
	for _, f := range m.Files {
		path := filepath.Join(root, filepath.FromSlash(f.Path))

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("missing %s: %w", f.Path, err)
		}
		if info.Size() != f.Size {
			return fmt.Errorf("size mismatch for %s: got %d, want %d", f.Path, info.Size(), f.Size)
		}

		sum, err := ChecksumFile(path)
		if err != nil {
			return err
		}
		if sum != f.Checksum {
			return fmt.Errorf("checksum mismatch for %s", f.Path)
		}
	}
	return nil
}

// Checksum returns the hex sha256 of everything read from r.
func Checksum(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func ChecksumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return Checksum(file)
}

func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
