// Package security guards the filesystem against hostile archive entries and
// game names.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveEntry maps an archive entry name onto a path inside baseDir. Entry
// names always use forward slashes. Absolute names, drive letters and any
// name that escapes baseDir are rejected.
func ResolveEntry(baseDir, entryName string) (string, error) {
	if entryName == "" {
		return "", fmt.Errorf("empty archive entry name")
	}
	if strings.HasPrefix(entryName, "/") || strings.HasPrefix(entryName, `\`) || hasDriveLetter(entryName) {
		return "", fmt.Errorf("path traversal detected: %s is absolute", entryName)
	}

	target := filepath.Join(baseDir, filepath.FromSlash(entryName))
	if err := ValidatePath(baseDir, target); err != nil {
		return "", err
	}
	return target, nil
}

// hasDriveLetter reports a Windows volume prefix such as "C:". A colon later
// in the name is fine; Wine prefixes hold links named "c:" and "z:".
func hasDriveLetter(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// ValidatePath checks if a path is within the allowed base directory.
func ValidatePath(basePath, targetPath string) error {
	cleanBase := filepath.Clean(basePath)
	cleanTarget := filepath.Clean(targetPath)

	if cleanTarget == cleanBase {
		return nil
	}

	// Add trailing separator to base to avoid partial directory matches
	if !strings.HasSuffix(cleanBase, string(filepath.Separator)) {
		cleanBase += string(filepath.Separator)
	}

	if !strings.HasPrefix(cleanTarget, cleanBase) {
		return fmt.Errorf("path traversal detected: %s is outside %s", targetPath, basePath)
	}

	return nil
}

// IsSafeName reports whether a game name can be used as a single path
// component, both as a local backup folder and as a cloud file name.
func IsSafeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
