package archiver

import (
	"archive/zip"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	pathpkg "path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/savehaven/savehaven/internal/crypto"
	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/logger"
	"github.com/savehaven/savehaven/internal/metadata"
	"github.com/savehaven/savehaven/internal/security"
)

const zipExt = ".zip"

type Archiver struct {
	CompressionLevel int
	tempDir          string
	sealer           *crypto.Sealer
	clock            clockwork.Clock
	log              *logger.Logger
}

type Option func(*Archiver)

// WithSealer encrypts packed blobs with age.
func WithSealer(s *crypto.Sealer) Option {
	return func(a *Archiver) { a.sealer = s }
}

// WithTempDir sets where packed blobs are written.
func WithTempDir(dir string) Option {
	return func(a *Archiver) { a.tempDir = dir }
}

func WithClock(c clockwork.Clock) Option {
	return func(a *Archiver) { a.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(a *Archiver) { a.log = l }
}

func NewArchiver(opts ...Option) *Archiver {
	a := &Archiver{
		CompressionLevel: flate.BestCompression,
		clock:            clockwork.NewRealClock(),
		log:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ext is the suffix of cloud file names produced by Pack.
func (a *Archiver) Ext() string {
	if a.sealer != nil {
		return zipExt + ".age"
	}
	return zipExt
}

// Pack archives dir into a temporary blob outside dir and returns its path.
// The caller owns the blob and must remove it.
func (a *Archiver) Pack(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", saveerrors.NewArchiveError(dir, err)
	}
	if !info.IsDir() {
		return "", saveerrors.NewArchiveError(dir, fmt.Errorf("not a directory"))
	}

	entries, err := a.collect(dir)
	if err != nil {
		return "", saveerrors.NewArchiveError(dir, err)
	}
	if !hasRegularFile(entries) {
		return "", saveerrors.NewArchiveError(dir, fmt.Errorf("directory is empty"))
	}

	out, err := os.CreateTemp(a.tempDir, "savehaven-"+sanitizeTempName(filepath.Base(dir))+"-*"+a.Ext())
	if err != nil {
		return "", saveerrors.NewArchiveError(dir, fmt.Errorf("failed to create archive file: %w", err))
	}
	blob := out.Name()

	if err := a.write(out, dir, entries); err != nil {
		out.Close()
		os.Remove(blob)
		return "", saveerrors.NewArchiveError(dir, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(blob)
		return "", saveerrors.NewArchiveError(dir, err)
	}

	return blob, nil
}

type entry struct {
	rel  string
	path string
	info fs.FileInfo
	// link is the target of a symlink kept as a link, relative to its directory
	link string
}

// collect lists everything under root in archive order. Symlinks whose
// target stays inside root are kept as links. Links leading out of root are
// followed so the data they point at is archived in their place, unless the
// target contains root itself.
func (a *Archiver) collect(root string) ([]entry, error) {
	c := &collector{root: filepath.Clean(root), log: a.log, visited: map[string]bool{}}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}
	c.realRoot = resolved
	c.visited[resolved] = true

	if err := c.walk(root, ""); err != nil {
		return nil, err
	}
	return c.entries, nil
}

type collector struct {
	root     string
	realRoot string
	log      *logger.Logger
	visited  map[string]bool
	entries  []entry
}

func (c *collector) walk(dir, rel string) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, item := range items {
		path := filepath.Join(dir, item.Name())
		name := item.Name()
		if rel != "" {
			name = rel + "/" + name
		}
		if name == metadata.FileName {
			continue
		}

		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			err = c.symlink(path, name, info)
		} else {
			err = c.add(path, name, info)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) add(path, rel string, info fs.FileInfo) error {
	switch {
	case info.IsDir():
		c.entries = append(c.entries, entry{rel: rel, path: path, info: info})
		return c.walk(path, rel)
	case info.Mode().IsRegular():
		c.entries = append(c.entries, entry{rel: rel, path: path, info: info})
	default:
		c.log.Debug().Str("path", path).Msg("skipping special file")
	}
	return nil
}

func (c *collector) symlink(path, rel string, info fs.FileInfo) error {
	target, err := os.Readlink(path)
	if err != nil {
		return err
	}

	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(filepath.Dir(path), target)
	}
	if inRoot, err := filepath.Rel(c.root, abs); err == nil && security.ValidatePath(c.root, abs) == nil {
		// Positions are taken inside the archive, so links found under a
		// followed directory still point at the right entry.
		link, err := filepath.Rel(filepath.Dir(filepath.FromSlash(rel)), inRoot)
		if err != nil {
			return err
		}
		c.entries = append(c.entries, entry{rel: rel, path: path, info: info, link: filepath.ToSlash(link)})
		return nil
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		c.log.Warn().Str("path", path).Str("target", target).Msg("skipping dangling symlink")
		return nil
	}
	if security.ValidatePath(resolved, c.realRoot) == nil {
		c.log.Warn().Str("path", path).Str("target", target).Msg("skipping symlink to a folder containing the save")
		return nil
	}

	targetInfo, err := os.Stat(resolved)
	if err != nil {
		return err
	}
	if targetInfo.IsDir() {
		if c.visited[resolved] {
			c.log.Warn().Str("path", path).Str("target", target).Msg("skipping symlink loop")
			return nil
		}
		c.visited[resolved] = true
	}

	c.log.Debug().Str("path", path).Str("target", resolved).Msg("following symlink out of the save folder")
	return c.add(resolved, rel, targetInfo)
}

func hasRegularFile(entries []entry) bool {
	for _, e := range entries {
		if e.info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

func (a *Archiver) write(out *os.File, dir string, entries []entry) error {
	var dst io.Writer = out
	var sealed io.WriteCloser
	if a.sealer != nil {
		w, err := a.sealer.Seal(out)
		if err != nil {
			return err
		}
		sealed = w
		dst = w
	}

	zw := zip.NewWriter(dst)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, a.CompressionLevel)
	})

	meta := metadata.New(filepath.Base(dir), a.clock.Now())
	for _, e := range entries {
		if err := addEntry(zw, e, meta); err != nil {
			return err
		}
	}

	data, err := meta.Marshal()
	if err != nil {
		return err
	}
	mw, err := zw.Create(metadata.FileName)
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if _, err := mw.Write(data); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if sealed != nil {
		if err := sealed.Close(); err != nil {
			return fmt.Errorf("failed to finalize encryption: %w", err)
		}
	}
	return out.Sync()
}

func addEntry(zw *zip.Writer, e entry, meta *metadata.Metadata) error {
	header, err := zip.FileInfoHeader(e.info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = e.rel
	header.Modified = e.info.ModTime()

	if e.link != "" {
		header.Method = zip.Store
		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to write zip header: %w", err)
		}
		_, err = io.WriteString(w, e.link)
		return err
	}

	if e.info.IsDir() {
		header.Name += "/"
		header.Method = zip.Store
		_, err := zw.CreateHeader(header)
		return err
	}

	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header: %w", err)
	}

	file, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	sum, err := metadata.Checksum(io.TeeReader(file, w))
	if err != nil {
		return fmt.Errorf("failed to write file to archive: %w", err)
	}

	meta.AddFileInfo(metadata.FileInfo{
		Path:     e.rel,
		Size:     e.info.Size(),
		Mode:     e.info.Mode().Perm(),
		ModTime:  e.info.ModTime(),
		Checksum: sum,
	})
	return nil
}

// Unpack extracts blob into dest, which must not exist. Extraction happens in
// a sibling staging directory that is renamed into place only after every
// checksum matched, so dest is either complete or absent.
func (a *Archiver) Unpack(blob, dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		return saveerrors.NewArchiveError(dest, fmt.Errorf("destination already exists"))
	}

	zipPath := blob
	if a.sealer != nil {
		plain, err := os.CreateTemp(a.tempDir, "savehaven-unsealed-*"+zipExt)
		if err != nil {
			return saveerrors.NewArchiveError(blob, err)
		}
		plain.Close()
		defer os.Remove(plain.Name())

		if err := a.sealer.DecryptFile(blob, plain.Name()); err != nil {
			return saveerrors.NewArchiveError(blob, err)
		}
		zipPath = plain.Name()
	}

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return saveerrors.NewArchiveError(dest, err)
	}
	staging, err := os.MkdirTemp(parent, "."+sanitizeTempName(filepath.Base(dest))+".unpack-*")
	if err != nil {
		return saveerrors.NewArchiveError(dest, err)
	}

	if err := extract(zipPath, staging); err != nil {
		os.RemoveAll(staging)
		return saveerrors.NewArchiveError(blob, err)
	}
	if err := os.Chmod(staging, 0755); err != nil {
		os.RemoveAll(staging)
		return saveerrors.NewArchiveError(dest, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		os.RemoveAll(staging)
		return saveerrors.NewArchiveError(dest, err)
	}
	return nil
}

func extract(zipPath, root string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var meta *metadata.Metadata
	var dirs []*zip.File
	var files []*zip.File
	var links []*zip.File

	for _, f := range zr.File {
		if f.Name == metadata.FileName {
			meta, err = readMetadata(f)
			if err != nil {
				return err
			}
			continue
		}

		target, err := security.ResolveEntry(root, strings.TrimSuffix(f.Name, "/"))
		if err != nil {
			return fmt.Errorf("illegal file path in archive: %w", err)
		}

		switch {
		case f.Mode()&os.ModeSymlink != 0:
			links = append(links, f)
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			dirs = append(dirs, f)
		case f.Mode().IsRegular():
			if err := extractFile(f, target); err != nil {
				return err
			}
			files = append(files, f)
		}
	}

	if meta != nil {
		if err := meta.Verify(root); err != nil {
			return err
		}
	}

	// Links go in last so no file is ever written through one.
	for _, f := range links {
		if err := extractLink(f, root); err != nil {
			return err
		}
	}

	for _, f := range files {
		mod := f.Modified
		if meta != nil {
			if info, ok := meta.Lookup(f.Name); ok {
				mod = info.ModTime
			}
		}
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if err := os.Chtimes(target, mod, mod); err != nil {
			return fmt.Errorf("failed to restore modification time: %w", err)
		}
	}

	// Deepest directories first so parents keep their recorded times.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i].Name, "/") > strings.Count(dirs[j].Name, "/")
	})
	for _, d := range dirs {
		target := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(d.Name, "/")))
		if err := os.Chtimes(target, d.Modified, d.Modified); err != nil {
			return fmt.Errorf("failed to restore modification time: %w", err)
		}
	}

	return nil
}

func readMetadata(f *zip.File) (*metadata.Metadata, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return metadata.Parse(data)
}

// extractLink recreates a symlink entry. The target must resolve inside root.
func extractLink(f *zip.File, root string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read archive entry: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(rc, 4096))
	rc.Close()
	if err != nil {
		return fmt.Errorf("failed to read archive entry: %w", err)
	}

	link := string(data)
	if link == "" || strings.HasPrefix(link, "/") || strings.HasPrefix(link, `\`) {
		return fmt.Errorf("illegal symlink in archive: %s -> %q", f.Name, link)
	}
	if _, err := security.ResolveEntry(root, pathpkg.Join(pathpkg.Dir(f.Name), link)); err != nil {
		return fmt.Errorf("illegal symlink in archive: %s: %w", f.Name, err)
	}

	target := filepath.Join(root, filepath.FromSlash(f.Name))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.Symlink(filepath.FromSlash(link), target); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read archive entry: %w", err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(outFile, rc); err != nil {
		outFile.Close()
		return fmt.Errorf("failed to write file content: %w", err)
	}
	return outFile.Close()
}

// CopyFile copies src to dest, keeping permissions and modification time.
func CopyFile(src, dest string) error {
	destDir := filepath.Dir(dest)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	destFile, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(destFile, srcFile); err != nil {
		destFile.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := destFile.Close(); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	return os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime())
}

// CopyDir recursively copies src to dest. Symlinks are recreated with the
// same target; any failure aborts the copy.
func CopyDir(src, dest string) error {
	srcInfo, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	if err := os.MkdirAll(dest, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		destPath := filepath.Join(dest, e.Name())

		info, err := os.Lstat(srcPath)
		if err != nil {
			return err
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, destPath); err != nil {
				return fmt.Errorf("failed to copy symlink: %w", err)
			}
		case info.IsDir():
			if err := CopyDir(srcPath, destPath); err != nil {
				return err
			}
		default:
			if err := CopyFile(srcPath, destPath); err != nil {
				return err
			}
		}
	}

	return os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime())
}

// MoveDir renames src to dest, falling back to copy and remove when the two
// live on different filesystems.
func MoveDir(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := CopyDir(src, dest); err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return os.RemoveAll(src)
}

func sanitizeTempName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '*' || r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, name)
}
