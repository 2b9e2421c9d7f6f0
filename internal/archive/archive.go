// Package archive unpacks update payloads (zip or tar.gz) into a directory.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/breeze-rmm/desktop-updater/internal/logging"
)

var log = logging.L("archive")

// Format identifies a payload container.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
)

// ErrUnknownFormat is returned when the payload is neither zip nor gzip.
var ErrUnknownFormat = errors.New("unrecognized archive format")

// ExtractError wraps any failure while unpacking an archive.
type ExtractError struct {
	Archive string
	Err     error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Detect sniffs the first bytes of path.
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return FormatZip, nil
	case bytes.HasPrefix(head, gzipMagic):
		return FormatTarGz, nil
	default:
		return "", ErrUnknownFormat
	}
}

// Extract unpacks archivePath into dest, creating dest if needed. Entries that
// would land outside dest are rejected. The whole extraction runs under a
// transparency Guard; see Guard.
func Extract(ctx context.Context, archivePath, dest string) (err error) {
	defer func() {
		if err != nil {
			err = &ExtractError{Archive: archivePath, Err: err}
		}
	}()

	format, err := Detect(archivePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	x, err := newExtractor(dest)
	if err != nil {
		return err
	}
	defer x.root.Close()

	return WithOpaque(func() error {
		log.Debug("extracting payload", "archive", archivePath, "dest", dest, "format", format)
		var err error
		switch format {
		case FormatZip:
			err = x.extractZip(ctx, archivePath)
		default:
			err = x.extractTarGz(ctx, archivePath)
		}
		if err != nil {
			return err
		}
		return x.verifyLinks()
	})
}

// maxLinkHops bounds symlink resolution while checking containment.
const maxLinkHops = 40

// extractor writes entries beneath dir through an os.Root, so no write can
// follow a symlink out of the destination.
type extractor struct {
	dir  string
	root *os.Root
}

func newExtractor(dest string) (*extractor, error) {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(resolved)
	if err != nil {
		return nil, fmt.Errorf("open destination: %w", err)
	}
	return &extractor{dir: resolved, root: root}, nil
}

// entryName maps an untrusted entry name to a path relative to the root.
func (x *extractor) entryName(untrusted string) (string, error) {
	target, err := containedPath(x.dir, untrusted)
	if err != nil {
		return "", err
	}
	return filepath.Rel(x.dir, target)
}

func (x *extractor) extractZip(ctx context.Context, src string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		name, err := x.entryName(f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := x.root.MkdirAll(name, 0o755); err != nil {
				return err
			}
		case mode&fs.ModeSymlink != 0:
			if err := x.extractZipSymlink(f, name); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			err = x.writeFile(name, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *extractor) extractZipSymlink(f *zip.File, name string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	link, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return err
	}
	return x.writeSymlink(name, string(link))
}

func (x *extractor) extractTarGz(ctx context.Context, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		name, err := x.entryName(hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := x.root.MkdirAll(name, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.writeFile(name, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := x.writeSymlink(name, hdr.Linkname); err != nil {
				return err
			}
		default:
			log.Debug("skipping archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
		}
	}
}

func (x *extractor) writeFile(name string, r io.Reader, perm fs.FileMode) error {
	if err := x.root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := x.root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeSymlink creates a link at name. The link, resolved through any links
// already on disk, must stay inside the destination; absolute targets are
// rejected.
func (x *extractor) writeSymlink(name, link string) error {
	if filepath.IsAbs(link) {
		return fmt.Errorf("absolute symlink %q not allowed", link)
	}
	if err := x.root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	if err := x.checkLink(name, link); err != nil {
		return err
	}
	_ = x.root.Remove(name)
	return x.root.Symlink(link, name)
}

func (x *extractor) checkLink(name, link string) error {
	escapes, err := x.escapes(filepath.ToSlash(filepath.Dir(name)) + "/" + filepath.ToSlash(link))
	if err != nil {
		return fmt.Errorf("symlink %q: %w", name, err)
	}
	if escapes {
		return fmt.Errorf("symlink %q -> %q escapes destination", name, link)
	}
	return nil
}

// verifyLinks rechecks every extracted symlink against the finished tree,
// catching chains whose links were written in an order that hid the escape.
func (x *extractor) verifyLinks() error {
	return fs.WalkDir(x.root.FS(), ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		link, err := x.root.Readlink(name)
		if err != nil {
			return err
		}
		if filepath.IsAbs(link) {
			return fmt.Errorf("absolute symlink %q not allowed", link)
		}
		return x.checkLink(filepath.FromSlash(name), link)
	})
}

// escapes walks rel from the destination one component at a time, following
// symlinks present on disk, and reports whether it ever leaves the
// destination. Missing components are taken literally.
func (x *extractor) escapes(rel string) (bool, error) {
	cur := x.dir
	rest := strings.Split(rel, "/")
	hops := 0
	for len(rest) > 0 {
		c := rest[0]
		rest = rest[1:]
		switch c {
		case "", ".":
			continue
		case "..":
			if cur == x.dir {
				return true, nil
			}
			cur = filepath.Dir(cur)
			continue
		}

		next := filepath.Join(cur, c)
		info, err := os.Lstat(next)
		if err != nil || info.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}
		if hops++; hops > maxLinkHops {
			return true, errors.New("too many levels of symbolic links")
		}
		target, err := os.Readlink(next)
		if err != nil {
			return true, err
		}
		if filepath.IsAbs(target) {
			return true, nil
		}
		rest = append(strings.Split(filepath.ToSlash(target), "/"), rest...)
	}
	return false, nil
}

// containedPath joins base and an untrusted archive entry name and rejects
// results that resolve outside base.
func containedPath(basePath, untrustedPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	joined := filepath.Join(absBase, filepath.FromSlash(untrustedPath))
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) && absJoined != absBase {
		return "", fmt.Errorf("path traversal detected: %q resolves outside base %q", untrustedPath, absBase)
	}
	return absJoined, nil
}
