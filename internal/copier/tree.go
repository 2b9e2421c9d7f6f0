package copier

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// AsideSuffix marks a file that was renamed out of the way because it could
// not be overwritten in place (a running executable on Windows).
const AsideSuffix = ".old"

// AsideManifest is the file in the copy source that lists, one absolute path
// per line, every file renamed aside while copying from it. CopyTree never
// copies it.
const AsideManifest = ".breeze-update-aside"

// CopyTree recursively copies the directory src over dst, creating dst if
// needed. Existing files are overwritten; files in dst that are not in src
// are left alone. Symlinks are recreated, not followed. Files renamed aside
// are appended to src's AsideManifest, also when the copy fails part way.
func CopyTree(src, dst string) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	var asides []string
	defer func() {
		if recErr := recordAside(src, asides); recErr != nil && err == nil {
			err = recErr
		}
	}()

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == AsideManifest {
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, fi.Mode().Perm()|0o700)
		case d.Type()&fs.ModeSymlink != 0:
			return copySymlink(path, target)
		case d.Type().IsRegular():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			aside, err := copyFile(path, target, fi.Mode().Perm())
			if aside != "" {
				asides = append(asides, aside)
			}
			return err
		default:
			return nil
		}
	})
}

func recordAside(src string, asides []string) error {
	if len(asides) == 0 {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(src, AsideManifest), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("record replaced files: %w", err)
	}
	for _, p := range asides {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if _, err := fmt.Fprintln(f, p); err != nil {
			f.Close()
			return fmt.Errorf("record replaced files: %w", err)
		}
	}
	return f.Close()
}

func copySymlink(src, dst string) error {
	link, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("read link %s: %w", src, err)
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replace link %s: %w", dst, err)
	}
	return os.Symlink(link, dst)
}

// copyFile copies src to dst and returns the aside path when dst had to be
// renamed out of the way.
func copyFile(src, dst string, perm fs.FileMode) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, aside, err := createReplacing(dst, perm)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return aside, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return aside, fmt.Errorf("close %s: %w", dst, err)
	}
	return aside, os.Chmod(dst, perm)
}

// createReplacing opens dst for writing. If the file is in use and cannot be
// truncated, it is renamed aside and a fresh file is created in its place;
// the aside path is returned.
func createReplacing(dst string, perm fs.FileMode) (*os.File, string, error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err == nil {
		return out, "", nil
	}
	if _, statErr := os.Lstat(dst); statErr != nil {
		return nil, "", fmt.Errorf("create %s: %w", dst, err)
	}

	aside := dst + AsideSuffix
	_ = os.Remove(aside)
	if renameErr := os.Rename(dst, aside); renameErr != nil {
		return nil, "", fmt.Errorf("create %s: %w (rename aside: %v)", dst, err, renameErr)
	}

	out, err = os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		_ = os.Rename(aside, dst)
		return nil, "", fmt.Errorf("create %s after rename aside: %w", dst, err)
	}
	return out, aside, nil
}

// RemoveAside deletes the files listed in src's AsideManifest, where src is
// the directory a copy ran from. Files the application ships are never
// touched. It returns the number of files removed and every removal error.
func RemoveAside(src string) (int, error) {
	f, err := os.Open(filepath.Join(src, AsideManifest))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var merr *multierror.Error
	removed := 0
	seen := make(map[string]bool)

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		path := strings.TrimSpace(sc.Text())
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		if !filepath.IsAbs(path) || !strings.HasSuffix(path, AsideSuffix) {
			merr = multierror.Append(merr, fmt.Errorf("ignoring manifest entry %q", path))
			continue
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				merr = multierror.Append(merr, fmt.Errorf("remove %s: %w", path, err))
			}
			continue
		}
		removed++
	}
	if err := sc.Err(); err != nil {
		merr = multierror.Append(merr, err)
	}

	return removed, merr.ErrorOrNil()
}
