package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

type entry struct {
	name string
	body string
	dir  bool
	link string
}

func writeZip(t *testing.T, entries []entry) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		switch {
		case e.dir:
			hdr.SetMode(os.ModeDir | 0o755)
		case e.link != "":
			hdr.SetMode(os.ModeSymlink | 0o777)
		default:
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		switch {
		case e.link != "":
			w.Write([]byte(e.link))
		case !e.dir:
			w.Write([]byte(e.body))
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "payload.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeTarGz(t *testing.T, entries []entry) string {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644}
		switch {
		case e.dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			tw.Write([]byte(e.body))
		}
	}
	tw.Close()
	gw.Close()
	path := filepath.Join(t.TempDir(), "payload.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestDetect(t *testing.T) {
	zipPath := writeZip(t, []entry{{name: "a", body: "a"}})
	tgzPath := writeTarGz(t, []entry{{name: "a", body: "a"}})
	junk := filepath.Join(t.TempDir(), "junk")
	os.WriteFile(junk, []byte("hello world"), 0o644)
	short := filepath.Join(t.TempDir(), "short")
	os.WriteFile(short, []byte("P"), 0o644)

	if f, err := Detect(zipPath); err != nil || f != FormatZip {
		t.Fatalf("zip: got %q, %v", f, err)
	}
	if f, err := Detect(tgzPath); err != nil || f != FormatTarGz {
		t.Fatalf("tar.gz: got %q, %v", f, err)
	}
	if _, err := Detect(junk); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("junk: expected ErrUnknownFormat, got %v", err)
	}
	if _, err := Detect(short); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("short: expected ErrUnknownFormat, got %v", err)
	}
}

func TestExtractZip(t *testing.T) {
	src := writeZip(t, []entry{
		{name: "App/", dir: true},
		{name: "App/app.exe", body: "binary"},
		{name: "App/resources/app.asar", body: "packed"},
	})
	dest := filepath.Join(t.TempDir(), "scratch")

	if err := Extract(context.Background(), src, dest); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dest, "App", "app.exe")); got != "binary" {
		t.Fatalf("app.exe = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "App", "resources", "app.asar")); got != "packed" {
		t.Fatalf("app.asar = %q", got)
	}
}

func TestExtractTarGz(t *testing.T) {
	src := writeTarGz(t, []entry{
		{name: "bin/", dir: true},
		{name: "bin/tool", body: "tool"},
		{name: "README", body: "readme"},
	})
	dest := t.TempDir()

	if err := Extract(context.Background(), src, dest); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dest, "bin", "tool")); got != "tool" {
		t.Fatalf("tool = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "README")); got != "readme" {
		t.Fatalf("README = %q", got)
	}
}

func TestExtractSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	src := writeTarGz(t, []entry{
		{name: "Versions/A/lib", body: "lib"},
		{name: "Current", link: "Versions/A"},
	})
	dest := t.TempDir()

	if err := Extract(context.Background(), src, dest); err != nil {
		t.Fatal(err)
	}
	link, err := os.Readlink(filepath.Join(dest, "Current"))
	if err != nil {
		t.Fatal(err)
	}
	if link != "Versions/A" {
		t.Fatalf("link = %q", link)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	cases := map[string]string{
		"zip":    writeZip(t, []entry{{name: "../evil", body: "x"}}),
		"tar.gz": writeTarGz(t, []entry{{name: "../../evil", body: "x"}}),
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			dest := t.TempDir()
			err := Extract(context.Background(), src, dest)
			var ee *ExtractError
			if !errors.As(err, &ee) {
				t.Fatalf("expected *ExtractError, got %v", err)
			}
			if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil")); statErr == nil {
				t.Fatal("file escaped destination")
			}
		})
	}
}

func TestExtractRejectsEscapingSymlink(t *testing.T) {
	src := writeTarGz(t, []entry{{name: "link", link: "../../etc"}})
	if err := Extract(context.Background(), src, t.TempDir()); err == nil {
		t.Fatal("expected escaping symlink to be rejected")
	}

	abs := writeTarGz(t, []entry{{name: "link", link: "/etc/passwd"}})
	if err := Extract(context.Background(), abs, t.TempDir()); err == nil {
		t.Fatal("expected absolute symlink to be rejected")
	}
}

func TestExtractRejectsSymlinkChain(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	// Each link looks contained on its own; together l points two levels up.
	base := t.TempDir()
	dest := filepath.Join(base, "a", "b", "scratch")
	src := writeTarGz(t, []entry{
		{name: "s", link: "."},
		{name: "t", link: "."},
		{name: "s/t/l", link: "../.."},
		{name: "l/escaped.txt", body: "x"},
	})

	err := Extract(context.Background(), src, dest)
	var ee *ExtractError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExtractError, got %v", err)
	}
	for _, dir := range []string{filepath.Join(base, "a"), filepath.Join(base, "a", "b")} {
		if _, statErr := os.Stat(filepath.Join(dir, "escaped.txt")); statErr == nil {
			t.Fatalf("file written outside destination in %s", dir)
		}
	}
}

func TestExtractRejectsReorderedSymlinkChain(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	// b is checked while a is missing; a only becomes "." afterwards.
	src := writeZip(t, []entry{
		{name: "b", link: "a/.."},
		{name: "a", link: "."},
	})
	if err := Extract(context.Background(), src, t.TempDir()); err == nil {
		t.Fatal("expected escaping symlink chain to be rejected")
	}
}

func TestExtractAllowsContainedParentLinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	src := writeTarGz(t, []entry{
		{name: "Shared/data", body: "shared"},
		{name: "Versions/A/", dir: true},
		{name: "Versions/A/Resources", link: "../../Shared"},
		{name: "Current", link: "Versions/A"},
	})
	dest := t.TempDir()

	if err := Extract(context.Background(), src, dest); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dest, "Current", "Resources", "data")); got != "shared" {
		t.Fatalf("data through links = %q", got)
	}
}

func TestExtractMissingArchive(t *testing.T) {
	err := Extract(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), t.TempDir())
	var ee *ExtractError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExtractError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}

func TestExtractCorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.gz")
	os.WriteFile(path, []byte{0x1f, 0x8b, 0x00, 0x00, 0x01}, 0o644)

	var ee *ExtractError
	if err := Extract(context.Background(), path, t.TempDir()); !errors.As(err, &ee) {
		t.Fatalf("expected *ExtractError, got %v", err)
	}
}

func TestExtractHonorsCancelledContext(t *testing.T) {
	src := writeZip(t, []entry{{name: "a", body: "a"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Extract(ctx, src, t.TempDir()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestContainedPath(t *testing.T) {
	base := t.TempDir()
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "a/b.txt"},
		{name: "dot", input: "."},
		{name: "cleaned inside", input: "a/../b"},
		{name: "parent", input: "../x", wantErr: true},
		{name: "deep parent", input: "a/../../x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := containedPath(base, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("containedPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
