package updater

import (
	"errors"
	"testing"
)

func TestParseManifest(t *testing.T) {
	m, err := parseManifest([]byte(`{"url":" https://cdn.example.com/app-2.0.zip ","size":1024,"version":"2.0.0","build":7,"notes":"n","pub_date":"2026-01-02T03:04:05Z"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.URL != "https://cdn.example.com/app-2.0.zip" {
		t.Fatalf("url = %q", m.URL)
	}
	if m.Size != 1024 || m.Version != "2.0.0" || m.Build != 7 || m.Notes != "n" {
		t.Fatalf("manifest = %+v", m)
	}
	if m.PublishedAt.IsZero() {
		t.Fatal("pub_date should parse")
	}
}

func TestParseManifestToleratesBadDate(t *testing.T) {
	m, err := parseManifest([]byte(`{"url":"https://x/app.zip","pub_date":"yesterday"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !m.PublishedAt.IsZero() {
		t.Fatal("bad pub_date should be dropped")
	}
}

func TestParseManifestErrors(t *testing.T) {
	for _, body := range []string{``, `[]`, `{"url":""}`, `{"url":"https://x","size":-5}`} {
		_, err := parseManifest([]byte(body))
		var me *ManifestError
		if !errors.As(err, &me) {
			t.Fatalf("body %q: expected ManifestError, got %v", body, err)
		}
	}
}
