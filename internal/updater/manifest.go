package updater

import (
	"encoding/json"
	"strings"
	"time"
)

// Manifest describes an available update as served by the feed.
type Manifest struct {
	Version     string
	Build       int
	URL         string
	Size        int64
	Notes       string
	PublishedAt time.Time
}

type manifestJSON struct {
	URL     string `json:"url"`
	Size    int64  `json:"size"`
	Version string `json:"version"`
	Build   int    `json:"build"`
	Notes   string `json:"notes"`
	PubDate string `json:"pub_date"`
}

// parseManifest decodes a feed body. url is required; size, when present,
// must not be negative. An unparseable pub_date is dropped.
func parseManifest(body []byte) (*Manifest, error) {
	var raw manifestJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ManifestError{Reason: "malformed json", Err: err}
	}
	if strings.TrimSpace(raw.URL) == "" {
		return nil, &ManifestError{Reason: "missing url"}
	}
	if raw.Size < 0 {
		return nil, &ManifestError{Reason: "negative size"}
	}

	m := &Manifest{
		Version: raw.Version,
		Build:   raw.Build,
		URL:     strings.TrimSpace(raw.URL),
		Size:    raw.Size,
		Notes:   raw.Notes,
	}
	if raw.PubDate != "" {
		if t, err := time.Parse(time.RFC3339, raw.PubDate); err == nil {
			m.PublishedAt = t
		} else {
			log.Warn("ignoring unparseable pub_date", "pubDate", raw.PubDate, "error", err)
		}
	}
	return m, nil
}
