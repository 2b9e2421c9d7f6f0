package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPSource streams a payload with GET.
type HTTPSource struct {
	Client *http.Client
}

func (s *HTTPSource) Fetch(ctx context.Context, u *url.URL, sink Sink) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{URL: u.Redacted(), StatusCode: resp.StatusCode}
	}

	if _, err := io.Copy(sink, resp.Body); err != nil {
		return fmt.Errorf("read payload body: %w", err)
	}
	return nil
}
