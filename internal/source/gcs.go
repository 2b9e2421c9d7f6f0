package source

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSSource downloads gs://bucket/object. Without a credentials file the
// application default credentials are used unless Anonymous is set.
type GCSSource struct {
	CredentialsFile string
	Anonymous       bool
	Endpoint        string
}

func (s *GCSSource) Fetch(ctx context.Context, u *url.URL, sink Sink) error {
	bucket, object, err := objectURL(u)
	if err != nil {
		return err
	}

	var opts []option.ClientOption
	switch {
	case s.Anonymous:
		opts = append(opts, option.WithoutAuthentication())
	case s.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(s.CredentialsFile))
	}
	if s.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create gcs client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	if _, err := io.Copy(sink, r); err != nil {
		return fmt.Errorf("read gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}
