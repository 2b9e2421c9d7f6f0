package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/Backblaze/blazer/b2"
)

// B2Source downloads b2://bucket/key from Backblaze B2.
type B2Source struct {
	AccountID      string
	ApplicationKey string
}

func (s *B2Source) Fetch(ctx context.Context, u *url.URL, sink Sink) error {
	bucketName, key, err := objectURL(u)
	if err != nil {
		return err
	}
	if s.AccountID == "" || s.ApplicationKey == "" {
		return errors.New("b2 payloads need b2.account_id and b2.application_key")
	}

	client, err := b2.NewClient(ctx, s.AccountID, s.ApplicationKey)
	if err != nil {
		return fmt.Errorf("b2 authorize: %w", err)
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("b2 bucket %s: %w", bucketName, err)
	}

	r := bucket.Object(key).NewReader(ctx)
	defer r.Close()

	if _, err := io.Copy(sink, r); err != nil {
		return fmt.Errorf("read b2://%s/%s: %w", bucketName, key, err)
	}
	return nil
}
