package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureSource downloads azblob://account/container/blob. A SAS token may be
// carried in the URL query; otherwise the shared key is used when it belongs
// to the addressed account.
type AzureSource struct {
	AccountName string
	AccountKey  string
	// ServiceURL overrides https://<account>.blob.core.windows.net/.
	ServiceURL string
}

func (s *AzureSource) Fetch(ctx context.Context, u *url.URL, sink Sink) error {
	account := u.Host
	container, blob, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !ok || account == "" || container == "" || blob == "" {
		return fmt.Errorf("azblob url %q must be azblob://account/container/blob", u.Redacted())
	}

	serviceURL := s.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}

	var (
		client *azblob.Client
		err    error
	)
	if s.AccountKey != "" && (s.AccountName == "" || s.AccountName == account) {
		cred, credErr := azblob.NewSharedKeyCredential(account, s.AccountKey)
		if credErr != nil {
			return fmt.Errorf("azure shared key: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	} else {
		if u.RawQuery != "" {
			serviceURL += "?" + u.RawQuery
		}
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	}
	if err != nil {
		return fmt.Errorf("create azure client: %w", err)
	}

	resp, err := client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return fmt.Errorf("download %s/%s: %w", container, blob, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(sink, resp.Body); err != nil {
		return fmt.Errorf("read %s/%s: %w", container, blob, err)
	}
	return nil
}
