package source

import (
	"net/http"

	"github.com/breeze-rmm/desktop-updater/internal/config"
)

// FromConfig returns a registry with every built-in source. http is
// registered but not secure; the others always use TLS.
func FromConfig(cfg *config.Config, client *http.Client) *Registry {
	r := NewRegistry()

	web := &HTTPSource{Client: client}
	r.Register("http", web, false)
	r.Register("https", web, true)

	r.Register("s3", &S3Source{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		SessionToken:    cfg.S3.SessionToken,
		PathStyle:       cfg.S3.PathStyle,
		HTTPClient:      client,
	}, true)

	r.Register("gs", &GCSSource{
		CredentialsFile: cfg.GCS.CredentialsFile,
		Anonymous:       cfg.GCS.Anonymous,
	}, true)

	r.Register("azblob", &AzureSource{
		AccountName: cfg.Azure.AccountName,
		AccountKey:  cfg.Azure.AccountKey,
	}, true)

	r.Register("b2", &B2Source{
		AccountID:      cfg.B2.AccountID,
		ApplicationKey: cfg.B2.ApplicationKey,
	}, true)

	return r
}
