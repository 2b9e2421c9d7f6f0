package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	minCopyAttempts   = 1
	maxCopyAttempts   = 120
	minCopyRetryDelay = 100 * time.Millisecond
	maxCopyRetryDelay = 30 * time.Second
	minLogMaxBytes    = 4 * 1024
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates errors that must stop startup from ones that
// were auto-corrected.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// Validate checks the config and returns every problem found. Out-of-range
// values that would break the retry loop or the progress ticker are clamped.
func (c *Config) Validate() []error {
	result := c.ValidateTiered()
	return append(result.Fatals, result.Warnings...)
}

// ValidateTiered is Validate with fatals and warnings kept apart.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.FeedURL != "" {
		u, err := url.Parse(c.FeedURL)
		switch {
		case err != nil:
			result.Fatals = append(result.Fatals, fmt.Errorf("feed_url %q is not a valid URL: %w", c.FeedURL, err))
		case u.Scheme != "http" && u.Scheme != "https":
			result.Fatals = append(result.Fatals, fmt.Errorf("feed_url scheme must be http or https, got %q", u.Scheme))
		case u.Host == "":
			result.Fatals = append(result.Fatals, fmt.Errorf("feed_url %q has no host", c.FeedURL))
		}
	}

	if c.CopyMaxAttempts < minCopyAttempts {
		result.Warnings = append(result.Warnings, fmt.Errorf("copy_max_attempts %d is below minimum %d, clamping", c.CopyMaxAttempts, minCopyAttempts))
		c.CopyMaxAttempts = minCopyAttempts
	} else if c.CopyMaxAttempts > maxCopyAttempts {
		result.Warnings = append(result.Warnings, fmt.Errorf("copy_max_attempts %d exceeds maximum %d, clamping", c.CopyMaxAttempts, maxCopyAttempts))
		c.CopyMaxAttempts = maxCopyAttempts
	}

	if c.CopyRetryDelay < minCopyRetryDelay {
		result.Warnings = append(result.Warnings, fmt.Errorf("copy_retry_delay %s is below minimum %s, clamping", c.CopyRetryDelay, minCopyRetryDelay))
		c.CopyRetryDelay = minCopyRetryDelay
	} else if c.CopyRetryDelay > maxCopyRetryDelay {
		result.Warnings = append(result.Warnings, fmt.Errorf("copy_retry_delay %s exceeds maximum %s, clamping", c.CopyRetryDelay, maxCopyRetryDelay))
		c.CopyRetryDelay = maxCopyRetryDelay
	}

	if c.ProgressInterval <= 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("progress_interval %s must be positive, using 500ms", c.ProgressInterval))
		c.ProgressInterval = 500 * time.Millisecond
	}

	if c.ExitWaitTimeout < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("exit_wait_timeout %s is negative, disabling wait", c.ExitWaitTimeout))
		c.ExitWaitTimeout = 0
	}

	if c.HTTPTimeout < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("http_timeout %s is negative, disabling timeout", c.HTTPTimeout))
		c.HTTPTimeout = 0
	}

	if c.LogMaxBytes < minLogMaxBytes {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_max_bytes %d is below minimum %d, clamping", c.LogMaxBytes, minLogMaxBytes))
		c.LogMaxBytes = minLogMaxBytes
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not recognized, using info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q must be text or json, using text", c.LogFormat))
		c.LogFormat = "text"
	}

	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		result.Fatals = append(result.Fatals, fmt.Errorf("s3.access_key_id and s3.secret_access_key must be set together"))
	}

	if (c.B2.AccountID == "") != (c.B2.ApplicationKey == "") {
		result.Fatals = append(result.Fatals, fmt.Errorf("b2.account_id and b2.application_key must be set together"))
	}

	if c.Azure.AccountKey != "" && c.Azure.AccountName == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("azure.account_key requires azure.account_name"))
	}

	return result
}
