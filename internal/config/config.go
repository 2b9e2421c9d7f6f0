package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/desktop-updater/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g.
// BREEZE_UPDATE_FEED_URL or BREEZE_UPDATE_S3_REGION.
const EnvPrefix = "BREEZE_UPDATE"

type Config struct {
	FeedURL        string `mapstructure:"feed_url" yaml:"feed_url"`
	AllowInsecure  bool   `mapstructure:"allow_insecure" yaml:"allow_insecure"`
	CurrentVersion string `mapstructure:"current_version" yaml:"current_version"`
	DisableGPU     bool   `mapstructure:"disable_gpu" yaml:"disable_gpu"`

	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxBytes int64  `mapstructure:"log_max_bytes" yaml:"log_max_bytes"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat   string `mapstructure:"log_format" yaml:"log_format"`

	CopyMaxAttempts  int           `mapstructure:"copy_max_attempts" yaml:"copy_max_attempts"`
	CopyRetryDelay   time.Duration `mapstructure:"copy_retry_delay" yaml:"copy_retry_delay"`
	ExitWaitTimeout  time.Duration `mapstructure:"exit_wait_timeout" yaml:"exit_wait_timeout"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`

	Proxy ProxyConfig `mapstructure:"proxy" yaml:"proxy"`
	S3    S3Config    `mapstructure:"s3" yaml:"s3"`
	GCS   GCSConfig   `mapstructure:"gcs" yaml:"gcs"`
	Azure AzureConfig `mapstructure:"azure" yaml:"azure"`
	B2    B2Config    `mapstructure:"b2" yaml:"b2"`
}

// ProxyConfig overrides the HTTP_PROXY/HTTPS_PROXY/NO_PROXY environment.
type ProxyConfig struct {
	HTTP    string `mapstructure:"http" yaml:"http"`
	HTTPS   string `mapstructure:"https" yaml:"https"`
	NoProxy string `mapstructure:"no_proxy" yaml:"no_proxy"`
}

type S3Config struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token"`
	PathStyle       bool   `mapstructure:"path_style" yaml:"path_style"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	Anonymous       bool   `mapstructure:"anonymous" yaml:"anonymous"`
}

type AzureConfig struct {
	AccountName string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey  string `mapstructure:"account_key" yaml:"account_key"`
}

type B2Config struct {
	AccountID      string `mapstructure:"account_id" yaml:"account_id"`
	ApplicationKey string `mapstructure:"application_key" yaml:"application_key"`
}

func Default() *Config {
	return &Config{
		LogFile:          logging.DefaultSharedLogPath(),
		LogMaxBytes:      logging.DefaultSharedLogMaxBytes,
		LogLevel:         "info",
		LogFormat:        "text",
		CopyMaxAttempts:  30,
		CopyRetryDelay:   time.Second,
		ExitWaitTimeout:  10 * time.Second,
		ProgressInterval: 500 * time.Millisecond,
	}
}

// Load reads cfgFile (or updater.yaml from the platform config dir or the
// working directory when cfgFile is empty) and applies environment overrides.
// A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("updater")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve overrides for
// keys that do not appear in the config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("feed_url", cfg.FeedURL)
	v.SetDefault("allow_insecure", cfg.AllowInsecure)
	v.SetDefault("current_version", cfg.CurrentVersion)
	v.SetDefault("disable_gpu", cfg.DisableGPU)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_max_bytes", cfg.LogMaxBytes)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("copy_max_attempts", cfg.CopyMaxAttempts)
	v.SetDefault("copy_retry_delay", cfg.CopyRetryDelay)
	v.SetDefault("exit_wait_timeout", cfg.ExitWaitTimeout)
	v.SetDefault("http_timeout", cfg.HTTPTimeout)
	v.SetDefault("progress_interval", cfg.ProgressInterval)
	v.SetDefault("proxy.http", "")
	v.SetDefault("proxy.https", "")
	v.SetDefault("proxy.no_proxy", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.session_token", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("gcs.credentials_file", "")
	v.SetDefault("gcs.anonymous", false)
	v.SetDefault("azure.account_name", "")
	v.SetDefault("azure.account_key", "")
	v.SetDefault("b2.account_id", "")
	v.SetDefault("b2.application_key", "")
}

// YAML renders the config with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	redacted.S3.SecretAccessKey = mask(c.S3.SecretAccessKey)
	redacted.S3.SessionToken = mask(c.S3.SessionToken)
	redacted.Azure.AccountKey = mask(c.Azure.AccountKey)
	redacted.B2.ApplicationKey = mask(c.B2.ApplicationKey)
	return yaml.Marshal(&redacted)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Breeze", "Updater")
	case "darwin":
		return "/Library/Application Support/Breeze/Updater"
	default:
		return "/etc/breeze"
	}
}
