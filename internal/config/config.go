package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultNISTBaseURL = "https://nvd.nist.gov"
	DefaultCCIListURL  = "https://dl.dod.cyber.mil/wp-content/uploads/stigs/zip/u_cci_list.zip"
)

type Config struct {
	DatabasePath      string        `yaml:"database"`
	ScratchDir        string        `yaml:"scratch_dir"`
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	LogLevel          string        `yaml:"log_level"`
	NISTBaseURL       string        `yaml:"nist_base_url"`
	CCIListURL        string        `yaml:"cci_list_url"`
	STIGLibraryURL    string        `yaml:"stig_library_url"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	DownloadAttempts  int           `yaml:"download_attempts"`
	ProgressInterval  time.Duration `yaml:"progress_interval"`
	TestedBy          string        `yaml:"tested_by"`

	S3Endpoint    string `yaml:"s3_endpoint"`
	S3AccessKey   string `yaml:"s3_access_key"`
	S3SecretKey   string `yaml:"s3_secret_key"`
	S3UseSSL      bool   `yaml:"s3_use_ssl"`
	STIGsBucket   string `yaml:"stigs_bucket"`
	ReportsBucket string `yaml:"reports_bucket"`

	CentralDatabaseURL string `yaml:"central_database_url"`
}

// LoadDotEnv reads .env files from the working directory when present.
func LoadDotEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}

func defaults() Config {
	return Config{
		DatabasePath:      "stigkeeper.db",
		ScratchDir:        os.TempDir(),
		WorkerConcurrency: 2,
		LogLevel:          "info",
		NISTBaseURL:       DefaultNISTBaseURL,
		CCIListURL:        DefaultCCIListURL,
		HTTPTimeout:       2 * time.Minute,
		DownloadAttempts:  3,
		ProgressInterval:  500 * time.Millisecond,
	}
}

func getString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func getInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func getDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty or the file does not exist), then the
// environment.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	getString("STIGKEEPER_DB", &cfg.DatabasePath)
	getString("SCRATCH_DIR", &cfg.ScratchDir)
	getString("LOG_LEVEL", &cfg.LogLevel)
	getString("NIST_BASE_URL", &cfg.NISTBaseURL)
	getString("CCI_LIST_URL", &cfg.CCIListURL)
	getString("STIG_LIBRARY_URL", &cfg.STIGLibraryURL)
	getString("TESTED_BY", &cfg.TestedBy)
	getString("S3_ENDPOINT", &cfg.S3Endpoint)
	getString("S3_ACCESS_KEY", &cfg.S3AccessKey)
	getString("S3_SECRET_KEY", &cfg.S3SecretKey)
	getString("STIGS_BUCKET", &cfg.STIGsBucket)
	getString("REPORTS_BUCKET", &cfg.ReportsBucket)
	getString("CENTRAL_DATABASE_URL", &cfg.CentralDatabaseURL)

	err := errors.Join(
		getInt("WORKER_CONCURRENCY", &cfg.WorkerConcurrency),
		getInt("DOWNLOAD_ATTEMPTS", &cfg.DownloadAttempts),
		getDuration("HTTP_TIMEOUT", &cfg.HTTPTimeout),
		getDuration("PROGRESS_INTERVAL", &cfg.ProgressInterval),
		getBool("S3_USE_SSL", &cfg.S3UseSSL),
	)
	if err != nil {
		return cfg, err
	}

	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.DownloadAttempts < 1 {
		cfg.DownloadAttempts = 1
	}
	if cfg.TestedBy == "" {
		cfg.TestedBy = os.Getenv("USER")
	}
	return cfg, nil
}

// S3Enabled reports whether object storage is configured.
func (c Config) S3Enabled() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != ""
}
