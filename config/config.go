// Package config loads the pdfpacs configuration from defaults, an optional
// file, an optional .env file and the environment.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Registry protocols
const (
	ProtocolOrthanc = "orthanc"
	ProtocolDIMSE   = "dimse"
)

// Config is built once by Load and passed by value; nothing mutates it
// afterwards.
type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Duplicates DuplicatesConfig `mapstructure:"duplicates"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Integrity  IntegrityConfig  `mapstructure:"integrity"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Validation ValidationConfig `mapstructure:"validation"`
	Document   DocumentConfig   `mapstructure:"document"`
	Log        LogConfig        `mapstructure:"log"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
}

// SourceConfig is the watched folder and its outcome folders. Relative
// outcome folders are resolved against Folder.
type SourceConfig struct {
	Folder        string `mapstructure:"folder"`
	DateFolders   bool   `mapstructure:"date_folders"`
	ProcessedDir  string `mapstructure:"processed_dir"`
	DuplicatesDir string `mapstructure:"duplicates_dir"`
	ErrorsDir     string `mapstructure:"errors_dir"`
}

// RegistryConfig selects and addresses the remote registry
type RegistryConfig struct {
	Protocol string        `mapstructure:"protocol"`
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// RateLimit is requests per second shared by all workers; 0 is unlimited
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
	// Ping checks connectivity before a run
	Ping bool `mapstructure:"ping"`

	Address   string `mapstructure:"address"`
	CallingAE string `mapstructure:"calling_ae"`
	CalledAE  string `mapstructure:"called_ae"`
}

type DuplicatesConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RetryConfig is shared by duplicate queries and uploads. MaxAttempts
// counts the first attempt.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase float64       `mapstructure:"backoff_base"`
	Jitter      bool          `mapstructure:"jitter"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type PipelineConfig struct {
	Workers        int           `mapstructure:"workers"`
	WatchDebounce  time.Duration `mapstructure:"watch_debounce"`
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
}

type IntegrityConfig struct {
	MinBytes      int     `mapstructure:"min_bytes"`
	MaxFileMB     float64 `mapstructure:"max_file_mb"`
	TrailerWindow int     `mapstructure:"trailer_window"`
}

// MaxBytes converts MaxFileMB to bytes
func (c IntegrityConfig) MaxBytes() int64 {
	return int64(c.MaxFileMB * (1 << 20))
}

type IdentityConfig struct {
	FilenamePattern string `mapstructure:"filename_pattern"`
	CenturyBuffer   int    `mapstructure:"century_buffer"`
}

type ValidationConfig struct {
	MinYear       int `mapstructure:"min_year"`
	MaxFutureDays int `mapstructure:"max_future_days"`
}

// DocumentConfig holds the descriptive tags written into every document
type DocumentConfig struct {
	Institution        string `mapstructure:"institution"`
	ReferringPhysician string `mapstructure:"referring_physician"`
	StudyDescription   string `mapstructure:"study_description"`
	Modality           string `mapstructure:"modality"`
	Manufacturer       string `mapstructure:"manufacturer"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// StateDir is the per-user local directory holding the ledger by default
func StateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "pdfpacs")
	}
	return filepath.Join(os.TempDir(), "pdfpacs")
}

// resolvePaths makes outcome folders absolute relative to the source
// folder, and the ledger path relative to StateDir
func (c *Config) resolvePaths() {
	resolve := func(p, def string) string {
		if p == "" {
			p = def
		}
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.Source.Folder, p)
	}
	c.Source.ProcessedDir = resolve(c.Source.ProcessedDir, "Processados")
	c.Source.DuplicatesDir = resolve(c.Source.DuplicatesDir, "Duplicatas")
	c.Source.ErrorsDir = resolve(c.Source.ErrorsDir, "Erros")
	if c.Ledger.Enabled {
		if c.Ledger.Path == "" {
			c.Ledger.Path = "pdfpacs.db"
		}
		if !filepath.IsAbs(c.Ledger.Path) {
			c.Ledger.Path = filepath.Join(StateDir(), c.Ledger.Path)
		}
	}
}

// Validate rejects settings no component can run with
func (c Config) Validate() error {
	if c.Source.Folder == "" {
		return newError("source.folder", "is required")
	}
	if c.Pipeline.Workers < 1 {
		return newErrorf("pipeline.workers", "must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Retry.MaxAttempts < 1 {
		return newErrorf("retry.max_attempts", "must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffBase < 1 {
		return newErrorf("retry.backoff_base", "must be >= 1, got %g", c.Retry.BackoffBase)
	}
	if c.Retry.MaxDelay < 0 {
		return newErrorf("retry.max_delay", "must not be negative, got %s", c.Retry.MaxDelay)
	}
	if c.Integrity.MaxFileMB <= 0 {
		return newErrorf("integrity.max_file_mb", "must be positive, got %g", c.Integrity.MaxFileMB)
	}
	if c.Integrity.MinBytes < 0 || int64(c.Integrity.MinBytes) >= c.Integrity.MaxBytes() {
		return newErrorf("integrity.min_bytes", "must be between 0 and the maximum size, got %d", c.Integrity.MinBytes)
	}
	if c.Identity.CenturyBuffer < 0 || c.Identity.CenturyBuffer > 99 {
		return newErrorf("identity.century_buffer", "must be between 0 and 99, got %d", c.Identity.CenturyBuffer)
	}
	if c.Identity.FilenamePattern != "" {
		if _, err := regexp.Compile(c.Identity.FilenamePattern); err != nil {
			return newErrorf("identity.filename_pattern", "does not compile: %v", err)
		}
	}
	if c.Registry.RateLimit < 0 {
		return newErrorf("registry.rate_limit", "must not be negative, got %g", c.Registry.RateLimit)
	}

	switch c.Registry.Protocol {
	case ProtocolOrthanc:
		if c.Registry.URL == "" {
			return newError("registry.url", "is required for the orthanc protocol")
		}
	case ProtocolDIMSE:
		if c.Registry.Address == "" {
			return newError("registry.address", "is required for the dimse protocol")
		}
		if len(c.Registry.CallingAE) > 16 || len(c.Registry.CalledAE) > 16 {
			return newError("registry.calling_ae", "AE titles are at most 16 characters")
		}
	default:
		return newErrorf("registry.protocol", "must be %q or %q, got %q", ProtocolOrthanc, ProtocolDIMSE, c.Registry.Protocol)
	}
	return nil
}
