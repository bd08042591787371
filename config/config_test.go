package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

func TestLoadDefaults(t *testing.T) {
	src := t.TempDir()
	t.Setenv("PDF_SOURCE_FOLDER", src)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, src, cfg.Source.Folder)
	assert.True(t, cfg.Source.DateFolders)
	assert.Equal(t, filepath.Join(src, "Processados"), cfg.Source.ProcessedDir)
	assert.Equal(t, filepath.Join(src, "Duplicatas"), cfg.Source.DuplicatesDir)
	assert.Equal(t, filepath.Join(src, "Erros"), cfg.Source.ErrorsDir)
	assert.Equal(t, ProtocolOrthanc, cfg.Registry.Protocol)
	assert.Equal(t, "http://localhost:8042", cfg.Registry.URL)
	assert.Equal(t, 30*time.Second, cfg.Registry.Timeout)
	assert.True(t, cfg.Duplicates.Enabled)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1.5, cfg.Retry.BackoffBase)
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.WatchDebounce)
	assert.Equal(t, int64(50<<20), cfg.Integrity.MaxBytes())
	assert.Equal(t, 1, cfg.Identity.CenturyBuffer)
	assert.Equal(t, "HOSPITAL MUNICIPAL SAO JOSE", cfg.Document.Institution)
	assert.Equal(t, "ECG", cfg.Document.Modality)
	assert.Equal(t, "ELETROCARDIOGRAMA", cfg.Document.StudyDescription)
	assert.Equal(t, filepath.Join(StateDir(), "pdfpacs.db"), cfg.Ledger.Path)
	assert.NotEqual(t, src, filepath.Dir(cfg.Ledger.Path))
}

func TestLedgerPathOutsideSourceFolder(t *testing.T) {
	src := t.TempDir()
	t.Setenv("PDF_SOURCE_FOLDER", src)
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	t.Setenv("PDFPACS_LEDGER_PATH", "runs/history.db")
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(StateDir(), "runs", "history.db"), cfg.Ledger.Path)

	abs := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("PDFPACS_LEDGER_PATH", abs)
	cfg, err = Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.Ledger.Path)
}

func TestLegacyEnvironmentNames(t *testing.T) {
	src := t.TempDir()
	t.Setenv("PDF_SOURCE_FOLDER", src)
	t.Setenv("ORTHANC_URL", "http://pacs:8042")
	t.Setenv("ORTHANC_USER", "alice")
	t.Setenv("ORTHANC_PASSWORD", "secret")
	t.Setenv("CREATE_DATE_FOLDERS", "false")
	t.Setenv("SKIP_DUP_CHECK", "true")
	t.Setenv("MAX_WORKERS", "6")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("BACKOFF_BASE_SEC", "2")
	t.Setenv("MAX_FILE_MB", "10")
	t.Setenv("INSTITUTION_NAME", "HOSPITAL TESTE")
	t.Setenv("REFERRING_PHYSICIAN", "DR TESTE")
	t.Setenv("EXAM_TYPE", "HOLTER")
	t.Setenv("EXAM_MODALITY", "OT")
	t.Setenv("FILENAME_REGEX_PATTERN", `^(?P<name_parts>[A-Z_]+)_(?P<date>\d{8})$`)
	t.Setenv("PDFFLOW_LOG", "/var/log/pdfpacs.log")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "http://pacs:8042", cfg.Registry.URL)
	assert.Equal(t, "alice", cfg.Registry.Username)
	assert.Equal(t, "secret", cfg.Registry.Password)
	assert.False(t, cfg.Source.DateFolders)
	assert.False(t, cfg.Duplicates.Enabled)
	assert.Equal(t, 6, cfg.Pipeline.Workers)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Retry.BackoffBase)
	assert.Equal(t, int64(10<<20), cfg.Integrity.MaxBytes())
	assert.Equal(t, "HOSPITAL TESTE", cfg.Document.Institution)
	assert.Equal(t, "DR TESTE", cfg.Document.ReferringPhysician)
	assert.Equal(t, "HOLTER", cfg.Document.StudyDescription)
	assert.Equal(t, "OT", cfg.Document.Modality)
	assert.Contains(t, cfg.Identity.FilenamePattern, "name_parts")
	assert.Equal(t, "/var/log/pdfpacs.log", cfg.Log.File)
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("PDF_SOURCE_FOLDER", t.TempDir())
	t.Setenv("MAX_WORKERS", "6")
	t.Setenv("PDFPACS_PIPELINE_WORKERS", "8")
	t.Setenv("PDFPACS_RETRY_JITTER", "true")
	t.Setenv("PDFPACS_REGISTRY_RATE_LIMIT", "2.5")
	t.Setenv("SKIP_DUP_CHECK", "true")
	t.Setenv("PDFPACS_DUPLICATES_ENABLED", "true")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.True(t, cfg.Retry.Jitter)
	assert.Equal(t, 2.5, cfg.Registry.RateLimit)
	assert.True(t, cfg.Duplicates.Enabled)
}

func TestLoadFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "inbox")

	file := filepath.Join(dir, "pdfpacs.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
source:
  folder: `+src+`
  errors_dir: /srv/errors
registry:
  protocol: dimse
  address: pacs:104
  called_ae: PACS
pipeline:
  workers: 4
  watch_debounce: 500ms
`), 0o644))

	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("PDFPACS_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PDFPACS_LOG_LEVEL") })

	cfg, err := Load(Options{File: file, DotEnv: dotenv})
	require.NoError(t, err)

	assert.Equal(t, src, cfg.Source.Folder)
	assert.Equal(t, "/srv/errors", cfg.Source.ErrorsDir)
	assert.Equal(t, filepath.Join(src, "Processados"), cfg.Source.ProcessedDir)
	assert.Equal(t, ProtocolDIMSE, cfg.Registry.Protocol)
	assert.Equal(t, "pacs:104", cfg.Registry.Address)
	assert.Equal(t, "PACS", cfg.Registry.CalledAE)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.WatchDebounce)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "absent.toml")})
	require.Error(t, err)
	assert.NotEmpty(t, errors.FlattenHints(err))
}

func TestBadSkipDupCheck(t *testing.T) {
	t.Setenv("PDF_SOURCE_FOLDER", t.TempDir())
	t.Setenv("SKIP_DUP_CHECK", "maybe")

	_, err := Load(Options{})
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "SKIP_DUP_CHECK", cfgErr.Key)
}

func validConfig() Config {
	return Config{
		Source:     SourceConfig{Folder: "/in"},
		Registry:   RegistryConfig{Protocol: ProtocolOrthanc, URL: "http://pacs:8042"},
		Retry:      RetryConfig{MaxAttempts: 3, BackoffBase: 1.5},
		Pipeline:   PipelineConfig{Workers: 2},
		Integrity:  IntegrityConfig{MinBytes: 64, MaxFileMB: 50},
		Identity:   IdentityConfig{CenturyBuffer: 1},
		Validation: ValidationConfig{MinYear: 1900, MaxFutureDays: 1},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"valid", func(*Config) {}, ""},
		{"no source", func(c *Config) { c.Source.Folder = "" }, "source.folder"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"shrinking backoff", func(c *Config) { c.Retry.BackoffBase = 0.5 }, "retry.backoff_base"},
		{"negative max delay", func(c *Config) { c.Retry.MaxDelay = -time.Second }, "retry.max_delay"},
		{"zero max size", func(c *Config) { c.Integrity.MaxFileMB = 0 }, "integrity.max_file_mb"},
		{"bad pattern", func(c *Config) { c.Identity.FilenamePattern = "(?P<date>" }, "identity.filename_pattern"},
		{"bad century buffer", func(c *Config) { c.Identity.CenturyBuffer = 100 }, "identity.century_buffer"},
		{"unknown protocol", func(c *Config) { c.Registry.Protocol = "ftp" }, "registry.protocol"},
		{"orthanc without url", func(c *Config) { c.Registry.URL = "" }, "registry.url"},
		{"dimse without address", func(c *Config) { c.Registry.Protocol = ProtocolDIMSE }, "registry.address"},
		{"negative rate", func(c *Config) { c.Registry.RateLimit = -1 }, "registry.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.key == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}
