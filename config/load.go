package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// EnvPrefix prefixes every key in the environment: source.folder is
// PDFPACS_SOURCE_FOLDER.
const EnvPrefix = "PDFPACS"

// legacyEnv maps the historical variable names onto keys
var legacyEnv = map[string]string{
	"registry.url":                 "ORTHANC_URL",
	"registry.username":            "ORTHANC_USER",
	"registry.password":            "ORTHANC_PASSWORD",
	"source.folder":                "PDF_SOURCE_FOLDER",
	"source.date_folders":          "CREATE_DATE_FOLDERS",
	"pipeline.workers":             "MAX_WORKERS",
	"retry.max_attempts":           "MAX_RETRIES",
	"retry.backoff_base":           "BACKOFF_BASE_SEC",
	"integrity.max_file_mb":        "MAX_FILE_MB",
	"document.institution":         "INSTITUTION_NAME",
	"document.referring_physician": "REFERRING_PHYSICIAN",
	"document.study_description":   "EXAM_TYPE",
	"document.modality":            "EXAM_MODALITY",
	"identity.filename_pattern":    "FILENAME_REGEX_PATTERN",
	"log.file":                     "PDFFLOW_LOG",
}

// skipDupEnv inverts duplicates.enabled
const skipDupEnv = "SKIP_DUP_CHECK"

// Options locates the optional files
type Options struct {
	// File is a toml, yaml or json config file
	File string
	// DotEnv is loaded into the environment when it exists; variables
	// already set win
	DotEnv string
}

// SetDefaults registers every key with its default
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.folder", "/mnt/ecg")
	v.SetDefault("source.date_folders", true)
	v.SetDefault("source.processed_dir", "Processados")
	v.SetDefault("source.duplicates_dir", "Duplicatas")
	v.SetDefault("source.errors_dir", "Erros")

	v.SetDefault("registry.protocol", ProtocolOrthanc)
	v.SetDefault("registry.url", "http://localhost:8042")
	v.SetDefault("registry.username", "")
	v.SetDefault("registry.password", "")
	v.SetDefault("registry.timeout", "30s")
	v.SetDefault("registry.rate_limit", 0.0)
	v.SetDefault("registry.burst", 4)
	v.SetDefault("registry.ping", true)
	v.SetDefault("registry.address", "localhost:4242")
	v.SetDefault("registry.calling_ae", "PDFPACS")
	v.SetDefault("registry.called_ae", "ORTHANC")

	v.SetDefault("duplicates.enabled", true)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_base", 1.5)
	v.SetDefault("retry.jitter", false)
	v.SetDefault("retry.max_delay", "60s")

	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.watch_debounce", "2s")
	v.SetDefault("pipeline.rescan_interval", "0s")

	v.SetDefault("integrity.min_bytes", 64)
	v.SetDefault("integrity.max_file_mb", 50.0)
	v.SetDefault("integrity.trailer_window", 1024)

	v.SetDefault("identity.filename_pattern", "")
	v.SetDefault("identity.century_buffer", 1)

	v.SetDefault("validation.min_year", 1900)
	v.SetDefault("validation.max_future_days", 1)

	v.SetDefault("document.institution", "HOSPITAL MUNICIPAL SAO JOSE")
	v.SetDefault("document.referring_physician", "AUTOMATIZADO")
	v.SetDefault("document.study_description", "ELETROCARDIOGRAMA")
	v.SetDefault("document.modality", "ECG")
	v.SetDefault("document.manufacturer", "pdfpacs")

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", "pdfpacs.db")
}

// BindEnv binds PDFPACS_<SECTION>_<KEY> for every key and the historical
// names as fallbacks
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		primary := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return errors.Wrapf(err, "bind %s", key)
		}
	}
	return nil
}

// Load builds the configuration and validates it
func Load(opts Options) (Config, error) {
	if opts.DotEnv != "" {
		if _, err := os.Stat(opts.DotEnv); err == nil {
			if err := godotenv.Load(opts.DotEnv); err != nil {
				return Config{}, errors.Wrapf(err, "load %s", opts.DotEnv)
			}
		}
	}

	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return Config{}, err
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.WithHint(errors.Wrapf(err, "read config file %s", opts.File),
				"supported formats are toml, yaml and json")
		}
	}

	if raw, ok := os.LookupEnv(skipDupEnv); ok && os.Getenv(EnvPrefix+"_DUPLICATES_ENABLED") == "" {
		skip, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, newErrorf(skipDupEnv, "must be true or false, got %q", raw)
		}
		v.Set("duplicates.enabled", !skip)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
