package pipeline

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caio-sobreiro/pdfpacs/client"
	"github.com/caio-sobreiro/pdfpacs/config"
	"github.com/caio-sobreiro/pdfpacs/duplicate"
	"github.com/caio-sobreiro/pdfpacs/encapsulate"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/identity"
	"github.com/caio-sobreiro/pdfpacs/integrity"
	"github.com/caio-sobreiro/pdfpacs/interfaces"
	"github.com/caio-sobreiro/pdfpacs/ledger"
	"github.com/caio-sobreiro/pdfpacs/organizer"
	"github.com/caio-sobreiro/pdfpacs/orthanc"
	"github.com/caio-sobreiro/pdfpacs/retry"
	"github.com/caio-sobreiro/pdfpacs/upload"
)

// NewRegistry builds the registry client selected by cfg.Protocol. All
// workers share the returned value, its limiter and its connection pool.
func NewRegistry(cfg config.RegistryConfig, workers int, log *zap.SugaredLogger) (interfaces.Registry, error) {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	switch cfg.Protocol {
	case config.ProtocolOrthanc:
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConnsPerHost = workers * 2
		c, err := orthanc.New(orthanc.Config{
			BaseURL:    cfg.URL,
			Username:   cfg.Username,
			Password:   cfg.Password,
			Timeout:    cfg.Timeout,
			Limiter:    limiter,
			HTTPClient: &http.Client{Transport: transport},
			Logger:     log,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProtocolDIMSE:
		return client.NewRegistry(cfg.Address, client.Config{
			CallingAETitle: cfg.CallingAE,
			CalledAETitle:  cfg.CalledAE,
			ConnectTimeout: cfg.Timeout,
			ReadTimeout:    cfg.Timeout,
			WriteTimeout:   cfg.Timeout,
			Logger:         log,
		}, limiter), nil
	default:
		return nil, errors.Newf("unknown registry protocol %q", cfg.Protocol)
	}
}

// FromConfig wires every stage from cfg. The returned close function
// releases the ledger and must be called once the orchestrator is done.
func FromConfig(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*Orchestrator, func() error, error) {
	noop := func() error { return nil }

	registry, err := NewRegistry(cfg.Registry, cfg.Pipeline.Workers, log)
	if err != nil {
		return nil, noop, err
	}

	dates := identity.NewDateResolver(cfg.Identity.CenturyBuffer)
	parser, err := identity.NewParser(identity.ParserOptions{
		CustomPattern: cfg.Identity.FilenamePattern,
		Dates:         dates,
	})
	if err != nil {
		return nil, noop, err
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Base:        cfg.Retry.BackoffBase,
		Jitter:      cfg.Retry.Jitter,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	deps := Deps{
		Parser: parser,
		Validator: identity.NewValidator(identity.ValidatorOptions{
			MinYear:       cfg.Validation.MinYear,
			MaxFutureDays: cfg.Validation.MaxFutureDays,
		}),
		Integrity: integrity.NewChecker(integrity.Options{
			MinSize:       int64(cfg.Integrity.MinBytes),
			MaxSize:       cfg.Integrity.MaxBytes(),
			TrailerWindow: cfg.Integrity.TrailerWindow,
		}),
		Duplicates: duplicate.New(registry, duplicate.Options{
			Disabled: !cfg.Duplicates.Enabled,
			Policy:   policy,
			Logger:   log,
		}),
		Encapsulator: encapsulate.New(encapsulate.Options{
			Institution:        cfg.Document.Institution,
			ReferringPhysician: cfg.Document.ReferringPhysician,
			StudyDescription:   cfg.Document.StudyDescription,
			Modality:           cfg.Document.Modality,
			Manufacturer:       cfg.Document.Manufacturer,
		}),
		Uploader: upload.New(registry, retry.NewRunner(policy), log),
		Organizer: organizer.New(organizer.Options{
			ProcessedDir:  cfg.Source.ProcessedDir,
			DuplicatesDir: cfg.Source.DuplicatesDir,
			ErrorsDir:     cfg.Source.ErrorsDir,
			DatePartition: cfg.Source.DateFolders,
		}),
		Pinger: registry,
		Logger: log,
	}

	closer := noop
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(ctx, cfg.Ledger.Path)
		if err != nil {
			return nil, noop, err
		}
		deps.Journal = l
		closer = l.Close
	}

	o, err := New(deps, Options{
		Source:  cfg.Source.Folder,
		Workers: cfg.Pipeline.Workers,
		Ping:    cfg.Registry.Ping,
	})
	if err != nil {
		_ = closer()
		return nil, noop, err
	}
	return o, closer, nil
}
