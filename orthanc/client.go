// Package orthanc is the REST backend for an Orthanc server.
package orthanc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caio-sobreiro/pdfpacs/encapsulate"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/interfaces"
)

// DefaultTimeout bounds requests other than uploads
const DefaultTimeout = 30 * time.Second

// Config holds connection settings
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8042
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	// Limiter, when set, is waited on before every request
	Limiter    *rate.Limiter
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
}

// Client implements interfaces.Registry over the Orthanc REST API. It is
// safe for concurrent use.
type Client struct {
	base     string
	username string
	password string
	timeout  time.Duration
	limiter  *rate.Limiter
	http     *http.Client
	logger   *zap.SugaredLogger
}

var _ interfaces.Registry = (*Client)(nil)

// New returns a client for cfg
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("orthanc: base URL required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, errors.WithHint(errors.Newf("orthanc: base URL %q has no scheme", base),
			"use http://host:8042")
	}

	c := &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
		limiter:  cfg.Limiter,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	c.logger = c.logger.Named("orthanc")
	return c, nil
}

type findRequest struct {
	Level  string            `json:"Level"`
	Query  map[string]string `json:"Query"`
	Expand bool              `json:"Expand"`
}

type studyResource struct {
	ID            string `json:"ID"`
	MainDicomTags struct {
		StudyInstanceUID string `json:"StudyInstanceUID"`
	} `json:"MainDicomTags"`
}

type storeResponse struct {
	ID          string `json:"ID"`
	Status      string `json:"Status"`
	ParentStudy string `json:"ParentStudy"`
}

type systemResponse struct {
	Name    string `json:"Name"`
	Version string `json:"Version"`
}

// Ping reads /system and returns the server version
func (c *Client) Ping(ctx context.Context) (string, error) {
	var sys systemResponse
	if err := c.do(ctx, http.MethodGet, "/system", "", nil, c.timeout, &sys); err != nil {
		return "", err
	}
	if sys.Name != "" {
		return "Orthanc " + sys.Version + " (" + sys.Name + ")", nil
	}
	return "Orthanc " + sys.Version, nil
}

// FindStudies posts a study-level query to /tools/find. Empty keys are
// not sent.
func (c *Client) FindStudies(ctx context.Context, q interfaces.StudyQuery) ([]interfaces.StudyMatch, error) {
	query := make(map[string]string, 4)
	if q.AccessionNumber != "" {
		query["AccessionNumber"] = q.AccessionNumber
	}
	if q.PatientID != "" {
		query["PatientID"] = q.PatientID
	}
	if q.PatientName != "" {
		query["PatientName"] = q.PatientName
	}
	if q.StudyDate != "" {
		query["StudyDate"] = q.StudyDate
	}
	if len(query) == 0 {
		return nil, errors.New("orthanc: empty study query")
	}

	body, err := json.Marshal(findRequest{Level: "Study", Query: query, Expand: true})
	if err != nil {
		return nil, errors.Wrap(err, "encode find request")
	}

	var studies []studyResource
	if err := c.do(ctx, http.MethodPost, "/tools/find", "application/json", body, c.timeout, &studies); err != nil {
		return nil, err
	}

	matches := make([]interfaces.StudyMatch, 0, len(studies))
	for _, s := range studies {
		matches = append(matches, interfaces.StudyMatch{ID: s.ID, StudyInstanceUID: s.MainDicomTags.StudyInstanceUID})
	}
	return matches, nil
}

// StoreInstance posts the Part 10 encoding of doc to /instances. An
// AlreadyStored answer is a success carrying the existing id.
func (c *Client) StoreInstance(ctx context.Context, doc *encapsulate.Document) (interfaces.StoredInstance, error) {
	data, err := doc.Part10()
	if err != nil {
		return interfaces.StoredInstance{}, err
	}

	var resp storeResponse
	if err := c.do(ctx, http.MethodPost, "/instances", "application/dicom", data, uploadTimeout(len(data)), &resp); err != nil {
		return interfaces.StoredInstance{}, err
	}
	if resp.ID == "" {
		return interfaces.StoredInstance{}, errors.Wrap(errors.ErrInvalidMessage, "orthanc: store answer has no instance ID")
	}

	return interfaces.StoredInstance{
		ID:            resp.ID,
		AlreadyStored: resp.Status == "AlreadyStored",
	}, nil
}

// uploadTimeout grows with the payload: 60s, or 15s plus 1.5s per MiB
func uploadTimeout(size int) time.Duration {
	mib := float64(size) / (1 << 20)
	d := time.Duration((15 + mib*1.5) * float64(time.Second))
	if d < 60*time.Second {
		return 60 * time.Second
	}
	return d
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, timeout time.Duration, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "wait for request slot")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	c.logger.Debugw("Registry request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.NewStatusError(method+" "+path, resp.StatusCode, string(text))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(errors.Mark(err, errors.ErrInvalidMessage), "decode %s %s", method, path)
	}
	return nil
}
