package orthanc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/caio-sobreiro/pdfpacs/dicom"
	"github.com/caio-sobreiro/pdfpacs/encapsulate"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/identity"
	"github.com/caio-sobreiro/pdfpacs/interfaces"
	"github.com/caio-sobreiro/pdfpacs/internal/orthanctest"
)

func newDocument(t *testing.T) *encapsulate.Document {
	t.Helper()
	doc, err := encapsulate.New(encapsulate.Options{}).Wrap(&identity.CanonicalIdentity{
		PatientID:    "12345",
		NameParts:    []string{"SILVA", "JOAO"},
		RegistryName: "SILVA^JOAO",
		NaturalName:  "SILVA JOAO",
		StudyDate:    time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC),
		Accession:    "98765",
	}, "12345_SILVA_JOAO_07092025_98765.pdf", []byte("%PDF-1.4\nbody\n%%EOF\n"))
	require.NoError(t, err)
	return doc
}

func newClient(t *testing.T, srv *orthanctest.Server, user, pass string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL + "/", Username: user, Password: pass})
	require.NoError(t, err)
	return c
}

func TestNewValidatesURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "localhost:8042"})
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "http://")
}

func TestPing(t *testing.T) {
	srv := orthanctest.New("orthanc", "secret")
	defer srv.Close()

	version, err := newClient(t, srv, "orthanc", "secret").Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Orthanc 1.12.5 (FAKE)", version)
}

func TestPingBadCredentials(t *testing.T) {
	srv := orthanctest.New("orthanc", "secret")
	defer srv.Close()

	_, err := newClient(t, srv, "orthanc", "wrong").Ping(context.Background())
	require.Error(t, err)

	var statusErr *errors.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, errors.ClassAuth, errors.Classify(err))
}

func TestFindStudies(t *testing.T) {
	srv := orthanctest.New("", "")
	defer srv.Close()
	srv.AddStudy(orthanctest.Study{
		ID:               "abc",
		StudyInstanceUID: "1.2.3",
		PatientID:        "12345",
		StudyDate:        "20250907",
	})

	c := newClient(t, srv, "", "")

	matches, err := c.FindStudies(context.Background(), interfaces.StudyQuery{PatientID: "12345", StudyDate: "20250907"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "abc", matches[0].ID)
	assert.Equal(t, "1.2.3", matches[0].StudyInstanceUID)

	matches, err = c.FindStudies(context.Background(), interfaces.StudyQuery{AccessionNumber: "00000"})
	require.NoError(t, err)
	assert.Empty(t, matches)

	queries := srv.Queries()
	require.Len(t, queries, 2)
	assert.Equal(t, map[string]string{"PatientID": "12345", "StudyDate": "20250907"}, queries[0])
	assert.Equal(t, map[string]string{"AccessionNumber": "00000"}, queries[1])
}

func TestFindStudiesEmptyQuery(t *testing.T) {
	srv := orthanctest.New("", "")
	defer srv.Close()

	_, err := newClient(t, srv, "", "").FindStudies(context.Background(), interfaces.StudyQuery{})
	assert.Error(t, err)
	assert.Zero(t, srv.TotalCalls())
}

func TestStoreInstance(t *testing.T) {
	srv := orthanctest.New("", "")
	defer srv.Close()

	c := newClient(t, srv, "", "")
	doc := newDocument(t)

	stored, err := c.StoreInstance(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "instance-"+doc.SOPInstanceUID, stored.ID)
	assert.False(t, stored.AlreadyStored)

	data, ok := srv.Instance(doc.SOPInstanceUID)
	require.True(t, ok)
	ds, _, err := dicom.ReadPart10(data)
	require.NoError(t, err)
	assert.Equal(t, "98765", ds.GetString(dicom.TagAccessionNumber))

	again, err := c.StoreInstance(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, again.AlreadyStored)
	assert.Equal(t, stored.ID, again.ID)
	assert.Equal(t, 1, srv.InstanceCount())

	matches, err := c.FindStudies(context.Background(), interfaces.StudyQuery{AccessionNumber: "98765"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, doc.StudyInstanceUID, matches[0].StudyInstanceUID)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		class  errors.Class
	}{
		{http.StatusInternalServerError, errors.ClassServer},
		{http.StatusServiceUnavailable, errors.ClassServer},
		{http.StatusTooManyRequests, errors.ClassThrottled},
		{http.StatusForbidden, errors.ClassAuth},
		{http.StatusBadRequest, errors.ClassRejected},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := orthanctest.New("", "")
			defer srv.Close()
			srv.Fail(orthanctest.EndpointStore, tt.status, 1)

			_, err := newClient(t, srv, "", "").StoreInstance(context.Background(), newDocument(t))
			require.Error(t, err)
			assert.Equal(t, tt.class, errors.Classify(err))
			assert.Equal(t, tt.class.Retryable(), errors.Classify(err).Retryable())
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ClassTimeout, errors.Classify(err))
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	require.NoError(t, err)

	_, err = c.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ClassConnection, errors.Classify(err))
}

func TestLimiterCancelled(t *testing.T) {
	srv := orthanctest.New("", "")
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})
	require.NoError(t, err)

	_, err = c.Ping(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Ping(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, srv.Calls(orthanctest.EndpointSystem))
}

func TestUploadTimeout(t *testing.T) {
	assert.Equal(t, 60*time.Second, uploadTimeout(1<<20))
	assert.Equal(t, 90*time.Second, uploadTimeout(50<<20))
}
