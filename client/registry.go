package client

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caio-sobreiro/pdfpacs/dicom"
	"github.com/caio-sobreiro/pdfpacs/encapsulate"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/interfaces"
	"github.com/caio-sobreiro/pdfpacs/types"
)

// Registry talks to a PACS over DIMSE. Each operation opens its own
// association, so one Registry can be shared by concurrent workers.
type Registry struct {
	address string
	config  Config
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

var _ interfaces.Registry = (*Registry)(nil)

// NewRegistry returns a DIMSE registry for address (host:port). limiter may
// be nil.
func NewRegistry(address string, config Config, limiter *rate.Limiter) *Registry {
	cfg := config.withDefaults()
	return &Registry{
		address: address,
		config:  cfg,
		limiter: limiter,
		logger:  cfg.Logger.Named("dimse"),
	}
}

func (r *Registry) open(ctx context.Context) (*Association, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "wait for request slot")
		}
	}
	return Connect(ctx, r.address, r.config)
}

// Ping sends a C-ECHO
func (r *Registry) Ping(ctx context.Context) (string, error) {
	assoc, err := r.open(ctx)
	if err != nil {
		return "", err
	}
	defer assoc.Close()

	if _, err := assoc.SendCEcho(ctx); err != nil {
		return "", err
	}
	return "DICOM " + r.config.CalledAETitle + "@" + r.address, nil
}

// FindStudies runs a Study Root C-FIND at STUDY level. Match ids are Study
// Instance UIDs.
func (r *Registry) FindStudies(ctx context.Context, q interfaces.StudyQuery) ([]interfaces.StudyMatch, error) {
	assoc, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer assoc.Close()

	identifiers, err := assoc.SendCFind(ctx, studyQueryDataset(q))
	if err != nil {
		return nil, err
	}

	matches := make([]interfaces.StudyMatch, 0, len(identifiers))
	for _, ds := range identifiers {
		uid := ds.GetString(dicom.TagStudyInstanceUID)
		matches = append(matches, interfaces.StudyMatch{ID: uid, StudyInstanceUID: uid})
	}
	return matches, nil
}

func studyQueryDataset(q interfaces.StudyQuery) *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.Set(dicom.TagQueryRetrieveLevel, "STUDY")
	ds.Set(dicom.TagStudyInstanceUID, "")
	ds.Set(dicom.TagAccessionNumber, q.AccessionNumber)
	ds.Set(dicom.TagPatientID, q.PatientID)
	ds.Set(dicom.TagPatientName, q.PatientName)
	ds.Set(dicom.TagStudyDate, q.StudyDate)
	return ds
}

// StoreInstance sends doc with C-STORE. The returned id is the SOP Instance
// UID.
func (r *Registry) StoreInstance(ctx context.Context, doc *encapsulate.Document) (interfaces.StoredInstance, error) {
	assoc, err := r.open(ctx)
	if err != nil {
		return interfaces.StoredInstance{}, err
	}

	_, err = assoc.SendCStore(ctx, &CStoreRequest{
		SOPClassUID:    types.EncapsulatedPDFStorage,
		SOPInstanceUID: doc.SOPInstanceUID,
		Encode:         doc.DatasetBytes,
	})
	if err != nil {
		var abort *errors.AbortError
		if errors.As(err, &abort) {
			assoc.conn.Close()
		} else {
			assoc.Close()
		}
		return interfaces.StoredInstance{}, err
	}
	assoc.Close()

	return interfaces.StoredInstance{ID: doc.SOPInstanceUID}, nil
}
