// Package encapsulate wraps source PDFs into DICOM Encapsulated PDF objects.
package encapsulate

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/caio-sobreiro/pdfpacs/dicom"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/identity"
	"github.com/caio-sobreiro/pdfpacs/types"
)

// Defaults
const (
	DefaultModality           = "ECG"
	DefaultStudyDescription   = "ELETROCARDIOGRAMA"
	DefaultInstitution        = "HOSPITAL MUNICIPAL SAO JOSE"
	DefaultReferringPhysician = "AUTOMATIZADO"
)

// Options holds the descriptive tags that come from configuration
type Options struct {
	Institution        string
	ReferringPhysician string
	StudyDescription   string
	Modality           string
	Manufacturer       string
	Now                func() time.Time
	NewUID             func() string
}

// Encapsulator builds Documents. It is safe for concurrent use.
type Encapsulator struct {
	opts Options
}

// New returns an Encapsulator; empty options take the defaults
func New(opts Options) *Encapsulator {
	if opts.Modality == "" {
		opts.Modality = DefaultModality
	}
	if opts.StudyDescription == "" {
		opts.StudyDescription = DefaultStudyDescription
	}
	if opts.Institution == "" {
		opts.Institution = DefaultInstitution
	}
	if opts.ReferringPhysician == "" {
		opts.ReferringPhysician = DefaultReferringPhysician
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewUID == nil {
		opts.NewUID = dicom.NewUID
	}
	return &Encapsulator{opts: opts}
}

// Document is an Encapsulated PDF object ready for transmission
type Document struct {
	Dataset           *dicom.Dataset
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	// Payload is the original PDF, shared with the dataset, never modified
	Payload []byte
}

// Wrap builds a Document for id with content as the encapsulated payload.
// Study, series and instance UIDs are new on every call.
func (e *Encapsulator) Wrap(id *identity.CanonicalIdentity, filename string, content []byte) (*Document, error) {
	if id == nil {
		return nil, errors.New("encapsulate: identity is required")
	}
	if len(content) == 0 {
		return nil, errors.New("encapsulate: empty payload")
	}

	now := e.opts.Now()
	studyDate := id.DICOMDate()
	contentTime := now.Format("150405")

	doc := &Document{
		Dataset:           dicom.NewDataset(),
		StudyInstanceUID:  e.opts.NewUID(),
		SeriesInstanceUID: e.opts.NewUID(),
		SOPInstanceUID:    e.opts.NewUID(),
		Payload:           content,
	}

	ds := doc.Dataset
	ds.Set(dicom.TagSpecificCharacterSet, "ISO_IR 100")
	ds.Set(dicom.TagInstanceCreationDate, now.Format("20060102"))
	ds.Set(dicom.TagInstanceCreationTime, contentTime)
	ds.Set(dicom.TagSOPClassUID, types.EncapsulatedPDFStorage)
	ds.Set(dicom.TagSOPInstanceUID, doc.SOPInstanceUID)
	ds.Set(dicom.TagStudyDate, studyDate)
	ds.Set(dicom.TagSeriesDate, studyDate)
	ds.Set(dicom.TagContentDate, studyDate)
	ds.Set(dicom.TagStudyTime, contentTime)
	ds.Set(dicom.TagSeriesTime, contentTime)
	ds.Set(dicom.TagContentTime, contentTime)
	ds.Set(dicom.TagAccessionNumber, id.Accession)
	ds.Set(dicom.TagModality, e.opts.Modality)
	ds.Set(dicom.TagConversionType, "WSD")
	if e.opts.Manufacturer != "" {
		ds.Set(dicom.TagManufacturer, e.opts.Manufacturer)
	}
	ds.Set(dicom.TagInstitutionName, e.opts.Institution)
	ds.Set(dicom.TagReferringPhysicianName, e.opts.ReferringPhysician)
	ds.Set(dicom.TagStudyDescription, e.opts.StudyDescription)
	ds.Set(dicom.TagSeriesDescription, e.opts.StudyDescription+" - PDF")
	ds.Set(dicom.TagPatientName, id.RegistryName)
	ds.Set(dicom.TagPatientID, id.PatientID)
	ds.Set(dicom.TagPatientBirthDate, "")
	ds.Set(dicom.TagPatientSex, "")
	ds.Set(dicom.TagStudyInstanceUID, doc.StudyInstanceUID)
	ds.Set(dicom.TagSeriesInstanceUID, doc.SeriesInstanceUID)
	ds.Set(dicom.TagStudyID, studyID(id))
	ds.Set(dicom.TagSeriesNumber, "1")
	ds.Set(dicom.TagInstanceNumber, "1")
	ds.Set(dicom.TagBurnedInAnnotation, "YES")
	ds.Set(dicom.TagDocumentTitle, documentTitle(filename))
	ds.Set(dicom.TagMIMETypeOfEncapsulatedDoc, types.MIMETypePDF)
	ds.Set(dicom.TagEncapsulatedDocument, content)
	ds.Set(dicom.TagEncapsulatedDocumentLength, uint32(len(content)))

	return doc, nil
}

// Study ID is SH (16 chars); the accession is used when it fits
func studyID(id *identity.CanonicalIdentity) string {
	if id.Accession != "" && len(id.Accession) <= 16 {
		return id.Accession
	}
	return "1"
}

// Document Title is ST; the file name without extension, capped at 1024 chars
func documentTitle(filename string) string {
	base := filepath.Base(filename)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if len(title) > 1024 {
		title = title[:1024]
	}
	return title
}

// DatasetBytes encodes the dataset alone, as C-STORE sends it
func (d *Document) DatasetBytes(transferSyntaxUID string) ([]byte, error) {
	data, err := d.Dataset.Encode(transferSyntaxUID)
	if err != nil {
		return nil, errors.Wrap(err, "encode encapsulated document")
	}
	return data, nil
}

// Part10 encodes the document as a DICOM file in Explicit VR Little Endian
func (d *Document) Part10() ([]byte, error) {
	data, err := dicom.WritePart10(d.Dataset, dicom.FileMeta{
		SOPClassUID:       types.EncapsulatedPDFStorage,
		SOPInstanceUID:    d.SOPInstanceUID,
		TransferSyntaxUID: types.ExplicitVRLittleEndian,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode encapsulated document")
	}
	return data, nil
}
