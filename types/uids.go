// Package types holds the DICOM identifiers and upper layer constants shared
// by the codec, the DIMSE client and the encapsulator.
package types

// ApplicationContextUID is the DICOM application context name
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// SOP classes negotiated by the registry client
const (
	VerificationSOPClass       = "1.2.840.10008.1.1"
	EncapsulatedPDFStorage     = "1.2.840.10008.5.1.4.1.1.104.1"
	StudyRootQueryRetrieveFind = "1.2.840.10008.5.1.4.1.2.2.1"
)

// Uncompressed transfer syntaxes
const (
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

// Implementation identity written into File Meta Information and the
// A-ASSOCIATE-RQ user information item.
const (
	ImplementationClassUID    = "2.25.186207263129372316430145226712357648551"
	ImplementationVersionName = "PDFPACS_1"
)

// MIMETypePDF is the Encapsulated Document MIME type
const MIMETypePDF = "application/pdf"

var uidNames = map[string]string{
	ApplicationContextUID:      "DICOM Application Context Name",
	VerificationSOPClass:       "Verification SOP Class",
	EncapsulatedPDFStorage:     "Encapsulated PDF Storage",
	StudyRootQueryRetrieveFind: "Study Root Query/Retrieve Information Model - FIND",
	ImplicitVRLittleEndian:     "Implicit VR Little Endian",
	ExplicitVRLittleEndian:     "Explicit VR Little Endian",
}

// UIDName returns a human-readable name for a well-known UID, or the UID
// itself when it is not known.
func UIDName(uid string) string {
	if name, ok := uidNames[uid]; ok {
		return name
	}
	return uid
}
