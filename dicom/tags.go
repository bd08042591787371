package dicom

// File Meta Information
var (
	TagFileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	TagFileMetaInformationVersion     = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID              = Tag{0x0002, 0x0010}
	TagImplementationClassUID         = Tag{0x0002, 0x0012}
	TagImplementationVersionName      = Tag{0x0002, 0x0013}
)

// General study, series and document attributes
var (
	TagSpecificCharacterSet       = Tag{0x0008, 0x0005}
	TagInstanceCreationDate       = Tag{0x0008, 0x0012}
	TagInstanceCreationTime       = Tag{0x0008, 0x0013}
	TagSOPClassUID                = Tag{0x0008, 0x0016}
	TagSOPInstanceUID             = Tag{0x0008, 0x0018}
	TagStudyDate                  = Tag{0x0008, 0x0020}
	TagSeriesDate                 = Tag{0x0008, 0x0021}
	TagContentDate                = Tag{0x0008, 0x0023}
	TagStudyTime                  = Tag{0x0008, 0x0030}
	TagSeriesTime                 = Tag{0x0008, 0x0031}
	TagContentTime                = Tag{0x0008, 0x0033}
	TagAccessionNumber            = Tag{0x0008, 0x0050}
	TagQueryRetrieveLevel         = Tag{0x0008, 0x0052}
	TagModality                   = Tag{0x0008, 0x0060}
	TagConversionType             = Tag{0x0008, 0x0064}
	TagManufacturer               = Tag{0x0008, 0x0070}
	TagInstitutionName            = Tag{0x0008, 0x0080}
	TagReferringPhysicianName     = Tag{0x0008, 0x0090}
	TagStudyDescription           = Tag{0x0008, 0x1030}
	TagSeriesDescription          = Tag{0x0008, 0x103E}
	TagPatientName                = Tag{0x0010, 0x0010}
	TagPatientID                  = Tag{0x0010, 0x0020}
	TagPatientBirthDate           = Tag{0x0010, 0x0030}
	TagPatientSex                 = Tag{0x0010, 0x0040}
	TagStudyInstanceUID           = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID          = Tag{0x0020, 0x000E}
	TagStudyID                    = Tag{0x0020, 0x0010}
	TagSeriesNumber               = Tag{0x0020, 0x0011}
	TagInstanceNumber             = Tag{0x0020, 0x0013}
	TagBurnedInAnnotation         = Tag{0x0028, 0x0301}
	TagDocumentTitle              = Tag{0x0042, 0x0010}
	TagEncapsulatedDocument       = Tag{0x0042, 0x0011}
	TagMIMETypeOfEncapsulatedDoc  = Tag{0x0042, 0x0012}
	TagEncapsulatedDocumentLength = Tag{0x0042, 0x0015}
)

var dictionary = map[Tag]string{
	TagFileMetaInformationGroupLength: VR_UL,
	TagFileMetaInformationVersion:     VR_OB,
	TagMediaStorageSOPClassUID:        VR_UI,
	TagMediaStorageSOPInstanceUID:     VR_UI,
	TagTransferSyntaxUID:              VR_UI,
	TagImplementationClassUID:         VR_UI,
	TagImplementationVersionName:      VR_SH,
	TagSpecificCharacterSet:           VR_CS,
	TagInstanceCreationDate:           VR_DA,
	TagInstanceCreationTime:           VR_TM,
	TagSOPClassUID:                    VR_UI,
	TagSOPInstanceUID:                 VR_UI,
	TagStudyDate:                      VR_DA,
	TagSeriesDate:                     VR_DA,
	TagContentDate:                    VR_DA,
	TagStudyTime:                      VR_TM,
	TagSeriesTime:                     VR_TM,
	TagContentTime:                    VR_TM,
	TagAccessionNumber:                VR_SH,
	TagQueryRetrieveLevel:             VR_CS,
	TagModality:                       VR_CS,
	TagConversionType:                 VR_CS,
	TagManufacturer:                   VR_LO,
	TagInstitutionName:                VR_LO,
	TagReferringPhysicianName:         VR_PN,
	TagStudyDescription:               VR_LO,
	TagSeriesDescription:              VR_LO,
	TagPatientName:                    VR_PN,
	TagPatientID:                      VR_LO,
	TagPatientBirthDate:               VR_DA,
	TagPatientSex:                     VR_CS,
	TagStudyInstanceUID:               VR_UI,
	TagSeriesInstanceUID:              VR_UI,
	TagStudyID:                        VR_SH,
	TagSeriesNumber:                   VR_IS,
	TagInstanceNumber:                 VR_IS,
	TagBurnedInAnnotation:             VR_CS,
	TagDocumentTitle:                  VR_ST,
	TagEncapsulatedDocument:           VR_OB,
	TagMIMETypeOfEncapsulatedDoc:      VR_LO,
	TagEncapsulatedDocumentLength:     VR_UL,
}

// LookupVR returns the VR of a known tag, or UN
func LookupVR(tag Tag) string {
	if vr, ok := dictionary[tag]; ok {
		return vr
	}
	return VR_UN
}

// Set adds an element whose VR comes from the dictionary
func (d *Dataset) Set(tag Tag, value interface{}) {
	d.AddElement(tag, LookupVR(tag), value)
}
