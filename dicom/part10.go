package dicom

import (
	"encoding/binary"
	"strings"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/types"
)

const (
	preambleLength = 128
	part10Prefix   = "DICM"
	headerLength   = preambleLength + len(part10Prefix)
)

// FileMeta describes the File Meta Information written ahead of a dataset.
type FileMeta struct {
	SOPClassUID       string
	SOPInstanceUID    string
	TransferSyntaxUID string
}

// WritePart10 encodes dataset as a DICOM Part 10 file:
//   - 128 byte zero preamble
//   - 4 byte "DICM" prefix
//   - File Meta Information (group 0x0002, always Explicit VR Little Endian)
//   - the dataset in meta.TransferSyntaxUID
func WritePart10(dataset *Dataset, meta FileMeta) ([]byte, error) {
	if meta.SOPClassUID == "" || meta.SOPInstanceUID == "" {
		return nil, errors.New("file meta requires SOP class and instance UIDs")
	}
	if meta.TransferSyntaxUID == "" {
		meta.TransferSyntaxUID = types.ExplicitVRLittleEndian
	}

	group := NewDataset()
	group.Set(TagFileMetaInformationVersion, []byte{0x00, 0x01})
	group.Set(TagMediaStorageSOPClassUID, meta.SOPClassUID)
	group.Set(TagMediaStorageSOPInstanceUID, meta.SOPInstanceUID)
	group.Set(TagTransferSyntaxUID, meta.TransferSyntaxUID)
	group.Set(TagImplementationClassUID, types.ImplementationClassUID)
	group.Set(TagImplementationVersionName, types.ImplementationVersionName)

	groupBytes, err := group.Encode(TransferSyntaxExplicitVRLittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "encode file meta information")
	}

	body, err := dataset.Encode(meta.TransferSyntaxUID)
	if err != nil {
		return nil, errors.Wrap(err, "encode dataset")
	}

	lengthElement := NewDataset()
	lengthElement.Set(TagFileMetaInformationGroupLength, uint32(len(groupBytes)))
	lengthBytes, err := lengthElement.Encode(TransferSyntaxExplicitVRLittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "encode group length")
	}

	out := make([]byte, preambleLength, headerLength+len(lengthBytes)+len(groupBytes)+len(body))
	out = append(out, part10Prefix...)
	out = append(out, lengthBytes...)
	out = append(out, groupBytes...)
	out = append(out, body...)
	return out, nil
}

// StripPart10Header removes the DICOM Part 10 preamble and File Meta
// Information and returns the dataset bytes together with the transfer
// syntax declared in the meta group.
//
// C-STORE sends only the dataset, without the Part 10 wrapper.
func StripPart10Header(data []byte) ([]byte, string, error) {
	if len(data) < headerLength {
		return nil, "", errors.Newf("data too short to be DICOM Part 10 (need at least %d bytes, got %d)", headerLength, len(data))
	}
	if !HasPart10Header(data) {
		return nil, "", errors.New("not a valid DICOM Part 10 file (missing DICM prefix at offset 128)")
	}

	offset := headerLength
	var transferSyntaxUID string

	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		if group != 0x0002 {
			break
		}

		vr := string(data[offset+4 : offset+6])
		var length int
		if longVRs[vr] {
			if offset+12 > len(data) {
				return nil, "", errors.New("truncated file meta information")
			}
			length = int(binary.LittleEndian.Uint32(data[offset+8 : offset+12]))
			offset += 12
		} else {
			length = int(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
			offset += 8
		}
		if offset+length > len(data) {
			return nil, "", errors.New("truncated file meta information")
		}

		if element == TagTransferSyntaxUID.Element {
			transferSyntaxUID = strings.TrimRight(string(data[offset:offset+length]), "\x00 ")
		}
		offset += length
	}

	if offset >= len(data) {
		return nil, "", errors.New("failed to find dataset after File Meta Information")
	}

	return data[offset:], transferSyntaxUID, nil
}

// ReadPart10 parses a Part 10 file into its dataset
func ReadPart10(data []byte) (*Dataset, string, error) {
	body, transferSyntaxUID, err := StripPart10Header(data)
	if err != nil {
		return nil, "", err
	}
	dataset, err := ParseDataset(body, transferSyntaxUID)
	if err != nil {
		return nil, "", errors.Wrap(err, "parse dataset")
	}
	return dataset, transferSyntaxUID, nil
}

// HasPart10Header checks if the data starts with a DICOM Part 10 header.
//
// Returns true if the data contains the 128-byte preamble followed by "DICM".
func HasPart10Header(data []byte) bool {
	if len(data) < headerLength {
		return false
	}
	return string(data[preambleLength:headerLength]) == part10Prefix
}
