package dicom

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/types"
)

// VR (Value Representation) constants
const (
	VR_AE = "AE" // Application Entity
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SQ = "SQ" // Sequence of Items
	VR_ST = "ST" // Short Text
	VR_TM = "TM" // Time
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
)

// Explicit VR elements with these VRs use a 2-byte reserved field and a 4-byte length
var longVRs = map[string]bool{
	"OB": true, "OD": true, "OF": true, "OL": true, "OV": true, "OW": true,
	"SQ": true, "SV": true, "UC": true, "UN": true, "UR": true, "UT": true, "UV": true,
}

// Common transfer syntax UIDs
const (
	TransferSyntaxImplicitVRLittleEndian = types.ImplicitVRLittleEndian
	TransferSyntaxExplicitVRLittleEndian = types.ExplicitVRLittleEndian
)

const maxShortLength = 0xFFFF

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

func (t Tag) less(o Tag) bool {
	if t.Group != o.Group {
		return t.Group < o.Group
	}
	return t.Element < o.Element
}

// Element represents a DICOM data element. Value holds a string, []string,
// []byte, uint16 or uint32.
type Element struct {
	Tag   Tag
	VR    string
	Value interface{}
}

// Dataset represents a collection of DICOM elements
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Elements: make(map[Tag]*Element),
	}
}

// AddElement adds an element to the dataset, replacing any element with the same tag
func (d *Dataset) AddElement(tag Tag, vr string, value interface{}) {
	d.Elements[tag] = &Element{
		Tag:   tag,
		VR:    vr,
		Value: value,
	}
}

// GetElement returns an element by tag
func (d *Dataset) GetElement(tag Tag) (*Element, bool) {
	element, exists := d.Elements[tag]
	return element, exists
}

// GetString returns a string value for a tag
func (d *Dataset) GetString(tag Tag) string {
	if element, exists := d.Elements[tag]; exists {
		switch v := element.Value.(type) {
		case string:
			return strings.TrimSpace(v)
		case []string:
			return strings.Join(v, "\\")
		}
	}
	return ""
}

// GetBytes returns the raw value of a binary element
func (d *Dataset) GetBytes(tag Tag) []byte {
	if element, exists := d.Elements[tag]; exists {
		if b, ok := element.Value.([]byte); ok {
			return b
		}
	}
	return nil
}

// GetUint32 returns the value of a UL element
func (d *Dataset) GetUint32(tag Tag) (uint32, bool) {
	if element, exists := d.Elements[tag]; exists {
		if v, ok := element.Value.(uint32); ok {
			return v, true
		}
	}
	return 0, false
}

// Len returns the number of elements
func (d *Dataset) Len() int {
	return len(d.Elements)
}

// Tags returns the dataset's tags in ascending order
func (d *Dataset) Tags() []Tag {
	tags := make([]Tag, 0, len(d.Elements))
	for tag := range d.Elements {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].less(tags[j]) })
	return tags
}

// Encode encodes the dataset with the given transfer syntax. An empty
// transfer syntax means Explicit VR Little Endian.
func (d *Dataset) Encode(transferSyntaxUID string) ([]byte, error) {
	switch transferSyntaxUID {
	case "", TransferSyntaxExplicitVRLittleEndian:
		return d.encode(true)
	case TransferSyntaxImplicitVRLittleEndian:
		return d.encode(false)
	default:
		return nil, errors.Newf("unsupported transfer syntax %s", transferSyntaxUID)
	}
}

func (d *Dataset) encode(explicit bool) ([]byte, error) {
	var result []byte

	for _, tag := range d.Tags() {
		element := d.Elements[tag]

		valueBytes, err := encodeElementValue(element)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", tag)
		}
		if len(valueBytes)%2 == 1 {
			valueBytes = append(valueBytes, paddingByte(element.VR))
		}

		result = binary.LittleEndian.AppendUint16(result, tag.Group)
		result = binary.LittleEndian.AppendUint16(result, tag.Element)

		switch {
		case !explicit:
			result = binary.LittleEndian.AppendUint32(result, uint32(len(valueBytes)))
		case longVRs[element.VR]:
			result = append(result, element.VR...)
			result = append(result, 0x00, 0x00)
			result = binary.LittleEndian.AppendUint32(result, uint32(len(valueBytes)))
		default:
			if len(valueBytes) > maxShortLength {
				return nil, errors.Newf("value of %s (%s) too long: %d bytes", tag, element.VR, len(valueBytes))
			}
			result = append(result, element.VR...)
			result = binary.LittleEndian.AppendUint16(result, uint16(len(valueBytes)))
		}

		result = append(result, valueBytes...)
	}

	return result, nil
}

// UI and binary values pad with NUL, text values with a space
func paddingByte(vr string) byte {
	switch vr {
	case VR_UI, VR_OB, VR_OW, VR_UN:
		return 0x00
	default:
		return 0x20
	}
}

func encodeElementValue(element *Element) ([]byte, error) {
	switch v := element.Value.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(strings.TrimRight(v, "\x00")), nil
	case []string:
		return []byte(strings.Join(v, "\\")), nil
	case []byte:
		return v, nil
	case int:
		return []byte(strconv.Itoa(v)), nil
	case uint16:
		return binary.LittleEndian.AppendUint16(nil, v), nil
	case uint32:
		return binary.LittleEndian.AppendUint32(nil, v), nil
	default:
		return nil, errors.Newf("unsupported value type %T", v)
	}
}

// ParseDataset parses a DICOM dataset with the given transfer syntax. An
// empty transfer syntax means Explicit VR Little Endian.
func ParseDataset(data []byte, transferSyntaxUID string) (*Dataset, error) {
	switch transferSyntaxUID {
	case "", TransferSyntaxExplicitVRLittleEndian:
		return parseExplicitVRDataset(data)
	case TransferSyntaxImplicitVRLittleEndian:
		return parseImplicitVRDataset(data)
	default:
		return nil, errors.Newf("unsupported transfer syntax %s", transferSyntaxUID)
	}
}

func parseExplicitVRDataset(data []byte) (*Dataset, error) {
	dataset := NewDataset()

	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, errors.Newf("truncated element header at offset %d", offset)
		}

		tag := Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		vr := string(data[offset+4 : offset+6])

		var length uint32
		var valueOffset int
		if longVRs[vr] {
			if offset+12 > len(data) {
				return nil, errors.Newf("truncated header of %s", tag)
			}
			length = binary.LittleEndian.Uint32(data[offset+8 : offset+12])
			valueOffset = offset + 12
		} else {
			length = uint32(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
			valueOffset = offset + 8
		}

		if length == 0xFFFFFFFF {
			return nil, errors.Newf("undefined length of %s not supported", tag)
		}
		end := valueOffset + int(length)
		if end > len(data) {
			return nil, errors.Newf("value of %s overruns dataset (%d > %d)", tag, end, len(data))
		}

		dataset.AddElement(tag, vr, parseElementValue(vr, data[valueOffset:end]))
		offset = end
	}

	return dataset, nil
}

func parseImplicitVRDataset(data []byte) (*Dataset, error) {
	dataset := NewDataset()

	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, errors.Newf("truncated element header at offset %d", offset)
		}

		tag := Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		valueOffset := offset + 8

		if length == 0xFFFFFFFF {
			return nil, errors.Newf("undefined length of %s not supported", tag)
		}
		end := valueOffset + int(length)
		if end > len(data) {
			return nil, errors.Newf("value of %s overruns dataset (%d > %d)", tag, end, len(data))
		}

		vr := LookupVR(tag)
		dataset.AddElement(tag, vr, parseElementValue(vr, data[valueOffset:end]))
		offset = end
	}

	return dataset, nil
}

func parseElementValue(vr string, data []byte) interface{} {
	switch vr {
	case VR_OB, VR_OW, VR_UN:
		value := make([]byte, len(data))
		copy(value, data)
		return value
	case VR_UL:
		if len(data) >= 4 {
			return binary.LittleEndian.Uint32(data)
		}
	case VR_US:
		if len(data) >= 2 {
			return binary.LittleEndian.Uint16(data)
		}
	}

	value := string(data)
	if idx := strings.IndexByte(value, 0); idx != -1 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}
