// Package dimse implements the DIMSE command codec and the P-DATA-TF framing
// used to exchange commands and datasets over an established association.
package dimse

import (
	"encoding/binary"
	"strings"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/types"
)

// Command group elements
const (
	elemGroupLength               = 0x0000
	elemAffectedSOPClassUID       = 0x0002
	elemCommandField              = 0x0100
	elemMessageID                 = 0x0110
	elemMessageIDBeingRespondedTo = 0x0120
	elemPriority                  = 0x0700
	elemCommandDataSetType        = 0x0800
	elemStatus                    = 0x0900
	elemErrorComment              = 0x0902
	elemAffectedSOPInstanceUID    = 0x1000
)

// EncodeCommand encodes a DIMSE command message using Implicit VR Little Endian
func EncodeCommand(msg *types.Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.Wrap(errors.ErrInvalidMessage, "nil command")
	}

	buf := make([]byte, 0, 256)

	// Command Group Length is patched once the group is complete
	buf = appendImplicitElement(buf, elemGroupLength, make([]byte, 4))
	lengthPos := len(buf) - 4

	if msg.AffectedSOPClassUID != "" {
		buf = appendImplicitElement(buf, elemAffectedSOPClassUID, uidBytes(msg.AffectedSOPClassUID))
	}

	buf = appendImplicitElement(buf, elemCommandField, uint16Bytes(msg.CommandField))

	// responses carry MessageIDBeingRespondedTo instead
	if msg.CommandField&0x8000 == 0 {
		buf = appendImplicitElement(buf, elemMessageID, uint16Bytes(msg.MessageID))
	} else {
		buf = appendImplicitElement(buf, elemMessageIDBeingRespondedTo, uint16Bytes(msg.MessageIDBeingRespondedTo))
	}

	if msg.CommandField == types.CStoreRQ || msg.CommandField == types.CFindRQ {
		buf = appendImplicitElement(buf, elemPriority, uint16Bytes(msg.Priority))
	}

	buf = appendImplicitElement(buf, elemCommandDataSetType, uint16Bytes(msg.CommandDataSetType))

	if msg.CommandField&0x8000 != 0 {
		buf = appendImplicitElement(buf, elemStatus, uint16Bytes(msg.Status))
	}
	if msg.ErrorComment != "" {
		comment := []byte(msg.ErrorComment)
		if len(comment)%2 == 1 {
			comment = append(comment, ' ')
		}
		buf = appendImplicitElement(buf, elemErrorComment, comment)
	}

	if msg.AffectedSOPInstanceUID != "" {
		buf = appendImplicitElement(buf, elemAffectedSOPInstanceUID, uidBytes(msg.AffectedSOPInstanceUID))
	}

	binary.LittleEndian.PutUint32(buf[lengthPos:lengthPos+4], uint32(len(buf)-lengthPos-4))
	return buf, nil
}

func appendImplicitElement(buf []byte, element uint16, value []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, 0x0000)
	buf = binary.LittleEndian.AppendUint16(buf, element)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	return append(buf, value...)
}

func uidBytes(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 == 1 {
		b = append(b, 0x00)
	}
	return b
}

func uint16Bytes(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// DecodeCommand decodes a DIMSE command message
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{
		CommandDataSetType: types.NoDataSet,
	}
	sawCommandField := false

	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, errors.Wrapf(errors.ErrInvalidMessage, "truncated command element at offset %d", offset)
		}
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))

		if offset+8+length > len(data) {
			return nil, errors.Wrapf(errors.ErrInvalidMessage, "command element (%04x,%04x) overruns message", group, element)
		}
		value := data[offset+8 : offset+8+length]
		offset += 8 + length

		if group != 0x0000 {
			continue
		}

		switch element {
		case elemAffectedSOPClassUID:
			msg.AffectedSOPClassUID = strings.TrimRight(string(value), "\x00 ")
		case elemCommandField:
			if len(value) >= 2 {
				msg.CommandField = binary.LittleEndian.Uint16(value)
				sawCommandField = true
			}
		case elemMessageID:
			if len(value) >= 2 {
				msg.MessageID = binary.LittleEndian.Uint16(value)
			}
		case elemMessageIDBeingRespondedTo:
			if len(value) >= 2 {
				msg.MessageIDBeingRespondedTo = binary.LittleEndian.Uint16(value)
			}
		case elemPriority:
			if len(value) >= 2 {
				msg.Priority = binary.LittleEndian.Uint16(value)
			}
		case elemCommandDataSetType:
			if len(value) >= 2 {
				msg.CommandDataSetType = binary.LittleEndian.Uint16(value)
			}
		case elemStatus:
			if len(value) >= 2 {
				msg.Status = binary.LittleEndian.Uint16(value)
			}
		case elemErrorComment:
			msg.ErrorComment = strings.TrimRight(string(value), "\x00 ")
		case elemAffectedSOPInstanceUID:
			msg.AffectedSOPInstanceUID = strings.TrimRight(string(value), "\x00 ")
		}
	}

	if !sawCommandField {
		return nil, errors.Wrap(errors.ErrInvalidMessage, "command field missing")
	}
	return msg, nil
}
