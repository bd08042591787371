package dimse

import (
	"encoding/binary"
	"io"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/types"
)

const (
	pduHeaderLength = 6
	pdvHeaderLength = 6

	// DefaultMaxPDULength is used when the peer announces no limit
	DefaultMaxPDULength = 16384

	// maxInboundPDU bounds allocations driven by a peer's length field
	maxInboundPDU = 64 << 20
)

// WritePDU writes one PDU with the given type and payload in a single Write
func WritePDU(w io.Writer, pduType byte, payload []byte) error {
	buf := make([]byte, pduHeaderLength, pduHeaderLength+len(payload))
	buf[0] = pduType
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return errors.NewNetworkError("write PDU", err)
	}
	return nil
}

// ReadPDU reads one PDU and returns its type and payload
func ReadPDU(r io.Reader) (byte, []byte, error) {
	header := make([]byte, pduHeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, errors.NewNetworkError("read PDU header", err)
	}

	length := binary.BigEndian.Uint32(header[2:6])
	if length > maxInboundPDU {
		return 0, nil, errors.Wrapf(errors.ErrInvalidPDU, "PDU length %d exceeds limit", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errors.NewNetworkError("read PDU payload", err)
	}
	return header[0], payload, nil
}

// AbortFromPayload builds the error for a received A-ABORT
func AbortFromPayload(payload []byte) error {
	var source, reason byte
	if len(payload) >= 4 {
		source = payload[2]
		reason = payload[3]
	}
	return errors.NewAbortError(source, reason)
}

// WriteMessage sends a DIMSE command and, when dataset is non-empty, its
// dataset, fragmenting both to fit maxPDULength.
func WriteMessage(w io.Writer, presContextID byte, maxPDULength uint32, command []byte, dataset []byte) error {
	if err := writePDataTF(w, presContextID, maxPDULength, command, true); err != nil {
		return errors.Wrap(err, "send command")
	}
	if len(dataset) > 0 {
		if err := writePDataTF(w, presContextID, maxPDULength, dataset, false); err != nil {
			return errors.Wrap(err, "send dataset")
		}
	}
	return nil
}

func writePDataTF(w io.Writer, presContextID byte, maxPDULength uint32, data []byte, isCommand bool) error {
	if maxPDULength == 0 {
		maxPDULength = DefaultMaxPDULength
	}
	// A P-DATA-TF payload holds one PDV: 4 byte length, context id, control header
	maxFragment := int(maxPDULength) - pdvHeaderLength
	if maxFragment <= 0 {
		return errors.Wrapf(errors.ErrInvalidPDU, "max PDU length %d too small", maxPDULength)
	}

	offset := 0
	for {
		chunk := len(data) - offset
		last := true
		if chunk > maxFragment {
			chunk = maxFragment
			last = false
		}

		control := byte(0)
		if isCommand {
			control |= types.PDVCommand
		}
		if last {
			control |= types.PDVLast
		}

		pdv := make([]byte, 4, pdvHeaderLength+chunk)
		binary.BigEndian.PutUint32(pdv, uint32(chunk+2))
		pdv = append(pdv, presContextID, control)
		pdv = append(pdv, data[offset:offset+chunk]...)

		if err := WritePDU(w, types.TypePDataTF, pdv); err != nil {
			return err
		}

		offset += chunk
		if last {
			return nil
		}
	}
}

// ReadMessage reads a complete DIMSE message: the command and, when the
// command announces one, its dataset. An A-ABORT is returned as an
// *errors.AbortError.
func ReadMessage(r io.Reader) (*types.Message, []byte, error) {
	var commandData, datasetData []byte
	var msg *types.Message
	datasetComplete := false

	for {
		pduType, payload, err := ReadPDU(r)
		if err != nil {
			return nil, nil, err
		}

		switch pduType {
		case types.TypePDataTF:
		case types.TypeAbort:
			return nil, nil, AbortFromPayload(payload)
		case types.TypeReleaseRQ:
			return nil, nil, errors.Wrap(errors.ErrConnectionClosed, "peer requested release")
		default:
			return nil, nil, errors.Wrapf(errors.ErrInvalidPDU, "unexpected PDU type 0x%02x", pduType)
		}

		offset := 0
		for offset < len(payload) {
			if offset+pdvHeaderLength > len(payload) {
				return nil, nil, errors.Wrap(errors.ErrInvalidPDU, "malformed PDV")
			}
			pdvLength := int(binary.BigEndian.Uint32(payload[offset : offset+4]))
			end := offset + 4 + pdvLength
			if pdvLength < 2 || end > len(payload) {
				return nil, nil, errors.Wrap(errors.ErrInvalidPDU, "PDV length exceeds PDU payload")
			}

			control := payload[offset+5]
			value := payload[offset+6 : end]
			offset = end

			if control&types.PDVCommand != 0 {
				commandData = append(commandData, value...)
				if control&types.PDVLast != 0 {
					msg, err = DecodeCommand(commandData)
					if err != nil {
						return nil, nil, err
					}
				}
				continue
			}

			datasetData = append(datasetData, value...)
			if control&types.PDVLast != 0 {
				datasetComplete = true
			}
		}

		if msg != nil && (!msg.HasDataSet() || datasetComplete) {
			return msg, datasetData, nil
		}
	}
}
