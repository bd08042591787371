package client

import (
	"context"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/types"
)

// CStoreRequest represents a C-STORE request. Data is the dataset encoded
// in the negotiated transfer syntax, or nil to let Encode produce it.
type CStoreRequest struct {
	SOPClassUID    string
	SOPInstanceUID string
	Encode         func(transferSyntaxUID string) ([]byte, error)
}

// CStoreResponse represents a C-STORE response
type CStoreResponse struct {
	Status         uint16
	MessageID      uint16
	SOPInstanceUID string
}

// SendCStore sends a C-STORE request and waits for its response. Success
// and warning statuses are accepted; anything else is returned as an
// *errors.DIMSEError.
func (a *Association) SendCStore(ctx context.Context, req *CStoreRequest) (*CStoreResponse, error) {
	if req == nil || req.Encode == nil {
		return nil, errors.New("c-store requires a dataset encoder")
	}

	pc, err := a.PresentationContext(req.SOPClassUID)
	if err != nil {
		return nil, err
	}

	data, err := req.Encode(pc.TransferSyntax)
	if err != nil {
		return nil, errors.Wrap(err, "encode C-STORE dataset")
	}

	command := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              a.nextMessageID(),
		Priority:               types.PriorityMedium,
		CommandDataSetType:     types.DataSetPresent,
		AffectedSOPClassUID:    req.SOPClassUID,
		AffectedSOPInstanceUID: req.SOPInstanceUID,
	}

	if err := a.send(ctx, pc, command, data); err != nil {
		return nil, errors.Wrap(err, "send C-STORE request")
	}

	a.logger.Debugw("Sent C-STORE-RQ",
		"message_id", command.MessageID,
		"sop_instance_uid", req.SOPInstanceUID,
		"bytes", len(data))

	msg, _, err := a.receive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "receive C-STORE response")
	}
	if msg.CommandField != types.CStoreRSP {
		return nil, errors.Wrapf(errors.ErrInvalidMessage, "unexpected command 0x%04x (expected C-STORE-RSP)", msg.CommandField)
	}

	resp := &CStoreResponse{
		Status:         msg.Status,
		MessageID:      msg.MessageIDBeingRespondedTo,
		SOPInstanceUID: msg.AffectedSOPInstanceUID,
	}

	dimseErr := errors.NewDIMSEError("C-STORE", msg.Status, msg.ErrorComment)
	if dimseErr.IsSuccess() {
		return resp, nil
	}
	if dimseErr.IsWarning() {
		a.logger.Warnw("C-STORE completed with warning", "status", msg.Status, "comment", msg.ErrorComment)
		return resp, nil
	}
	return resp, dimseErr
}
