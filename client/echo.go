package client

import (
	"context"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/types"
)

// CEchoResponse represents the result of a C-ECHO operation.
type CEchoResponse struct {
	Status    uint16
	MessageID uint16
}

// SendCEcho performs a DICOM C-ECHO (verification) request. A non-success
// status is returned as an *errors.DIMSEError.
func (a *Association) SendCEcho(ctx context.Context) (*CEchoResponse, error) {
	pc, err := a.PresentationContext(types.VerificationSOPClass)
	if err != nil {
		return nil, err
	}

	command := &types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:           a.nextMessageID(),
		CommandDataSetType:  types.NoDataSet,
		AffectedSOPClassUID: types.VerificationSOPClass,
	}

	if err := a.send(ctx, pc, command, nil); err != nil {
		return nil, errors.Wrap(err, "send C-ECHO request")
	}

	msg, _, err := a.receive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "receive C-ECHO response")
	}
	if msg.CommandField != types.CEchoRSP {
		return nil, errors.Wrapf(errors.ErrInvalidMessage, "unexpected command 0x%04x (expected C-ECHO-RSP)", msg.CommandField)
	}

	resp := &CEchoResponse{Status: msg.Status, MessageID: msg.MessageIDBeingRespondedTo}
	if msg.Status != types.StatusSuccess {
		return resp, errors.NewDIMSEError("C-ECHO", msg.Status, msg.ErrorComment)
	}
	return resp, nil
}
