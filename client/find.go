package client

import (
	"context"

	"github.com/caio-sobreiro/pdfpacs/dicom"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/types"
)

// SendCFind performs a Study Root C-FIND and returns the identifiers of all
// pending responses in order. A failure or cancel status is returned as an
// *errors.DIMSEError.
func (a *Association) SendCFind(ctx context.Context, query *dicom.Dataset) ([]*dicom.Dataset, error) {
	if query == nil {
		return nil, errors.New("c-find requires a query dataset")
	}

	pc, err := a.PresentationContext(types.StudyRootQueryRetrieveFind)
	if err != nil {
		return nil, err
	}

	identifier, err := query.Encode(pc.TransferSyntax)
	if err != nil {
		return nil, errors.Wrap(err, "encode C-FIND identifier")
	}

	command := &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           a.nextMessageID(),
		CommandDataSetType:  types.DataSetPresent,
		Priority:            types.PriorityMedium,
		AffectedSOPClassUID: types.StudyRootQueryRetrieveFind,
	}

	if err := a.send(ctx, pc, command, identifier); err != nil {
		return nil, errors.Wrap(err, "send C-FIND request")
	}

	var matches []*dicom.Dataset
	for {
		msg, data, err := a.receive(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "receive C-FIND response")
		}
		if msg.CommandField != types.CFindRSP {
			return nil, errors.Wrapf(errors.ErrInvalidMessage, "unexpected command 0x%04x (expected C-FIND-RSP)", msg.CommandField)
		}

		switch {
		case msg.Status == types.StatusPending || msg.Status == 0xFF01:
			if len(data) == 0 {
				continue
			}
			ds, err := dicom.ParseDataset(data, pc.TransferSyntax)
			if err != nil {
				return nil, errors.Wrap(err, "parse C-FIND identifier")
			}
			matches = append(matches, ds)
		case msg.Status == types.StatusSuccess:
			a.logger.Debugw("C-FIND completed", "matches", len(matches))
			return matches, nil
		default:
			return nil, errors.NewDIMSEError("C-FIND", msg.Status, msg.ErrorComment)
		}
	}
}
