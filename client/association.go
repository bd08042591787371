// Package client is a DICOM upper layer SCU: it negotiates associations and
// issues C-ECHO, C-FIND and C-STORE requests against a remote PACS.
package client

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caio-sobreiro/pdfpacs/dimse"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/types"
)

// DialFunc opens the transport connection
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds client configuration
type Config struct {
	CallingAETitle            string
	CalledAETitle             string
	MaxPDULength              uint32
	ConnectTimeout            time.Duration // Timeout for establishing connection (default: 30s)
	ReadTimeout               time.Duration // Timeout for each read (default: 60s)
	WriteTimeout              time.Duration // Timeout for each write (default: 60s)
	Logger                    *zap.SugaredLogger
	PreferredTransferSyntaxes []string // Proposed in order (default: Explicit VR, Implicit VR)
	// AbstractSyntaxes are proposed one per presentation context (default:
	// Verification, Study Root FIND, Encapsulated PDF Storage)
	AbstractSyntaxes []string
	Dial             DialFunc
}

func (c Config) withDefaults() Config {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = dimse.DefaultMaxPDULength
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if len(c.PreferredTransferSyntaxes) == 0 {
		c.PreferredTransferSyntaxes = []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian}
	}
	if len(c.AbstractSyntaxes) == 0 {
		c.AbstractSyntaxes = []string{
			types.VerificationSOPClass,
			types.StudyRootQueryRetrieveFind,
			types.EncapsulatedPDFStorage,
		}
	}
	if c.Dial == nil {
		dialer := &net.Dialer{Timeout: c.ConnectTimeout}
		c.Dial = dialer.DialContext
	}
	return c
}

// Association represents a client-side DICOM association. It is not safe
// for concurrent use; open one association per worker.
type Association struct {
	conn         net.Conn
	cfg          Config
	peerMaxPDU   uint32
	presentation map[byte]*types.PresentationContext
	logger       *zap.SugaredLogger

	mu        sync.Mutex
	messageID uint16
}

// Connect establishes a DICOM association with a remote SCP
func Connect(ctx context.Context, address string, config Config) (*Association, error) {
	cfg := config.withDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := cfg.Dial(dialCtx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(errors.NewNetworkError("dial", err), "connect to %s", address)
	}

	assoc := &Association{
		conn:         conn,
		cfg:          cfg,
		peerMaxPDU:   dimse.DefaultMaxPDULength,
		presentation: make(map[byte]*types.PresentationContext),
		logger:       cfg.Logger.With("remote_addr", address, "called_ae", cfg.CalledAETitle),
	}

	if err := assoc.setDeadlines(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := dimse.WritePDU(conn, types.TypeAssociateRQ, assoc.buildAssociateRQ()); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "send A-ASSOCIATE-RQ")
	}
	if err := assoc.receiveAssociateAC(); err != nil {
		conn.Close()
		return nil, err
	}

	assoc.logger.Debugw("DICOM association established",
		"calling_ae", cfg.CallingAETitle,
		"peer_max_pdu", assoc.peerMaxPDU)

	return assoc, nil
}

// setDeadlines applies the configured timeouts, bounded by ctx's deadline
func (a *Association) setDeadlines(ctx context.Context) error {
	read := time.Now().Add(a.cfg.ReadTimeout)
	write := time.Now().Add(a.cfg.WriteTimeout)
	if dl, ok := ctx.Deadline(); ok {
		if dl.Before(read) {
			read = dl
		}
		if dl.Before(write) {
			write = dl
		}
	}
	if err := a.conn.SetReadDeadline(read); err != nil {
		return errors.Wrap(err, "set read deadline")
	}
	if err := a.conn.SetWriteDeadline(write); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	return nil
}

// Close releases the association and closes the connection
func (a *Association) Close() error {
	if err := dimse.WritePDU(a.conn, types.TypeReleaseRQ, make([]byte, 4)); err != nil {
		a.logger.Debugw("Failed to send release request", "error", err)
		return a.conn.Close()
	}

	pduType, _, err := dimse.ReadPDU(a.conn)
	if err == nil && pduType != types.TypeReleaseRP {
		a.logger.Debugw("Unexpected PDU while releasing", "pdu_type", pduType)
	}

	return a.conn.Close()
}

// Abort sends an A-ABORT and closes the connection
func (a *Association) Abort() error {
	_ = dimse.WritePDU(a.conn, types.TypeAbort, []byte{0, 0, 0, 0})
	return a.conn.Close()
}

func (a *Association) nextMessageID() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messageID++
	if a.messageID == 0 {
		a.messageID = 1
	}
	return a.messageID
}

func padAETitle(title string) []byte {
	ae := []byte(strings.Repeat(" ", 16))
	copy(ae, title)
	return ae
}

func appendItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(value)))
	return append(buf, value...)
}

func (a *Association) buildAssociateRQ() []byte {
	buf := make([]byte, 0, 1024)

	// Protocol version, reserved
	buf = append(buf, 0x00, 0x01, 0x00, 0x00)
	buf = append(buf, padAETitle(a.cfg.CalledAETitle)...)
	buf = append(buf, padAETitle(a.cfg.CallingAETitle)...)
	buf = append(buf, make([]byte, 32)...)

	buf = appendItem(buf, types.ItemApplicationContext, []byte(types.ApplicationContextUID))

	// context ids are odd
	for i, abstractSyntax := range a.cfg.AbstractSyntaxes {
		id := byte(2*i + 1)
		buf = appendItem(buf, types.ItemPresentationContextRQ, a.buildPresentationContext(id, abstractSyntax))
		a.presentation[id] = &types.PresentationContext{
			ID:             id,
			AbstractSyntax: abstractSyntax,
			Result:         0xFF,
		}
	}

	var user []byte
	user = appendItem(user, types.ItemMaxLength, binary.BigEndian.AppendUint32(nil, a.cfg.MaxPDULength))
	user = appendItem(user, types.ItemImplementationClassUID, []byte(types.ImplementationClassUID))
	user = appendItem(user, types.ItemImplementationVersion, []byte(types.ImplementationVersionName))
	buf = appendItem(buf, types.ItemUserInformation, user)

	return buf
}

func (a *Association) buildPresentationContext(id byte, abstractSyntax string) []byte {
	item := []byte{id, 0x00, 0x00, 0x00}
	item = appendItem(item, types.ItemAbstractSyntax, []byte(abstractSyntax))
	for _, ts := range a.cfg.PreferredTransferSyntaxes {
		item = appendItem(item, types.ItemTransferSyntax, []byte(ts))
	}
	return item
}

// receiveAssociateAC receives and parses A-ASSOCIATE-AC, or turns an
// A-ASSOCIATE-RJ into an *errors.AssociationError
func (a *Association) receiveAssociateAC() error {
	pduType, data, err := dimse.ReadPDU(a.conn)
	if err != nil {
		return errors.Wrap(err, "receive A-ASSOCIATE-AC")
	}

	switch pduType {
	case types.TypeAssociateAC:
	case types.TypeAssociateRJ:
		if len(data) < 4 {
			return errors.Wrap(errors.ErrInvalidPDU, "short A-ASSOCIATE-RJ")
		}
		return errors.Mark(errors.NewAssociationError(data[1],
			errors.AssociationRejectSource(data[2]),
			errors.AssociationRejectReason(data[3]),
			"association rejected by "+a.cfg.CalledAETitle), errors.ErrAssociationRejected)
	case types.TypeAbort:
		return dimse.AbortFromPayload(data)
	default:
		return errors.Wrapf(errors.ErrInvalidPDU, "unexpected PDU type 0x%02x (expected A-ASSOCIATE-AC)", pduType)
	}

	// Skip protocol version, reserved, AE titles and reserved block
	offset := 68
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		itemEnd := offset + 4 + itemLength
		if itemEnd > len(data) {
			return errors.Wrap(errors.ErrInvalidPDU, "A-ASSOCIATE-AC item overruns PDU")
		}
		value := data[offset+4 : itemEnd]

		switch itemType {
		case types.ItemPresentationContextAC:
			a.parsePresentationResult(value)
		case types.ItemUserInformation:
			a.parseUserInformation(value)
		}

		offset = itemEnd
	}

	return nil
}

func (a *Association) parsePresentationResult(value []byte) {
	if len(value) < 4 {
		return
	}
	id := value[0]
	result := value[2]

	transferSyntax := ""
	for sub := 4; sub+4 <= len(value); {
		subLength := int(binary.BigEndian.Uint16(value[sub+2 : sub+4]))
		subEnd := sub + 4 + subLength
		if subEnd > len(value) {
			break
		}
		if value[sub] == types.ItemTransferSyntax {
			transferSyntax = strings.TrimRight(string(value[sub+4:subEnd]), "\x00 ")
		}
		sub = subEnd
	}

	pc, ok := a.presentation[id]
	if !ok {
		return
	}
	pc.Result = result
	if result == types.PresentationContextAccepted {
		pc.TransferSyntax = transferSyntax
	}
	a.logger.Debugw("Presentation context negotiation",
		"context_id", id,
		"abstract_syntax", types.UIDName(pc.AbstractSyntax),
		"result", result,
		"transfer_syntax", pc.TransferSyntax)
}

func (a *Association) parseUserInformation(value []byte) {
	for sub := 0; sub+4 <= len(value); {
		subLength := int(binary.BigEndian.Uint16(value[sub+2 : sub+4]))
		subEnd := sub + 4 + subLength
		if subEnd > len(value) {
			return
		}
		if value[sub] == types.ItemMaxLength && subLength == 4 {
			if max := binary.BigEndian.Uint32(value[sub+4 : subEnd]); max > 0 {
				a.peerMaxPDU = max
			}
		}
		sub = subEnd
	}
}

// PresentationContext returns the accepted presentation context for an
// abstract syntax
func (a *Association) PresentationContext(abstractSyntax string) (*types.PresentationContext, error) {
	for _, pc := range a.presentation {
		if pc.AbstractSyntax == abstractSyntax && pc.Result == types.PresentationContextAccepted {
			return pc, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNoPresentationCtx, "abstract syntax %s", types.UIDName(abstractSyntax))
}

// send writes a command and its optional dataset
func (a *Association) send(ctx context.Context, pc *types.PresentationContext, msg *types.Message, dataset []byte) error {
	command, err := dimse.EncodeCommand(msg)
	if err != nil {
		return err
	}
	if err := a.setDeadlines(ctx); err != nil {
		return err
	}
	err = dimse.WriteMessage(a.conn, pc.ID, a.peerMaxPDU, command, dataset)
	return asTimeout(err, "write request", a.cfg.WriteTimeout)
}

func (a *Association) receive(ctx context.Context) (*types.Message, []byte, error) {
	if err := a.setDeadlines(ctx); err != nil {
		return nil, nil, err
	}
	msg, dataset, err := dimse.ReadMessage(a.conn)
	return msg, dataset, asTimeout(err, "read response", a.cfg.ReadTimeout)
}

// asTimeout turns an expired connection deadline into a TimeoutError
func asTimeout(err error, op string, limit time.Duration) error {
	var netErr net.Error
	if err == nil || !stderrors.As(err, &netErr) || !netErr.Timeout() {
		return err
	}
	return errors.WithDetail(errors.NewTimeoutError(op, limit.String()), err.Error())
}
