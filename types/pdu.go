package types

// PDU type constants
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// Presentation context item types and results
const (
	ItemApplicationContext      = 0x10
	ItemPresentationContextRQ   = 0x20
	ItemPresentationContextAC   = 0x21
	ItemAbstractSyntax          = 0x30
	ItemTransferSyntax          = 0x40
	ItemUserInformation         = 0x50
	ItemMaxLength               = 0x51
	ItemImplementationClassUID  = 0x52
	ItemImplementationVersion   = 0x55
	PresentationContextAccepted = 0x00
)

// Message control header bits of a PDV
const (
	PDVCommand = 0x01
	PDVLast    = 0x02
)

// PresentationContext represents a negotiated presentation context
type PresentationContext struct {
	ID             byte
	Result         byte
	AbstractSyntax string
	TransferSyntax string
}
