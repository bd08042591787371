package dicom

import (
	"math/big"

	"github.com/google/uuid"
)

// UUIDRoot is the UID root for UUID-derived UIDs (PS3.5 B.2)
const UUIDRoot = "2.25."

// NewUID returns a globally unique DICOM UID of the form 2.25.<uuid as decimal>.
func NewUID() string {
	id := uuid.New()
	return UUIDRoot + new(big.Int).SetBytes(id[:]).String()
}
