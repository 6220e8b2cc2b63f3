package ledger

import (
	"errors"
	"fmt"

	"github.com/ppiankov/claimledger/internal/model"
)

// ErrClaimNotFound is returned by GetClaim for unknown claim ids
var ErrClaimNotFound = errors.New("claim not found")

// ProvenanceError is returned by TrackFileClaims in strict mode. The
// reconciliation it reports on has already been persisted; Summary holds
// the counts of that write.
type ProvenanceError struct {
	FilePath string
	Warning  string // first provenance warning raised for the file
	Summary  model.TrackSummary
}

func (e *ProvenanceError) Error() string {
	return fmt.Sprintf("provenance check failed for %s: %s", e.FilePath, e.Warning)
}
