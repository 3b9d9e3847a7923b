package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default configuration values
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 10 * time.Millisecond
	publishTimeout    = 2 * time.Second
)

// MaxAmount bounds a single movement: one trillion FCFA.
const MaxAmount int64 = 1_000_000_000_000

// Operation names used in metrics and logs
const (
	OpApplyDelta   = "apply_delta"
	OpResolve      = "resolve"
	OpGetBalance   = "get_balance"
	OpVerifyWallet = "verify_wallet"
)

// NewReference builds an external reference such as DEP_1718000000000_3F2A9C1B.
func NewReference(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}
