package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// attemptKeyLength keeps keys under Square's 45 character limit.
const attemptKeyLength = 40

// AttemptKey derives the gateway idempotency key for one checkout attempt.
// The same cart, user and attempt always produce the same key, so a replayed
// request cannot charge twice.
func AttemptKey(cartID, userID uuid.UUID, attempt string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{cartID.String(), userID.String(), strings.TrimSpace(attempt)}, "|")))
	return hex.EncodeToString(sum[:])[:attemptKeyLength]
}
