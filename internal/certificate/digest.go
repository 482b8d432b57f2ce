package certificate

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/preventa/preventa/internal/budget"
)

// Digest computes the integrity stamp printed on signature certificates.
// It hashes a fixed concatenation of the quote identity, the signer and the
// composition counts, so the same signed quote always yields the same stamp.
// FNV is deliberate: the stamp is a tamper-evidence indicator, not a
// cryptographic guarantee.
func Digest(b *budget.Budget, signerEmail string, signedAt time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%d",
		b.ID,
		b.Name,
		signerEmail,
		signedAt.UTC().Format(time.RFC3339),
		len(b.Metadata.Activities),
		len(b.Metadata.Resources),
	)
	return fmt.Sprintf("%016x", h.Sum64())
}
