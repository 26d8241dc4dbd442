// Package groupcache precomputes and stores daily portfolio returns for
// named groups that filter operators rank over. Backfill walks historical
// trading days evaluating each group's body point-in-time; lookup serves
// the evaluator's ranking metrics without re-evaluating sub-portfolios for
// every historical day.
package groupcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveGroupID produces the deterministic cache key for a group's display
// name. Same name always yields the same id; names differing in case or
// surrounding whitespace collapse to the same id on purpose.
//
// Names are assumed unique per strategy file. Two different groups sharing
// a display name would share a cache series; see DESIGN.md.
func DeriveGroupID(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}
