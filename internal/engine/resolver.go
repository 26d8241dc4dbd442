// Package engine orchestrates strategy evaluation: file resolution, the
// evaluation boundary, and event publication.
package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Resolver maps a strategy identifier to a strategy file on disk.
type Resolver struct {
	strategiesDir string
	defaultFile   string
	log           zerolog.Logger
}

// NewResolver creates a resolver rooted at strategiesDir
func NewResolver(strategiesDir, defaultFile string, log zerolog.Logger) *Resolver {
	return &Resolver{
		strategiesDir: strategiesDir,
		defaultFile:   defaultFile,
		log:           log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve finds the strategy file for an identifier. Candidates are tried
// in order: the identifier as an explicit path, the identifier with a .clj
// extension, the same two under the strategies directory, and finally the
// configured default. An identifier matching nothing falls back to the
// default; found reports whether the returned path exists. Resolution
// itself never fails; a missing path fails later at parse time.
func (r *Resolver) Resolve(strategyID string) (string, bool) {
	if strategyID != "" {
		candidates := []string{
			strategyID,
			strategyID + ".clj",
			filepath.Join(r.strategiesDir, strategyID),
			filepath.Join(r.strategiesDir, strategyID+".clj"),
		}
		if strings.HasSuffix(strategyID, ".clj") {
			candidates = []string{
				strategyID,
				filepath.Join(r.strategiesDir, strategyID),
			}
		}

		for _, candidate := range candidates {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}

		r.log.Warn().Str("strategy_id", strategyID).
			Msg("Strategy not found, falling back to default")
	}

	fallback := r.defaultFile
	if !filepath.IsAbs(fallback) && !strings.Contains(fallback, string(os.PathSeparator)) {
		fallback = filepath.Join(r.strategiesDir, fallback)
	}
	if info, err := os.Stat(fallback); err == nil && !info.IsDir() {
		return fallback, true
	}
	return fallback, false
}

// ListStrategies returns the .clj files in the strategies directory
func (r *Resolver) ListStrategies() ([]string, error) {
	entries, err := os.ReadDir(r.strategiesDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".clj") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".clj"))
	}
	return names, nil
}
