// Package discovery finds the test modules of a batch and applies the
// name filter and the static exclusion list.
package discovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"gtp/internal/config"
	"gtp/internal/domain"
	"gtp/internal/report"
)

// Discovery returns module identifiers relative to the project root
type Discovery interface {
	Discover(ctx context.Context) ([]string, error)
}

// New returns the discovery configured by cfg.Discovery
func New(cfg *config.Config, layout report.Layout) (Discovery, error) {
	switch cfg.Discovery {
	case "pytest":
		return NewPytestCollector(cfg.Python, cfg.ProjectPath, cfg.TestPath, layout.CollectLogPath()), nil
	case "scan":
		return NewScanner(cfg.ProjectPath, cfg.TestPath, cfg.PathsToIgnore), nil
	default:
		return nil, fmt.Errorf("unknown discovery mode %q", cfg.Discovery)
	}
}

// Selection is the outcome of discovery after filtering
type Selection struct {
	Modules  []domain.Module
	Excluded []string
	Filtered int // Modules dropped by the name filter
}

// Resolve runs d and turns its identifiers into modules, dropping what the
// name filter rejects and what the exclusion list names
func Resolve(ctx context.Context, d Discovery, cfg *config.Config) (*Selection, error) {
	ids, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}

	filtered := NewFilter().FilterByName(ids, cfg.Flags.NameFilter)
	kept, excluded := NewExclusions(cfg.ExcludedModules).Apply(filtered)
	for _, id := range excluded {
		log.Info().Str("module", id).Msg("Excluding multi-GPU module")
	}

	sel := &Selection{
		Modules:  domain.NewModules(kept),
		Excluded: excluded,
		Filtered: len(ids) - len(filtered),
	}
	log.Info().
		Int("found", len(sel.Modules)).
		Int("excluded", len(excluded)).
		Int("filtered", sel.Filtered).
		Msg("Discovered test modules")
	return sel, nil
}
