package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// HTMLMerger combines every human report in a directory into one document
type HTMLMerger interface {
	Merge(ctx context.Context, dir, out string) error
}

// ExecMerger runs an external merge tool as `<command...> -i <dir> -o <out>`
type ExecMerger struct {
	Command []string
}

func (e ExecMerger) Merge(ctx context.Context, dir, out string) error {
	if len(e.Command) == 0 {
		return errors.New("no merge tool configured")
	}
	args := append(append([]string{}, e.Command[1:]...), "-i", dir, "-o", out)
	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", e.Command[0], err, msg)
		}
		return fmt.Errorf("%s: %w", e.Command[0], err)
	}
	return nil
}

// ModuleReport is one structured report picked up by aggregation
type ModuleReport struct {
	Name   string // File stem with the structured suffix removed
	Path   string
	Report *StructuredReport
}

// Aggregate is the outcome of one aggregation pass
type Aggregate struct {
	Reports  []ModuleReport
	Skipped  []string // Files that could not be parsed
	JSONPath string
	HTMLPath string
	MergeErr error
}

// Aggregator writes the batch's aggregate reports. Re-running it rebuilds both outputs.
type Aggregator struct {
	layout Layout
	merger HTMLMerger
}

// NewAggregator creates an aggregator. A nil merger skips the HTML step.
func NewAggregator(layout Layout, merger HTMLMerger) *Aggregator {
	return &Aggregator{layout: layout, merger: merger}
}

// Run scans the log directory and writes the aggregates. Only failing to
// write the combined JSON is an error; merge failures land in MergeErr.
func (a *Aggregator) Run(ctx context.Context) (*Aggregate, error) {
	res := &Aggregate{JSONPath: a.layout.CombinedJSONPath()}

	entries, err := os.ReadDir(a.layout.Dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsModuleStructured(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]json.RawMessage, 0, len(names))
	for _, name := range names {
		path := filepath.Join(a.layout.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping unreadable report")
			res.Skipped = append(res.Skipped, name)
			continue
		}
		var rep StructuredReport
		if err := json.Unmarshal(data, &rep); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping unparsable report")
			res.Skipped = append(res.Skipped, name)
			continue
		}
		docs = append(docs, json.RawMessage(data))
		res.Reports = append(res.Reports, ModuleReport{
			Name:   strings.TrimSuffix(name, structuredSuffix),
			Path:   path,
			Report: &rep,
		})
	}

	out, err := json.MarshalIndent(docs, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal combined report: %w", err)
	}
	if err := writeFileAtomic(res.JSONPath, out); err != nil {
		return nil, err
	}
	log.Info().Int("reports", len(docs)).Str("path", res.JSONPath).Msg("Wrote combined report")

	if a.merger == nil {
		return res, nil
	}
	htmlPath := a.layout.CombinedHTMLPath()
	if err := os.Remove(htmlPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to remove previous combined html")
	}
	if err := a.merger.Merge(ctx, a.layout.Dir, htmlPath); err != nil {
		log.Warn().Err(err).Msg("HTML merge failed")
		res.MergeErr = err
		return res, nil
	}
	res.HTMLPath = htmlPath
	return res, nil
}
