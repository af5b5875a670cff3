package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gtp/internal/domain"
)

// Save writes the batch summary, replacing the previous one.
func (s *JSONStorage) Save(output *domain.TestResultsOutput) error {
	if output.Modules == nil {
		output.Modules = []domain.ModuleSummary{}
	}
	if output.Details == nil {
		output.Details = []domain.TestFailure{}
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// Load reads the last batch summary.
func (s *JSONStorage) Load() (*domain.TestResultsOutput, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read results file: %w", err)
	}
	var output domain.TestResultsOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return &output, nil
}
