// Package storage persists the batch summary read back by the summary,
// failures and upload commands.
package storage

import (
	"gtp/internal/domain"
)

// Storage persists and loads batch summaries (e.g. for the failures viewer).
type Storage interface {
	Save(output *domain.TestResultsOutput) error
	Load() (*domain.TestResultsOutput, error)
}

// JSONStorage stores the summary in a JSON file in the log directory.
type JSONStorage struct {
	path string
}

// NewJSONStorage returns a Storage that reads/writes the summary at path.
func NewJSONStorage(path string) *JSONStorage {
	return &JSONStorage{path: path}
}

// Path returns the summary file location
func (s *JSONStorage) Path() string {
	return s.path
}
