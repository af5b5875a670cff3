package ui

import "gtp/internal/domain"

// Viewer displays batch results in an interactive TUI
type Viewer interface {
	View(results *domain.TestResultsOutput) error
}
