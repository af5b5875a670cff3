// Package parser extracts test-case level results: counts from pytest's
// terminal summary and failures from structured reports.
package parser

import (
	"gtp/internal/domain"
	"gtp/internal/report"
)

// Parser extracts failures from a module's structured report
type Parser interface {
	ParseFailures(m domain.Module, rep *report.StructuredReport) []domain.TestFailure
}
