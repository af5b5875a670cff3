package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"gtp/internal/domain"
	"gtp/internal/parser"
)

// ProgressBar shows batch progress. It is safe for use by several workers.
type ProgressBar struct {
	bar    *progressbar.ProgressBar
	parser *parser.PytestParser

	mu                        sync.Mutex
	done, running             int
	passedModules, failedMods int
	passedCases, failedCases  int
}

// NewProgressBar creates a new progress bar for count modules
func NewProgressBar(count int) *ProgressBar {
	return newProgressBar(count, os.Stderr)
}

func newProgressBar(count int, w io.Writer) *ProgressBar {
	bar := progressbar.NewOptions(count,
		progressbar.OptionSetDescription(describe(0, 0, 0, 0, 0)),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar, parser: parser.NewPytestParser()}
}

func describe(running, passed, failed, passedCases, failedCases int) string {
	return color.CyanString("Running modules ") +
		color.WhiteString("(%d on gpu) ", running) +
		color.GreenString("[passed: %d", passed) +
		" | " +
		color.RedString("failed: %d]", failed) +
		color.WhiteString(" cases ") +
		color.GreenString("%d", passedCases) + "/" + color.RedString("%d", failedCases)
}

// ModuleStarted marks a module as running on a GPU
func (p *ProgressBar) ModuleStarted(m domain.Module, slot domain.Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running++
	p.refresh()
}

// ModuleFinished counts a finished or skipped module
func (p *ProgressBar) ModuleFinished(res domain.ModuleResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if res.Status != domain.StatusSkipped {
		p.running--
		if res.FinalCode == 0 {
			p.passedModules++
		} else {
			p.failedMods++
		}
		passed, failed := p.parser.ParseTestCounts(res)
		p.passedCases += passed
		p.failedCases += failed
	}
	p.done++
	_ = p.bar.Set(p.done)
	p.refresh()
}

func (p *ProgressBar) refresh() {
	p.bar.Describe(describe(p.running, p.passedModules, p.failedMods, p.passedCases, p.failedCases))
}

// Counts returns (passed, failed) modules and cases seen so far
func (p *ProgressBar) Counts() (passedModules, failedModules, passedCases, failedCases int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passedModules, p.failedMods, p.passedCases, p.failedCases
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}
