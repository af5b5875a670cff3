package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"gtp/internal/discovery"
	"gtp/internal/domain"
)

// Formatter formats and displays output
type Formatter struct {
	w           io.Writer
	projectPath string
	parser      *discovery.Parser
}

// NewFormatter creates a new Formatter writing to stdout
func NewFormatter(projectPath string, parser *discovery.Parser) *Formatter {
	return NewFormatterTo(os.Stdout, projectPath, parser)
}

// NewFormatterTo creates a new Formatter writing to w
func NewFormatterTo(w io.Writer, projectPath string, parser *discovery.Parser) *Formatter {
	return &Formatter{w: w, projectPath: projectPath, parser: parser}
}

// PrintSummary displays the batch statistics, the per-module table and the failed tests
func (f *Formatter) PrintSummary(output *domain.TestResultsOutput) {
	meta := output.Meta

	fmt.Fprintln(f.w)
	fmt.Fprintln(f.w, color.CyanString("╔═══════════════════════════════════════════════════════════════╗"))
	fmt.Fprintln(f.w, color.CyanString("║                    Test Execution Statistics                  ║"))
	fmt.Fprintln(f.w, color.CyanString("╚═══════════════════════════════════════════════════════════════╝"))

	stats := table.NewWriter()
	stats.SetOutputMirror(f.w)
	stats.SetStyle(table.StyleLight)
	stats.Style().Options.SeparateRows = true
	stats.AppendRows([]table.Row{
		{"Run ID", meta.RunID},
		{"Mode", meta.Mode},
		{"GPUs", meta.Slots},
		{"Total Modules", meta.TotalModules},
		{"Passed Modules", text.FgGreen.Sprint(meta.PassedModules)},
		{"Failed Modules", text.FgRed.Sprint(meta.FailedModules)},
		{"Aborted Modules", text.FgRed.Sprint(meta.AbortedModules)},
		{"Skipped Modules", text.FgYellow.Sprint(meta.SkippedModules)},
		{"Failed Test Cases", text.FgRed.Sprint(meta.FailedTestCases)},
		{"Duration", fmt.Sprintf("%.2fs", meta.DurationSeconds)},
		{"Exit Code", meta.ExitCode},
		{"Timestamp", meta.Timestamp},
	})
	stats.SetColumnConfigs([]table.ColumnConfig{{Number: 1, WidthMin: 31}, {Number: 2, WidthMin: 27}})
	stats.Render()

	if unhealthy := unhealthyModules(output.Modules); len(unhealthy) > 0 {
		fmt.Fprintln(f.w)
		f.printModuleTable(unhealthy)
	}

	fmt.Fprintln(f.w)
	if meta.ExitCode == 0 && meta.FailedModules == 0 {
		fmt.Fprintln(f.w, color.GreenString("✓ All modules passed!"))
		return
	}
	if meta.FirstFailure != "" {
		fmt.Fprintln(f.w, color.RedString("✗ batch failed with exit code %d at %s", meta.ExitCode, meta.FirstFailure))
	}
	fmt.Fprintln(f.w, color.RedString("✗ %d module(s) failed with %d test case failure(s)", meta.FailedModules, meta.FailedTestCases))
	fmt.Fprintln(f.w)
	f.printFailedTestsTree(output.Details)
}

func unhealthyModules(modules []domain.ModuleSummary) []domain.ModuleSummary {
	var out []domain.ModuleSummary
	for _, m := range modules {
		if m.Status != string(domain.StatusPassed) {
			out = append(out, m)
		}
	}
	return out
}

func (f *Formatter) printModuleTable(modules []domain.ModuleSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(f.w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Module", "Status", "Exit", "GPU", "Attempts", "Duration", "Note"})
	for _, m := range modules {
		gpu := "-"
		if m.GPU >= 0 {
			gpu = fmt.Sprint(m.GPU)
		}
		note := m.Error
		if m.AbortTest != "" {
			note = "aborted in " + m.AbortTest
		}
		t.AppendRow(table.Row{m.Module, statusColor(m.Status).Sprint(m.Status), m.ExitCode, gpu, m.Attempts, fmt.Sprintf("%.2fs", m.DurationSeconds), note})
	}
	t.Render()
}

func statusColor(status string) text.Colors {
	switch domain.ModuleStatus(status) {
	case domain.StatusPassed:
		return text.Colors{text.FgGreen}
	case domain.StatusSkipped:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgRed, text.Bold}
	}
}

// TreeNode represents a node in the module tree structure
type TreeNode struct {
	Name     string
	Children map[string]*TreeNode
	Failures []domain.TestFailure
	IsFile   bool
}

// printFailedTestsTree prints the failed tests grouped by module path
func (f *Formatter) printFailedTestsTree(failures []domain.TestFailure) {
	if len(failures) == 0 {
		return
	}

	byModule := make(map[string][]domain.TestFailure)
	for _, failure := range failures {
		byModule[failure.Module] = append(byModule[failure.Module], failure)
	}

	root := &TreeNode{Children: make(map[string]*TreeNode)}
	for modulePath, moduleFailures := range byModule {
		parts := strings.Split(strings.TrimPrefix(modulePath, "./"), "/")
		current := root
		for i, part := range parts {
			if part == "" {
				continue
			}
			if current.Children[part] == nil {
				current.Children[part] = &TreeNode{
					Name:     part,
					Children: make(map[string]*TreeNode),
					IsFile:   i == len(parts)-1,
				}
			}
			current = current.Children[part]
			if i == len(parts)-1 {
				current.Failures = moduleFailures
			}
		}
	}

	f.printTreeNode(root, "", true)
}

func (f *Formatter) printTreeNode(node *TreeNode, prefix string, isRoot bool) {
	keys := make([]string, 0, len(node.Children))
	for key := range node.Children {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for i, key := range keys {
		child := node.Children[key]
		last := i == len(keys)-1

		connector := prefix + "├── "
		childPrefix := prefix + "│   "
		if last {
			connector = prefix + "└── "
			childPrefix = prefix + "    "
		}
		if isRoot {
			connector = ""
			childPrefix = ""
		}

		if child.IsFile {
			fmt.Fprintln(f.w, color.YellowString("%s%s", connector, child.Name))
			for j, failure := range child.Failures {
				casePrefix := childPrefix + "├── "
				if j == len(child.Failures)-1 {
					casePrefix = childPrefix + "└── "
				}
				name := failure.TestName
				if failure.Aborted {
					name += " (aborted)"
				}
				fmt.Fprintln(f.w, color.RedString("%s%s", casePrefix, name))
			}
		} else {
			fmt.Fprintln(f.w, color.CyanString("%s%s", connector, child.Name))
		}

		f.printTreeNode(child, childPrefix, false)
	}
}

// CountTestCases returns the total number of test cases across the given modules
func (f *Formatter) CountTestCases(modules []domain.Module) (int, error) {
	var total int
	for _, m := range modules {
		cases, err := f.parser.FindTestCases(f.modulePath(m))
		if err != nil {
			return 0, err
		}
		total += len(cases)
	}
	return total, nil
}

func (f *Formatter) modulePath(m domain.Module) string {
	return filepath.Join(f.projectPath, filepath.FromSlash(m.ID))
}

// PrintModuleList prints the modules, optionally with their test cases.
// Modules whose ID is in failed are marked with [F] (from the last run).
func (f *Formatter) PrintModuleList(modules []domain.Module, showTestCases bool, failed map[string]struct{}) {
	fmt.Fprintln(f.w, color.GreenString("Found %d test module(s):", len(modules)))
	fmt.Fprintln(f.w)

	for i, m := range modules {
		marker := ""
		if _, ok := failed[m.ID]; ok {
			marker = " " + color.RedString("[F]")
		}

		lastModule := i == len(modules)-1
		branch, indent := "├── ", "│   "
		if lastModule {
			branch, indent = "└── ", "    "
		}
		fmt.Fprintln(f.w, color.CyanString("%s%s", branch, m.ID)+marker)

		if !showTestCases {
			continue
		}

		cases, err := f.parser.FindTestCases(f.modulePath(m))
		if err != nil {
			fmt.Fprintln(f.w, indent+"└── "+color.RedString("error reading module: %v", err))
		} else if len(cases) == 0 {
			fmt.Fprintln(f.w, indent+"└── "+color.RedString("(no test cases found)"))
		}
		for j, tc := range cases {
			leaf := "├── "
			if j == len(cases)-1 {
				leaf = "└── "
			}
			fmt.Fprintln(f.w, indent+leaf+color.YellowString("%s", tc))
		}
		if !lastModule {
			fmt.Fprintln(f.w)
		}
	}
}
