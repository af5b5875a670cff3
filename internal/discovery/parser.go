package discovery

import (
	"fmt"
	"os"
	"regexp"
	"sort"
)

// Parser reads a python test module to list its test functions
type Parser struct{}

// NewParser creates a new Parser
func NewParser() *Parser {
	return &Parser{}
}

var (
	// Matches:
	// - def test_matmul(self):
	// - async def test_stream():
	//   (indented methods included)
	testFuncPattern = regexp.MustCompile(`(?m)^([ \t]*)(?:async\s+)?def\s+(test\w*)\s*\(`)
	// class TestFoo: / class FooTest(jtu.JaxTestCase):
	testClassPattern = regexp.MustCompile(`(?m)^class\s+(\w+)\s*[:(]`)
)

// FindTestCases lists the test functions in a module, qualified with their
// class as pytest names them ("Class::test_x")
func (p *Parser) FindTestCases(filePath string) ([]string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", filePath, err)
	}
	text := string(content)

	type class struct {
		name  string
		start int
	}
	var classes []class
	for _, m := range testClassPattern.FindAllStringSubmatchIndex(text, -1) {
		classes = append(classes, class{name: text[m[2]:m[3]], start: m[0]})
	}

	seen := make(map[string]bool)
	for _, m := range testFuncPattern.FindAllStringSubmatchIndex(text, -1) {
		indent := text[m[2]:m[3]]
		name := text[m[4]:m[5]]
		if indent != "" {
			// Method: attribute it to the closest class above
			owner := ""
			for _, c := range classes {
				if c.start < m[0] {
					owner = c.name
				}
			}
			if owner != "" {
				name = owner + "::" + name
			}
		}
		seen[name] = true
	}

	testCases := make([]string, 0, len(seen))
	for tc := range seen {
		testCases = append(testCases, tc)
	}
	sort.Strings(testCases)
	return testCases, nil
}
