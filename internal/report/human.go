package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMarkersMissing means a human report lacks the structure the merge tool relies on
var ErrMarkersMissing = errors.New("human report markers missing")

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var humanTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/report.html.tmpl"))

var (
	runTookRe     = regexp.MustCompile(`^(\d+) tests? took (.*)$`)
	runRanInRe    = regexp.MustCompile(`^(\d+) tests? ran in (.*)$`)
	runProgressRe = regexp.MustCompile(`^(\d+)/(\d+) tests? done\.?$`)
	counterRe     = regexp.MustCompile(`^(\d+)(\s.*)$`)
	blobIDRe      = regexp.MustCompile(`^test_(\d+)$`)
)

// Outcomes that have a filter counter in pytest-html
var filterOutcomes = []string{"failed", "passed", "skipped", "xfailed", "xpassed", "error", "rerun"}

type runCountForm int

const (
	runTook runCountForm = iota
	runRanIn
	runInProgress
)

// RunCount is the "N tests took HH:MM:SS." line
type RunCount struct {
	Tests int
	Tail  string // Text after "took"/"ran in", including the trailing period
	form  runCountForm
}

func (rc RunCount) String() string {
	if rc.form == runRanIn {
		return strconv.Itoa(rc.Tests) + " tests ran in " + rc.Tail
	}
	return strconv.Itoa(rc.Tests) + " tests took " + rc.Tail
}

func parseRunCount(text string) (RunCount, bool) {
	text = strings.TrimSpace(text)
	if m := runTookRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return RunCount{Tests: n, Tail: m[2], form: runTook}, true
	}
	if m := runRanInRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return RunCount{Tests: n, Tail: m[2], form: runRanIn}, true
	}
	if m := runProgressRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return RunCount{Tests: n, Tail: "00:00:00.", form: runInProgress}, true
	}
	return RunCount{}, false
}

type counter struct {
	text  *html.Node // Text node inside the span
	input *html.Node // Filter checkbox, may be nil
	rest  string     // Label after the number, e.g. " Failed,"
}

// DataBlob is the JSON snapshot pytest-html embeds in #data-container.
// The merge tool reads tests from here rather than from the rendered table.
type DataBlob struct {
	Tests map[string]json.RawMessage `json:"tests"`

	extra map[string]json.RawMessage
}

type dataBlobAlias DataBlob

func (b *DataBlob) UnmarshalJSON(data []byte) error {
	var a dataBlobAlias
	extra, err := decodeWithExtra(data, &a, []string{"tests"})
	if err != nil {
		return err
	}
	*b = DataBlob(a)
	b.extra = extra
	return nil
}

func (b DataBlob) MarshalJSON() ([]byte, error) {
	if b.Tests == nil {
		b.Tests = map[string]json.RawMessage{}
	}
	return encodeWithExtra(dataBlobAlias(b), b.extra)
}

// blobTest is one entry of DataBlob.Tests
type blobTest struct {
	TestID          string   `json:"testId"`
	ID              string   `json:"id"`
	Log             string   `json:"log"`
	Extras          []any    `json:"extras"`
	ResultsTableRow []string `json:"resultsTableRow"`
	TableHTML       []string `json:"tableHtml"`
	Result          string   `json:"result"`
	Collapsed       bool     `json:"collapsed"`
}

// HumanReport is a parsed pytest-html document. Counters and the data blob
// are typed; Render writes them back into the document tree.
type HumanReport struct {
	RunCount RunCount
	Counts   map[string]int
	Blob     DataBlob

	doc       *html.Node
	results   *html.Node
	runCount  *html.Node
	container *html.Node
	reload    *html.Node
	counters  map[string]*counter
}

// ParseHuman parses a pytest-html document. Missing or malformed structure
// yields an error wrapping ErrMarkersMissing.
func ParseHuman(r io.Reader) (*HumanReport, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	h := &HumanReport{
		doc:      doc,
		Counts:   make(map[string]int),
		counters: make(map[string]*counter),
	}
	inputs := make(map[string]*html.Node)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Table && attr(n, "id") == "results-table":
				h.results = n
			case n.DataAtom == atom.P && h.runCount == nil && isRunCount(n):
				h.runCount = n
			case attr(n, "id") == "data-container":
				h.container = n
			case hasClass(n, "summary__reload__button"):
				h.reload = n
			case n.DataAtom == atom.Input && hasAttr(n, "data-test-result"):
				inputs[attr(n, "data-test-result")] = n
			case n.DataAtom == atom.Span:
				h.readCounter(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	switch {
	case h.results == nil:
		return nil, fmt.Errorf("%w: no results-table", ErrMarkersMissing)
	case h.runCount == nil:
		return nil, fmt.Errorf("%w: no run-count", ErrMarkersMissing)
	case h.container == nil || !hasAttr(h.container, "data-jsonblob"):
		return nil, fmt.Errorf("%w: no data-jsonblob", ErrMarkersMissing)
	case h.counters["failed"] == nil:
		return nil, fmt.Errorf("%w: no failed counter", ErrMarkersMissing)
	}

	rc, ok := parseRunCount(textOf(h.runCount))
	if !ok {
		return nil, fmt.Errorf("%w: run-count %q", ErrMarkersMissing, strings.TrimSpace(textOf(h.runCount)))
	}
	h.RunCount = rc
	if err := json.Unmarshal([]byte(attr(h.container, "data-jsonblob")), &h.Blob); err != nil {
		return nil, fmt.Errorf("%w: data-jsonblob: %v", ErrMarkersMissing, err)
	}
	for outcome, c := range h.counters {
		c.input = inputs[outcome]
	}
	return h, nil
}

// LoadHuman reads and parses the human report at path
func LoadHuman(path string) (*HumanReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseHuman(f)
}

func (h *HumanReport) readCounter(span *html.Node) {
	class := attr(span, "class")
	known := false
	for _, o := range filterOutcomes {
		if class == o {
			known = true
			break
		}
	}
	if !known || h.counters[class] != nil {
		return
	}
	text := span.FirstChild
	if text == nil || text.Type != html.TextNode {
		return
	}
	m := counterRe.FindStringSubmatch(strings.TrimSpace(text.Data))
	if m == nil {
		return
	}
	n, _ := strconv.Atoi(m[1])
	h.Counts[class] = n
	h.counters[class] = &counter{text: text, rest: m[2]}
}

// Rows counts the result rows rendered in the results table
func (h *HumanReport) Rows() int {
	var n int
	for c := h.results.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom == atom.Tbody && hasClass(c, "results-table-row") {
			n++
		}
	}
	return n
}

// AddAbort records a synthetic failed case: a table row, the run count, the
// failed counter and the embedded blob are all updated together.
func (h *HumanReport) AddAbort(a AbortInfo) error {
	row := newAbortRow(a)
	var buf bytes.Buffer
	if err := humanTemplate.ExecuteTemplate(&buf, "row", row); err != nil {
		return fmt.Errorf("render row: %w", err)
	}
	nodes, err := html.ParseFragment(&buf, h.results)
	if err != nil {
		return fmt.Errorf("parse row: %w", err)
	}
	for _, n := range nodes {
		h.results.AppendChild(n)
	}

	if h.RunCount.form == runInProgress {
		h.RunCount.form = runTook
		h.RunCount.Tail = a.ClockDuration() + "."
	}
	h.RunCount.Tests++
	h.Counts["failed"]++

	return h.addBlobTest(row)
}

func (h *HumanReport) addBlobTest(row abortRow) error {
	if h.Blob.Tests == nil {
		h.Blob.Tests = make(map[string]json.RawMessage)
	}
	listShape := false
	for _, raw := range h.Blob.Tests {
		listShape = len(bytes.TrimSpace(raw)) > 0 && bytes.TrimSpace(raw)[0] == '['
		break
	}

	id := "test_" + strconv.Itoa(h.nextBlobID())
	key := id
	if listShape {
		key = row.NodeID
	}
	entry := row.blobTest(id)

	if !listShape {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal blob test: %w", err)
		}
		h.Blob.Tests[key] = raw
		return nil
	}

	var list []json.RawMessage
	if prev, ok := h.Blob.Tests[key]; ok {
		if err := json.Unmarshal(prev, &list); err != nil {
			return fmt.Errorf("blob tests %s: %w", key, err)
		}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal blob test: %w", err)
	}
	list = append(list, raw)
	merged, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal blob tests: %w", err)
	}
	h.Blob.Tests[key] = merged
	return nil
}

// nextBlobID returns one past the highest test_N used as a blob key or entry id
func (h *HumanReport) nextBlobID() int {
	next := 0
	use := func(id string) {
		if m := blobIDRe.FindStringSubmatch(id); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= next {
				next = n + 1
			}
		}
	}
	type withID struct {
		ID string `json:"id"`
	}
	for key, raw := range h.Blob.Tests {
		use(key)
		var list []withID
		if err := json.Unmarshal(raw, &list); err == nil {
			for _, e := range list {
				use(e.ID)
			}
			continue
		}
		var one withID
		if err := json.Unmarshal(raw, &one); err == nil {
			use(one.ID)
		}
	}
	return next
}

// Render writes the typed fields back into the document and serializes it
func (h *HumanReport) Render(w io.Writer) error {
	setText(h.runCount, h.RunCount.String())
	for outcome, c := range h.counters {
		n := h.Counts[outcome]
		c.text.Data = strconv.Itoa(n) + c.rest
		if c.input != nil && n > 0 {
			removeAttr(c.input, "disabled")
		}
	}
	blob, err := json.Marshal(h.Blob)
	if err != nil {
		return fmt.Errorf("marshal data blob: %w", err)
	}
	setAttr(h.container, "data-jsonblob", string(blob))
	if h.reload != nil && !hasClass(h.reload, "hidden") {
		setAttr(h.reload, "class", strings.TrimSpace(attr(h.reload, "class"))+" hidden")
	}
	return html.Render(w, h.doc)
}

// Save renders the report to path
func (h *HumanReport) Save(path string) error {
	var buf bytes.Buffer
	if err := h.Render(&buf); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

type abortRow struct {
	NodeID   string
	Duration string
	LogLines []string
}

func newAbortRow(a AbortInfo) abortRow {
	return abortRow{
		NodeID:   a.NodeID(),
		Duration: a.ClockDuration(),
		LogLines: strings.Split(a.Detail(), "\n"),
	}
}

func (r abortRow) blobTest(id string) blobTest {
	name := html.EscapeString(r.NodeID)
	return blobTest{
		TestID: r.NodeID,
		ID:     id,
		Log:    strings.Join(r.LogLines, "\n"),
		Extras: []any{},
		ResultsTableRow: []string{
			`<td class="col-result">Failed</td>`,
			`<td class="col-name">` + name + `</td>`,
			`<td class="col-duration">` + r.Duration + `</td>`,
			`<td class="col-links"></td>`,
		},
		TableHTML: []string{},
		Result:    "failed",
		Collapsed: false,
	}
}

type freshReport struct {
	Title     string
	Generated string
	Row       abortRow
	Blob      string
}

// NewAbortHuman renders a complete pytest-html document holding only the synthetic case
func NewAbortHuman(title string, a AbortInfo) ([]byte, error) {
	row := newAbortRow(a)
	blob := DataBlob{
		Tests: map[string]json.RawMessage{},
		extra: map[string]json.RawMessage{
			"environment":     json.RawMessage(`{}`),
			"renderCollapsed": json.RawMessage(`["passed"]`),
			"initialSort":     json.RawMessage(`"result"`),
		},
	}
	titleJSON, err := json.Marshal(title)
	if err != nil {
		return nil, err
	}
	blob.extra["title"] = titleJSON
	entry, err := json.Marshal(row.blobTest("test_0"))
	if err != nil {
		return nil, fmt.Errorf("marshal blob test: %w", err)
	}
	blob.Tests["test_0"] = entry
	blobJSON, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("marshal data blob: %w", err)
	}

	var buf bytes.Buffer
	err = humanTemplate.ExecuteTemplate(&buf, "report.html.tmpl", freshReport{
		Title:     title,
		Generated: a.AbortTime.Format("02-Jan-2006 at 15:04:05"),
		Row:       row,
		Blob:      string(blobJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteAbortHuman writes a fresh abort-only document to path
func WriteAbortHuman(path, title string, a AbortInfo) error {
	data, err := NewAbortHuman(title, a)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func isRunCount(n *html.Node) bool {
	if hasClass(n, "run-count") {
		return true
	}
	_, ok := parseRunCount(textOf(n))
	return ok
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
