package domain

// TestFailure represents a failed test case
type TestFailure struct {
	TestName string  `json:"test_name"`
	NodeID   string  `json:"node_id"`
	Module   string  `json:"module"`
	Outcome  string  `json:"outcome"`
	Message  string  `json:"message"`
	Detail   string  `json:"detail"`
	Duration float64 `json:"duration"`
	Aborted  bool    `json:"aborted,omitempty"`
	Resolved bool    `json:"resolved,omitempty"` // Track if test case is marked as resolved
}
