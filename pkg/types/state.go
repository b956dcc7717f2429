// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// StateFile is the persisted traversal state. The JSON layout is fixed:
// queue is ordered, processed keeps completion order, skipped and failed map
// an identifier to the reason it ended there.
type StateFile struct {
	Queue     []string          `json:"queue"`
	Processed []string          `json:"processed"`
	Skipped   map[string]string `json:"skipped"`
	Failed    map[string]string `json:"failed"`
}

// Counts summarizes a traversal state.
type Counts struct {
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Total returns the number of identifiers the traversal has seen.
func (c Counts) Total() int {
	return c.Pending + c.Processed + c.Skipped + c.Failed
}

// Counts computes the counts of a persisted state.
func (s StateFile) Counts() Counts {
	return Counts{
		Pending:   len(s.Queue),
		Processed: len(s.Processed),
		Skipped:   len(s.Skipped),
		Failed:    len(s.Failed),
	}
}

// Membership names which collection an identifier belongs to.
type Membership string

const (
	MemberNone      Membership = "unseen"
	MemberQueued    Membership = "queued"
	MemberInFlight  Membership = "in_flight"
	MemberProcessed Membership = "processed"
	MemberSkipped   Membership = "skipped"
	MemberFailed    Membership = "failed"
)
