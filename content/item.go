// Package content defines the ContentItem data model tracked by the
// governance engine: one generated detection artifact (correlation rule,
// playbook, alert layout, or dashboard) together with its workflow state,
// DDLC phase, audit trail, and fork/dependency references.
package content

import (
	"encoding/json"
	"time"
)

// ContentType identifies the kind of detection artifact an item carries.
type ContentType string

const (
	TypeCorrelation ContentType = "correlation"
	TypePlaybook    ContentType = "playbook"
	TypeAlertLayout ContentType = "alert_layout"
	TypeDashboard   ContentType = "dashboard"
)

// IsValid reports whether the content type is one of the known kinds.
func (t ContentType) IsValid() bool {
	switch t {
	case TypeCorrelation, TypePlaybook, TypeAlertLayout, TypeDashboard:
		return true
	}
	return false
}

// Status represents the publication state of an item.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusValidated  Status = "validated"
	StatusPublished  Status = "published"
	StatusDeprecated Status = "deprecated"
)

// IsValid reports whether the status is one of the known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusValidated, StatusPublished, StatusDeprecated:
		return true
	}
	return false
}

// ReviewStatus represents the review state recorded in GitInfo.
type ReviewStatus string

const (
	ReviewNone             ReviewStatus = "none"
	ReviewPending          ReviewStatus = "pending"
	ReviewApproved         ReviewStatus = "approved"
	ReviewChangesRequested ReviewStatus = "changes_requested"
)

// IsValid reports whether the review status is one of the known states.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewNone, ReviewPending, ReviewApproved, ReviewChangesRequested:
		return true
	}
	return false
}

// MergeStatus represents the merge state recorded in GitInfo.
type MergeStatus string

const (
	MergeUnmerged MergeStatus = "unmerged"
	MergeMerged   MergeStatus = "merged"
	MergeConflict MergeStatus = "conflict"
)

// TestStatus tracks the test outcome state set by phase transitions and
// recorded test runs.
type TestStatus string

const (
	TestNone       TestStatus = "none"
	TestInProgress TestStatus = "in_progress"
	TestValidated  TestStatus = "validated"
	TestFailed     TestStatus = "failed"
)

// GitInfo holds the source-control style workflow state of an item.
// The commit field is an opaque token, not a real VCS commit.
type GitInfo struct {
	Branch       string       `json:"branch"`
	Commit       string       `json:"commit"`
	Author       string       `json:"author"`
	Message      string       `json:"message"`
	PullRequest  *int         `json:"pull_request,omitempty"`
	ReviewStatus ReviewStatus `json:"review_status"`
	MergeStatus  MergeStatus  `json:"merge_status"`
}

// ChangeEntry is one immutable audit-trail record. Entries are append-only:
// they are never edited or removed once written.
type ChangeEntry struct {
	Version   int       `json:"version"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Changes   []string  `json:"changes,omitempty"`

	// Transition is set when this entry records a phase advance or a
	// merge, so analytics never has to parse the message text.
	Transition *PhaseTransition `json:"transition,omitempty"`
}

// Transition kinds recorded on change entries.
const (
	TransitionPhase = "phase"
	TransitionMerge = "merge"
)

// PhaseTransition records an explicit state transition on a change
// entry. For phase transitions the fields hold DDLC phase names; for
// merge transitions they hold the source and target branch.
type PhaseTransition struct {
	Kind      string `json:"kind"`
	FromPhase string `json:"from_phase"`
	ToPhase   string `json:"to_phase"`
}

// Review is one immutable review record.
type Review struct {
	Reviewer  string       `json:"reviewer"`
	Status    ReviewStatus `json:"status"`
	Comment   string       `json:"comment,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Collaboration holds the contributor set and the append-only audit logs.
type Collaboration struct {
	Contributors   []string      `json:"contributors"`
	LastModifiedBy string        `json:"last_modified_by"`
	ChangeLog      []ChangeEntry `json:"change_log"`
	Reviews        []Review      `json:"reviews"`
}

// TestResults aggregates test outcomes recorded against an item.
// Items without recorded results carry a nil pointer and are excluded
// from quality-metric denominators.
type TestResults struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// ContentItem is the single entity tracked by the engine.
type ContentItem struct {
	ID          string      `json:"id"`
	ContentType ContentType `json:"content_type"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category,omitempty"`
	Severity    string      `json:"severity,omitempty"`

	// ContentData and Requirements are produced by the templating
	// collaborator and never inspected by the engine.
	ContentData  json.RawMessage `json:"content_data,omitempty"`
	Requirements json.RawMessage `json:"requirements,omitempty"`

	Status  Status `json:"status"`
	Version int    `json:"version"`

	DDLCPhase  Phase      `json:"ddlc_phase"`
	TestStatus TestStatus `json:"test_status"`

	GitInfo       GitInfo       `json:"git_info"`
	Collaboration Collaboration `json:"collaboration"`

	TestResults *TestResults `json:"test_results,omitempty"`

	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
	Forks        []string `json:"forks"`
	OriginalID   string   `json:"original_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the item. Mutating the copy never affects
// the original; stores and the engine rely on this to hand out snapshots.
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	out := *c

	out.ContentData = cloneRaw(c.ContentData)
	out.Requirements = cloneRaw(c.Requirements)

	if c.GitInfo.PullRequest != nil {
		pr := *c.GitInfo.PullRequest
		out.GitInfo.PullRequest = &pr
	}

	out.Collaboration.Contributors = cloneStrings(c.Collaboration.Contributors)
	out.Collaboration.ChangeLog = make([]ChangeEntry, len(c.Collaboration.ChangeLog))
	for i, e := range c.Collaboration.ChangeLog {
		out.Collaboration.ChangeLog[i] = e
		out.Collaboration.ChangeLog[i].Changes = cloneStrings(e.Changes)
		if e.Transition != nil {
			tr := *e.Transition
			out.Collaboration.ChangeLog[i].Transition = &tr
		}
	}
	out.Collaboration.Reviews = make([]Review, len(c.Collaboration.Reviews))
	copy(out.Collaboration.Reviews, c.Collaboration.Reviews)

	if c.TestResults != nil {
		tr := *c.TestResults
		out.TestResults = &tr
	}

	out.Dependencies = cloneStrings(c.Dependencies)
	out.Dependents = cloneStrings(c.Dependents)
	out.Forks = cloneStrings(c.Forks)

	return &out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// HasContributor reports whether name is already in the contributor set.
func (c *Collaboration) HasContributor(name string) bool {
	for _, n := range c.Contributors {
		if n == name {
			return true
		}
	}
	return false
}

// AddContributor adds name to the contributor set if not already present.
func (c *Collaboration) AddContributor(name string) {
	if name == "" || c.HasContributor(name) {
		return
	}
	c.Contributors = append(c.Contributors, name)
}

// ContainsID reports whether id is present in the given reference set.
func ContainsID(set []string, id string) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

// AddID adds id to the reference set if not already present, returning
// the updated set.
func AddID(set []string, id string) []string {
	if ContainsID(set, id) {
		return set
	}
	return append(set, id)
}

// RemoveID removes id from the reference set, returning the updated set.
func RemoveID(set []string, id string) []string {
	for i, s := range set {
		if s == id {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}
