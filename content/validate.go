package content

import "fmt"

// ValidationError describes a single invalid field on an item or request.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validate checks structural validity of an item. It does not enforce
// cross-item invariants; those belong to the engine and graph manager.
func (c *ContentItem) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if !c.ContentType.IsValid() {
		return &ValidationError{Field: "content_type", Message: fmt.Sprintf("unknown content type %q", c.ContentType)}
	}
	if c.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if !c.Status.IsValid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", c.Status)}
	}
	if c.Version < 1 {
		return &ValidationError{Field: "version", Message: "version must be a positive integer"}
	}
	if !c.DDLCPhase.IsValid() {
		return &ValidationError{Field: "ddlc_phase", Message: fmt.Sprintf("unknown phase %q", c.DDLCPhase)}
	}
	if !c.GitInfo.ReviewStatus.IsValid() {
		return &ValidationError{Field: "git_info.review_status", Message: fmt.Sprintf("unknown review status %q", c.GitInfo.ReviewStatus)}
	}
	if c.GitInfo.PullRequest != nil && *c.GitInfo.PullRequest < 1 {
		return &ValidationError{Field: "git_info.pull_request", Message: "pull request number must be positive"}
	}
	return nil
}
