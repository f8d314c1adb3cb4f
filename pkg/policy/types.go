package policy

import (
	"net/url"
	"strings"
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block provisioning.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that block provisioning.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether the severity aborts a run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. It must define a "deny" set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not carry one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Remediation provides a suggested fix.
	Remediation string `json:"remediation,omitempty"`
}

// Result represents the outcome of evaluating every enabled policy.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Blocking returns the violations that abort a run.
func (r *Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document policies are evaluated against.
type Input struct {
	// Platform is "unix" or "windows".
	Platform string `json:"platform"`

	// Target is the target triple.
	Target string `json:"target"`

	// Version is the library version being provisioned.
	Version string `json:"version"`

	// Source describes the archive location.
	Source SourceInput `json:"source"`

	// Checksum describes the configured digest.
	Checksum ChecksumInput `json:"checksum"`

	// Strict escalates warnings that have a strict variant to errors.
	Strict bool `json:"strict"`
}

// SourceInput describes the archive location.
type SourceInput struct {
	URL    string `json:"url"`
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
}

// ChecksumInput describes the configured digest.
type ChecksumInput struct {
	Algorithm string `json:"algorithm,omitempty"`
	Present   bool   `json:"present"`
}

// NewSourceInput splits a raw URL into the fields policies match on. Credentials are
// stripped from the URL.
func NewSourceInput(raw string) SourceInput {
	u, err := url.Parse(raw)
	if err != nil {
		return SourceInput{URL: raw}
	}
	return SourceInput{
		URL:    u.Redacted(),
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
	}
}
