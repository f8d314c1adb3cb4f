package provision

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a provisioning failure by the kind of resource that failed.
type ErrorClass string

const (
	// ErrorClassNetwork covers connection, login, transfer and HTTP status failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassIntegrity indicates the downloaded payload did not match its expected digest.
	ErrorClassIntegrity ErrorClass = "integrity"

	// ErrorClassFilesystem covers reading or writing files in the output directory.
	ErrorClassFilesystem ErrorClass = "filesystem"

	// ErrorClassSpawn indicates an external tool could not be started.
	ErrorClassSpawn ErrorClass = "spawn"

	// ErrorClassExit indicates an external tool ran but exited unsuccessfully.
	ErrorClassExit ErrorClass = "exit"

	// ErrorClassMissingTool indicates a required external tool was not found for the target.
	ErrorClassMissingTool ErrorClass = "missing_tool"

	// ErrorClassArchive indicates the archive is unreadable or lacks an expected entry.
	ErrorClassArchive ErrorClass = "archive"

	// ErrorClassPolicy indicates the source policy rejected the configured source.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassConfig indicates the provisioner was given unusable options.
	ErrorClassConfig ErrorClass = "config"
)

// Step names reported in errors, logs, metrics and the run ledger.
const (
	StepProbe     = "probe"
	StepPolicy    = "policy"
	StepFetch     = "fetch"
	StepVerify    = "verify"
	StepPersist   = "persist"
	StepExtract   = "extract"
	StepConfigure = "configure"
	StepBuild     = "build"
	StepInstall   = "install"
	StepLibrarian = "librarian"
	StepEmit      = "emit"
)

// Error is a classified provisioning failure naming the step that failed.
type Error struct {
	// Class is the failure classification.
	Class ErrorClass `json:"class"`

	// Step is the pipeline step that failed.
	Step string `json:"step"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Err is the underlying error, if any.
	Err error `json:"-"`

	// Details contains step-specific context such as digests or exit codes.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Class, e.Step, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Step, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same class and step.
// An empty Step on the target matches any step.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Step == "" || e.Step == t.Step)
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(class ErrorClass, step, message string, err error) *Error {
	return &Error{
		Class:   class,
		Step:    step,
		Message: message,
		Err:     err,
	}
}

// NewNetworkError creates a network-class error.
func NewNetworkError(step, message string, err error) *Error {
	return newError(ErrorClassNetwork, step, message, err)
}

// NewFilesystemError creates a filesystem-class error.
func NewFilesystemError(step, message string, err error) *Error {
	return newError(ErrorClassFilesystem, step, message, err)
}

// NewArchiveError creates an archive-class error.
func NewArchiveError(step, message string, err error) *Error {
	return newError(ErrorClassArchive, step, message, err)
}

// NewConfigError creates a config-class error.
func NewConfigError(message string, err error) *Error {
	return newError(ErrorClassConfig, StepProbe, message, err)
}

// NewPolicyError creates a policy-class error for a rejected source.
func NewPolicyError(message string) *Error {
	return newError(ErrorClassPolicy, StepPolicy, message, nil)
}

// NewIntegrityError reports a digest mismatch, naming both values.
func NewIntegrityError(algorithm, expected, actual string) *Error {
	e := newError(ErrorClassIntegrity, StepVerify,
		fmt.Sprintf("%s of downloaded archive is different: actual=%s, correct=%s", algorithm, actual, expected), nil)
	return e.WithDetail("algorithm", algorithm).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

// ClassOf returns the class of err, or "" if err is not a provisioning error.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// StepOf returns the failing step of err, or "" if err is not a provisioning error.
func StepOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Step
	}
	return ""
}

// IsNetwork returns true if the error is classified as a network failure.
func IsNetwork(err error) bool {
	return ClassOf(err) == ErrorClassNetwork
}

// IsIntegrity returns true if the error is a checksum mismatch.
func IsIntegrity(err error) bool {
	return ClassOf(err) == ErrorClassIntegrity
}

// IsSubprocess returns true if an external tool failed to start or exited unsuccessfully.
func IsSubprocess(err error) bool {
	c := ClassOf(err)
	return c == ErrorClassSpawn || c == ErrorClassExit
}

// IsMissingTool returns true if a required external tool was not found.
func IsMissingTool(err error) bool {
	return ClassOf(err) == ErrorClassMissingTool
}

// IsPolicy returns true if the source policy rejected the run.
func IsPolicy(err error) bool {
	return ClassOf(err) == ErrorClassPolicy
}
