package model

type ErrorKind string

const (
	ErrorNone         ErrorKind = ""
	ErrorFlagNotFound ErrorKind = "FLAG_NOT_FOUND"
	ErrorTypeMismatch ErrorKind = "TYPE_MISMATCH"
	ErrorGeneral      ErrorKind = "GENERAL"
)

const (
	StaticReason         = "STATIC"
	TargetingMatchReason = "TARGETING_MATCH"
	DefaultReason        = "DEFAULT"
	DisabledReason       = "DISABLED"
	ErrorReason          = "ERROR"
)

// EvaluationResult is the outcome of resolving one boolean toggle.
type EvaluationResult struct {
	Value     bool      `json:"value"`
	Reason    string    `json:"reason"`
	ErrorKind ErrorKind `json:"errorCode,omitempty"`
	Message   string    `json:"errorMessage,omitempty"`
}

// Failed reports whether the result carries an error kind.
func (r EvaluationResult) Failed() bool {
	return r.ErrorKind != ErrorNone
}
