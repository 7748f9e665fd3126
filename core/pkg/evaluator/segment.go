package evaluator

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/togglecache/togglecache/core/pkg/model"
)

// SegmentEvaluator decides whether a supplied context value satisfies the
// value a segment requires. CanEvaluate is consulted first; Evaluate is only
// called on evaluators that accepted the pair.
type SegmentEvaluator interface {
	CanEvaluate(required, supplied string) bool
	Evaluate(required, supplied string) bool
}

// DefaultEvaluator compares values ignoring ASCII case.
type DefaultEvaluator struct{}

func (DefaultEvaluator) CanEvaluate(string, string) bool { return true }

func (DefaultEvaluator) Evaluate(required, supplied string) bool {
	return model.EqualFoldASCII(required, supplied)
}

// SemVerEvaluator treats both values as semantic versions and is satisfied
// when the supplied version is at least the required one.
type SemVerEvaluator struct{}

func (SemVerEvaluator) CanEvaluate(required, supplied string) bool {
	_, okRequired := canonicalVersion(required)
	_, okSupplied := canonicalVersion(supplied)
	return okRequired && okSupplied
}

func (SemVerEvaluator) Evaluate(required, supplied string) bool {
	r, okRequired := canonicalVersion(required)
	s, okSupplied := canonicalVersion(supplied)
	if !okRequired || !okSupplied {
		return false
	}
	return semver.Compare(s, r) >= 0
}

// canonicalVersion accepts only full MAJOR.MINOR.PATCH versions, with
// optional pre-release and build suffixes.
func canonicalVersion(v string) (string, bool) {
	if v == "" || v[0] == 'v' || v[0] == 'V' {
		return "", false
	}
	prefixed := "v" + v
	if !semver.IsValid(prefixed) {
		return "", false
	}
	canonical := semver.Canonical(prefixed)
	if canonical != strings.TrimSuffix(prefixed, semver.Build(prefixed)) {
		// shorthand such as 1 or 1.2
		return "", false
	}
	return canonical, true
}

// Chain returns the evaluators for a toggle in priority order. The last entry
// accepts every pair.
func Chain(scope string) []SegmentEvaluator {
	return []SegmentEvaluator{
		BucketEvaluator{Scope: scope},
		SemVerEvaluator{},
		DefaultEvaluator{},
	}
}

// Match runs the first applicable evaluator in chain.
func Match(chain []SegmentEvaluator, required, supplied string) bool {
	for _, e := range chain {
		if e.CanEvaluate(required, supplied) {
			return e.Evaluate(required, supplied)
		}
	}
	return false
}
