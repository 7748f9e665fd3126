package evaluator

import (
	"regexp"
	"strconv"

	"github.com/twmb/murmur3"
)

var percentagePattern = regexp.MustCompile(`^(\d{1,3})%$`)

// Bucket maps an identifier to a stable bucket in [1, 100] for the given
// scope. The same pair always lands in the same bucket.
func Bucket(scope, identifier string) uint32 {
	return murmur3.StringSum32(scope+":"+identifier)%100 + 1
}

// InRollout reports whether identifier falls inside a rollout of the given
// percentage. The comparison is strict.
func InRollout(scope, identifier string, percentage int) bool {
	if percentage <= 0 || identifier == "" {
		return false
	}
	return Bucket(scope, identifier) < uint32(percentage)
}

// ParsePercentage reads a required segment value of the form N%.
func ParsePercentage(value string) (int, bool) {
	m := percentagePattern.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}
	p, err := strconv.Atoi(m[1])
	if err != nil || p > 100 {
		return 0, false
	}
	return p, true
}

// BucketEvaluator handles percentage rollout segments such as
// {tenant: 25%}. The supplied value is the identifier being bucketed.
type BucketEvaluator struct {
	Scope string
}

func (b BucketEvaluator) CanEvaluate(required, supplied string) bool {
	if supplied == "" {
		return false
	}
	_, ok := ParsePercentage(required)
	return ok
}

func (b BucketEvaluator) Evaluate(required, supplied string) bool {
	p, ok := ParsePercentage(required)
	if !ok {
		return false
	}
	return InRollout(b.Scope, supplied, p)
}
