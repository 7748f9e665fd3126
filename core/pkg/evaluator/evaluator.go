package evaluator

import (
	"fmt"
	"regexp"

	"github.com/togglecache/togglecache/core/pkg/model"
	"github.com/togglecache/togglecache/core/pkg/store"
)

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9]+(?:-[a-zA-Z0-9]+)*$`)

// IEvaluator resolves boolean toggles against the currently installed
// manifest.
type IEvaluator interface {
	ResolveBooleanValue(flagKey string, defaultValue bool, ctx model.Context) model.EvaluationResult
}

// ValidSlug reports whether key is shaped like a toggle slug.
func ValidSlug(key string) bool {
	return slugPattern.MatchString(key)
}

// Evaluate resolves flagKey against snapshot. It never fails: lookup problems
// are reported through the result's ErrorKind with defaultValue as the value.
func Evaluate(snapshot *store.Snapshot, flagKey string, defaultValue bool, ctx model.Context) model.EvaluationResult {
	if !ValidSlug(flagKey) {
		return model.EvaluationResult{
			Value:     defaultValue,
			Reason:    model.ErrorReason,
			ErrorKind: model.ErrorFlagNotFound,
			Message:   fmt.Sprintf("flag key %q is not a valid slug", flagKey),
		}
	}

	if snapshot == nil {
		snapshot = store.Empty()
	}

	toggle, ok := snapshot.Get(flagKey)
	if !ok {
		return model.EvaluationResult{
			Value:     defaultValue,
			Reason:    model.ErrorReason,
			ErrorKind: model.ErrorFlagNotFound,
			Message:   fmt.Sprintf("flag %q was not found", flagKey),
		}
	}

	if !toggle.Enabled {
		return model.EvaluationResult{Value: false, Reason: model.DisabledReason}
	}

	if len(toggle.Segments) == 0 {
		return model.EvaluationResult{Value: true, Reason: model.StaticReason}
	}

	if Satisfies(toggle, ctx) {
		return model.EvaluationResult{Value: true, Reason: model.TargetingMatchReason}
	}
	return model.EvaluationResult{Value: false, Reason: model.DefaultReason}
}

// Satisfies reports whether ctx meets every segment key of toggle.
func Satisfies(toggle model.ToggleDefinition, ctx model.Context) bool {
	if len(ctx) == 0 {
		return false
	}

	chain := Chain(model.LowerASCII(toggle.Slug))
	for _, group := range groupSegments(toggle.Segments) {
		if !groupSatisfied(chain, group, ctx) {
			return false
		}
	}
	return true
}

type segmentGroup struct {
	key    string
	values []string
}

// groupSegments partitions segments by key, ignoring ASCII case and keeping the
// order keys first appear in.
func groupSegments(segments []model.Segment) []segmentGroup {
	var groups []segmentGroup
	index := map[string]int{}

	for _, s := range segments {
		k := model.LowerASCII(s.Key)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, segmentGroup{key: s.Key})
		}
		groups[i].values = append(groups[i].values, s.Value)
	}
	return groups
}

func groupSatisfied(chain []SegmentEvaluator, group segmentGroup, ctx model.Context) bool {
	for key, raw := range ctx {
		if !model.EqualFoldASCII(key, group.key) {
			continue
		}
		supplied, ok := model.ContextValue(raw)
		if !ok {
			continue
		}
		for _, required := range group.values {
			if Match(chain, required, supplied) {
				return true
			}
		}
	}
	return false
}
