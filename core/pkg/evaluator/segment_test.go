package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSemVerEvaluator(t *testing.T) {
	tests := []struct {
		required string
		supplied string
		want     bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.0.0-mybranch", "1.0.1-mybranch", true},
		{"1.0.1", "1.0.0", false},
		{"1.0.0", "1.0.0", true},
		{"1.0.0-alpha", "1.0.0", true},
		{"1.0.0", "1.0.0-alpha", false},
		{"2.0.0+build.1", "2.0.0", true},
	}
	e := SemVerEvaluator{}
	for _, tt := range tests {
		t.Run(tt.required+"/"+tt.supplied, func(t *testing.T) {
			assert.True(t, e.CanEvaluate(tt.required, tt.supplied))
			assert.Equal(t, tt.want, e.Evaluate(tt.required, tt.supplied))
		})
	}
}

func TestSemVerEvaluator_RejectsNonVersions(t *testing.T) {
	e := SemVerEvaluator{}
	for _, pair := range [][2]string{
		{"1.0", "1.0.0"},
		{"1", "1.0.0"},
		{"v1.0.0", "1.0.0"},
		{"1.0.0", "trial"},
		{"01.0.0", "1.0.0"},
		{"", ""},
	} {
		assert.False(t, e.CanEvaluate(pair[0], pair[1]), pair)
	}
}

func TestDefaultEvaluator_CaseInsensitive(t *testing.T) {
	e := DefaultEvaluator{}
	assert.True(t, e.CanEvaluate("anything", ""))
	assert.True(t, e.Evaluate("Trial", "tRIAL"))
	assert.False(t, e.Evaluate("trial", "trial "))
}

func TestDefaultEvaluator_IgnoresOnlyASCIICase(t *testing.T) {
	e := DefaultEvaluator{}
	assert.False(t, e.Evaluate("k", "\u212A"))
	assert.False(t, e.Evaluate("s", "\u017F"))
	assert.False(t, e.Evaluate("zürich", "ZÜRICH"))
	assert.True(t, e.Evaluate("zürich", "ZüRICH"))
}

func TestChain_Priority(t *testing.T) {
	chain := Chain("scope")

	// a version pair never reaches the equality evaluator
	assert.True(t, Match(chain, "1.0.0", "1.2.0"))
	// a percentage with an empty identifier falls through to equality
	assert.False(t, Match(chain, "50%", ""))
	assert.True(t, Match(chain, "au", "AU"))
}

func TestBucket_Stable(t *testing.T) {
	assert.Equal(t, uint32(83), Bucket("percentage-rollout", "tenant-0"))
	assert.Equal(t, uint32(21), Bucket("percentage-rollout", "tenant-1"))

	for i := 0; i < 100; i++ {
		b := Bucket("scope", string(rune('a'+i%26))+"x")
		assert.GreaterOrEqual(t, b, uint32(1))
		assert.LessOrEqual(t, b, uint32(100))
	}
}

func TestInRollout_Bounds(t *testing.T) {
	assert.False(t, InRollout("percentage-rollout", "tenant-0", 0))
	assert.False(t, InRollout("percentage-rollout", "", 100))
	assert.True(t, InRollout("percentage-rollout", "tenant-1", 22))
	assert.False(t, InRollout("percentage-rollout", "tenant-1", 21))
}

func TestParsePercentage(t *testing.T) {
	for value, want := range map[string]int{"0%": 0, "25%": 25, "100%": 100} {
		p, ok := ParsePercentage(value)
		assert.True(t, ok, value)
		assert.Equal(t, want, p)
	}
	for _, value := range []string{"101%", "25", "%", "-5%", "2.5%", "1000%"} {
		_, ok := ParsePercentage(value)
		assert.False(t, ok, value)
	}
}
