package provider

import (
	"context"

	"github.com/togglecache/togglecache/core/pkg/model"
)

type Metadata struct {
	Name string `json:"name"`
}

type Status string

const (
	NotReady Status = "NOT_READY"
	Ready    Status = "READY"
	Stale    Status = "STALE"
	Stopped  Status = "SHUT_DOWN"
)

// ResolutionDetail is the outcome of a typed flag resolution.
type ResolutionDetail[T any] struct {
	Value        T               `json:"value"`
	Reason       string          `json:"reason"`
	ErrorCode    model.ErrorKind `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

func (r ResolutionDetail[T]) Failed() bool {
	return r.ErrorCode != model.ErrorNone
}

type IProvider interface {
	Metadata() Metadata
	Initialize(ctx context.Context) error
	ResolveBooleanValue(flagKey string, defaultValue bool, evalCtx model.Context) ResolutionDetail[bool]
	ResolveStringValue(flagKey string, defaultValue string, evalCtx model.Context) ResolutionDetail[string]
	ResolveNumberValue(flagKey string, defaultValue float64, evalCtx model.Context) ResolutionDetail[float64]
	ResolveObjectValue(flagKey string, defaultValue map[string]any, evalCtx model.Context) ResolutionDetail[map[string]any]
	Refresh(ctx context.Context) error
	Status() Status
	Shutdown()
}
