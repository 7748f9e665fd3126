// Package source retrieves feature manifests for the refresh engine.
//
// A Transport performs single, unretried calls against a concrete backend
// (the toggle server over HTTP, or a local manifest file). Client wraps a
// Transport with bounded retry and maps its failures onto the outcomes the
// engine understands: "unchanged", "no manifest" and ErrSourceUnavailable.
package source

import (
	"context"
	"errors"

	"github.com/togglecache/togglecache/core/pkg/store"
)

//go:generate mockgen -source=source.go -destination=mock/source.go -package=sourcemock

var (
	ErrNotFound           = errors.New("manifest not found")
	ErrMissingFingerprint = errors.New("manifest response has no content hash")
	ErrUndecodable        = errors.New("manifest content could not be decoded")
	ErrUnexpectedStatus   = errors.New("unexpected response status")
	ErrSourceUnavailable  = errors.New("source unavailable")
)

// Source is what the refresh engine consumes.
type Source interface {
	// CheckChanged reports whether the remote content differs from
	// fingerprint. An empty fingerprint always reports a change.
	CheckChanged(ctx context.Context, fingerprint []byte) (bool, error)
	// FetchManifest returns the full manifest, or nil when the source
	// answered but had no usable manifest.
	FetchManifest(ctx context.Context) (*store.Snapshot, error)
}

// Transport performs a single attempt against a backend.
type Transport interface {
	// Check returns the fingerprint of the content currently served.
	Check(ctx context.Context) ([]byte, error)
	Fetch(ctx context.Context) (*store.Snapshot, error)
}

// IsPermanent reports whether err will not go away by retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMissingFingerprint) ||
		errors.Is(err, ErrUndecodable) ||
		errors.Is(err, ErrUnexpectedStatus)
}
