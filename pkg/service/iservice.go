package service

import (
	"context"

	"github.com/togglecache/togglecache/pkg/provider"
)

// IService exposes a provider to remote callers until ctx is done.
type IService interface {
	Serve(ctx context.Context, provider provider.IProvider) error
}
