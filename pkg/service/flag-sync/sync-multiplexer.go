package sync

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/togglecache/togglecache/core/pkg/logger"
	"github.com/togglecache/togglecache/core/pkg/model"
	"github.com/togglecache/togglecache/core/pkg/store"
)

//nolint:errchkjson
var emptyConfigBytes, _ = json.Marshal(map[string]any{
	"toggles": []model.ToggleDefinition{},
})

// Payload is a rendered manifest pushed to subscribers.
type Payload struct {
	Toggles string
}

// Multiplexer fans snapshot swaps out to subscribers. The rendered manifest
// is calculated once per swap in Publish.
type Multiplexer struct {
	subs       map[interface{}]subscription
	allToggles string // pre-calculated manifest of the current snapshot
	logger     log.FieldLogger

	mu sync.RWMutex
}

type subscription struct {
	id      interface{}
	channel chan Payload
}

type manifest struct {
	Toggles  []model.ToggleDefinition `json:"toggles"`
	Metadata metadata                 `json:"metadata"`
}

type metadata struct {
	Fingerprint string   `json:"fingerprint,omitempty"`
	Enabled     []string `json:"enabled"`
}

// NewMux creates a new sync multiplexer rendering the given snapshot.
func NewMux(initial *store.Snapshot, l log.FieldLogger) (*Multiplexer, error) {
	m := &Multiplexer{
		subs:       map[interface{}]subscription{},
		allToggles: string(emptyConfigBytes),
		logger:     logger.WithComponent(l, "flag-sync"),
	}
	if initial == nil {
		return m, nil
	}
	return m, m.reFill(initial)
}

// Register a subscription and return the current manifest.
func (r *Multiplexer) Register(id interface{}, con chan Payload) Payload {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[id] = subscription{id: id, channel: con}
	return Payload{Toggles: r.allToggles}
}

// Publish renders snapshot and pushes it to all subscriptions. A pending
// payload the subscriber has not read yet is replaced, so the last value a
// subscriber receives is always the current manifest.
func (r *Multiplexer) Publish(snapshot *store.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reFill(snapshot); err != nil {
		r.logger.WithError(err).Error("unable to render manifest for subscribers")
		return
	}

	payload := Payload{Toggles: r.allToggles}
	for _, sub := range r.subs {
		select {
		case sub.channel <- payload:
			continue
		default:
		}

		// stale
		select {
		case <-sub.channel:
		default:
		}
		select {
		case sub.channel <- payload:
		default:
			r.logger.WithField("subscription", fmt.Sprint(sub.id)).Warn("subscriber is not receiving, dropping update")
		}
	}
}

// Unregister a subscription
func (r *Multiplexer) Unregister(id interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, id)
}

// GetAllToggles returns the rendered manifest of the current snapshot.
func (r *Multiplexer) GetAllToggles() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.allToggles
}

func (r *Multiplexer) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs)
}

// reFill local configuration values
func (r *Multiplexer) reFill(snapshot *store.Snapshot) error {
	toggles := snapshot.All()
	if toggles == nil {
		toggles = []model.ToggleDefinition{}
	}
	enabled := snapshot.Enabled()
	if enabled == nil {
		enabled = []string{}
	}

	bytes, err := json.Marshal(manifest{
		Toggles: toggles,
		Metadata: metadata{
			Fingerprint: base64.StdEncoding.EncodeToString(snapshot.Fingerprint()),
			Enabled:     enabled,
		},
	})
	if err != nil {
		return fmt.Errorf("error marshalling: %w", err)
	}

	r.allToggles = string(bytes)
	return nil
}
