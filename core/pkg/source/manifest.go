package source

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/togglecache/togglecache/core/pkg/model"
	"github.com/togglecache/togglecache/core/pkg/store"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/manifest.json
var manifestSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(manifestSchema)

// DecodeManifest validates raw against the manifest schema and builds a
// snapshot carrying fingerprint.
func DecodeManifest(raw, fingerprint []byte) (*store.Snapshot, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUndecodable)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrUndecodable, strings.Join(details, "; "))
	}

	var toggles []model.ToggleDefinition
	if err := json.Unmarshal(raw, &toggles); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	snapshot, err := store.NewSnapshot(toggles, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return snapshot, nil
}
