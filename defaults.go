package diorama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// MergeSpriteDefaults lays a layer object over a sprite's prompt defaults.
// Keys present in the layer win; everything else comes from the defaults.
// Both inputs are JSON objects. A nil or empty prompt returns the layer
// unchanged.
func MergeSpriteDefaults(layerJSON, promptJSON []byte) ([]byte, error) {
	if len(promptJSON) == 0 {
		return layerJSON, nil
	}
	var layer, prompt map[string]json.RawMessage
	if err := json.Unmarshal(layerJSON, &layer); err != nil {
		return nil, fmt.Errorf("decode layer: %w", err)
	}
	if err := json.Unmarshal(promptJSON, &prompt); err != nil {
		return nil, fmt.Errorf("decode sprite defaults: %w", err)
	}
	out := make(map[string]json.RawMessage, len(layer)+len(prompt))
	for k, v := range prompt {
		// The sprite name always comes from the layer.
		if k == "sprite_name" {
			continue
		}
		out[k] = v
	}
	for k, v := range layer {
		out[k] = v
	}
	return json.Marshal(out)
}

// NewLayerWithDefaults builds a layer for a sprite, applying the port's
// stored defaults when it keeps any.
func NewLayerWithDefaults(ctx context.Context, port Port, sprite string) (*Layer, error) {
	d, ok := port.(SpriteDefaulter)
	if !ok {
		return NewLayer(sprite), nil
	}
	prompt, err := d.SpriteDefaults(ctx, sprite)
	if errors.Is(err, ErrAssetNotFound) {
		return NewLayer(sprite), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults for %q: %w", sprite, err)
	}
	base, err := json.Marshal(map[string]string{"sprite_name": sprite})
	if err != nil {
		return nil, err
	}
	merged, err := MergeSpriteDefaults(base, prompt)
	if err != nil {
		return nil, err
	}
	var l Layer
	if err := json.Unmarshal(merged, &l); err != nil {
		return nil, fmt.Errorf("failed to apply defaults for %q: %w", sprite, err)
	}
	return &l, nil
}

// AddSprite places a new layer for sprite, with its stored defaults, and
// commits it.
func (s *Session) AddSprite(sprite string) error {
	l, err := NewLayerWithDefaults(s.ctx, s.port, sprite)
	if err != nil {
		return err
	}
	return s.Commit(AddLayer{Layer: l})
}
