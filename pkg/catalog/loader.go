package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads a model catalog from a JSON file. The file holds an array
// of descriptors; array order is insertion order.
func LoadFile(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read model catalog: %w", err)
	}

	var descriptors []Descriptor
	if err := json.Unmarshal(raw, &descriptors); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	if err := validate(descriptors); err != nil {
		return Snapshot{}, err
	}

	return NewSnapshot(descriptors), nil
}

func validate(descriptors []Descriptor) error {
	seen := make(map[string]struct{}, len(descriptors))
	for i, desc := range descriptors {
		if desc.ID == "" {
			return fmt.Errorf("descriptor %d has empty id", i)
		}
		if desc.Provider == "" {
			return fmt.Errorf("descriptor %q has empty provider", desc.ID)
		}
		if desc.BackendModel == "" {
			return fmt.Errorf("descriptor %q has empty backend model", desc.ID)
		}
		if _, dup := seen[desc.ID]; dup {
			return fmt.Errorf("duplicate descriptor id %q", desc.ID)
		}
		seen[desc.ID] = struct{}{}
	}
	return nil
}
