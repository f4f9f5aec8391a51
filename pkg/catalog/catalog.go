package catalog

import (
	"sort"
	"sync"

	"github.com/avrebarra/lumora/pkg/llm"
)

// DefaultModel is the logical reference callers use to ask for whatever
// model the catalog currently considers primary.
const DefaultModel = "default"

// Capabilities flags what a deployed model can do.
type Capabilities struct {
	Streaming bool `json:"streaming"`
	Vision    bool `json:"vision"`
	Image     bool `json:"image"`
	Video     bool `json:"video"`
}

// Descriptor is one admin-configured deployable backend model. It is owned
// by configuration and read-only everywhere else.
type Descriptor struct {
	ID                 string       `json:"id"`
	Provider           string       `json:"provider"`
	BackendModel       string       `json:"backend_model"`
	Active             bool         `json:"active"`
	Disabled           bool         `json:"disabled"`
	AdminMessage       string       `json:"admin_message,omitempty"`
	Capabilities       Capabilities `json:"capabilities"`
	DefaultTemperature float64      `json:"default_temperature,omitempty"`
	DefaultMaxTokens   int          `json:"default_max_tokens,omitempty"`
	Endpoint           string       `json:"endpoint,omitempty"`
	DisplayOrder       int          `json:"display_order"`
	TimeoutSeconds     int          `json:"timeout_seconds,omitempty"`
}

// Snapshot is an immutable view of the model catalog. Resolution is a pure
// function over a snapshot so it is testable without a live store and
// idempotent between configuration changes.
type Snapshot struct {
	descriptors []Descriptor
}

// NewSnapshot builds a snapshot preserving insertion order, which breaks
// display-order ties during default resolution.
func NewSnapshot(descriptors []Descriptor) Snapshot {
	copied := make([]Descriptor, len(descriptors))
	copy(copied, descriptors)
	return Snapshot{descriptors: copied}
}

// Descriptors returns all descriptors in insertion order.
func (s Snapshot) Descriptors() []Descriptor {
	out := make([]Descriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// Resolve maps a logical model reference (or DefaultModel) to a descriptor.
// The default is the active, non-disabled descriptor with the lowest
// display order; ties break by insertion order. A disabled descriptor
// resolves to a ModelDisabled error carrying the admin message verbatim.
func (s Snapshot) Resolve(idOrDefault string) (Descriptor, error) {
	if idOrDefault == "" || idOrDefault == DefaultModel {
		return s.resolveDefault()
	}
	for _, desc := range s.descriptors {
		if desc.ID != idOrDefault {
			continue
		}
		if desc.Disabled {
			return Descriptor{}, &llm.Error{Kind: llm.KindModelDisabled, Message: desc.AdminMessage}
		}
		return desc, nil
	}
	return Descriptor{}, llm.Errorf(llm.KindModelNotFound, "model not found: %s", idOrDefault)
}

func (s Snapshot) resolveDefault() (Descriptor, error) {
	best := -1
	for i, desc := range s.descriptors {
		if !desc.Active || desc.Disabled {
			continue
		}
		if best < 0 || desc.DisplayOrder < s.descriptors[best].DisplayOrder {
			best = i
		}
	}
	if best < 0 {
		return Descriptor{}, llm.NewError(llm.KindModelNotFound, "no active model configured")
	}
	return s.descriptors[best], nil
}

// ImageCandidates returns active, non-disabled image-capable descriptors
// in priority order for a fallback pass.
func (s Snapshot) ImageCandidates() []Descriptor {
	var out []Descriptor
	for _, desc := range s.descriptors {
		if desc.Active && !desc.Disabled && desc.Capabilities.Image {
			out = append(out, desc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

// Catalog holds the current snapshot and swaps it atomically on reload.
type Catalog struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// New creates a catalog with an initial snapshot.
func New(snapshot Snapshot) *Catalog {
	return &Catalog{snapshot: snapshot}
}

// Snapshot returns the current catalog snapshot.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Swap replaces the current snapshot.
func (c *Catalog) Swap(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
}
