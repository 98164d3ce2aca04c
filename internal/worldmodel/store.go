// Package worldmodel holds the authoritative, in-process Entity state the
// reconciler compares against declared intents.
package worldmodel

import (
	"sync"
	"time"

	"github.com/gap-kernel/gap/internal/model"
)

// Store is the single-process World Model Store. All operations are
// single-entity atomic; there is no ordering guarantee across keys.
type Store struct {
	mu           sync.RWMutex
	entities     map[string]model.Entity
	driftEvents  []model.DriftEvent
	lastReconciled time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{entities: make(map[string]model.Entity)}
}

// Upsert inserts or replaces an entity record.
func (s *Store) Upsert(e model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.EntityID] = e.Clone()
}

// Get returns a copy of the entity, if present.
func (s *Store) Get(entityID string) (model.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityID]
	if !ok {
		return model.Entity{}, false
	}
	return e.Clone(), true
}

// Remove deletes an entity record.
func (s *Store) Remove(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, entityID)
}

// ByType returns all entities of the given entity_type.
func (s *Store) ByType(entityType string) []model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Entity
	for _, e := range s.entities {
		if e.EntityType == entityType {
			out = append(out, e.Clone())
		}
	}
	return out
}

// ByObligation returns all entities obligated to the given intent id.
func (s *Store) ByObligation(intentID string) []model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Entity
	for _, e := range s.entities {
		if _, ok := e.Obligations[intentID]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// RecordDrift appends a detected drift event to the store's history.
func (s *Store) RecordDrift(event model.DriftEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driftEvents = append(s.driftEvents, event)
}

// MarkReconciled records the wall-clock time of the most recently completed
// reconciliation tick.
func (s *Store) MarkReconciled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReconciled = time.Now().UTC()
}

// LastReconciled returns the time of the last completed tick.
func (s *Store) LastReconciled() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReconciled
}

// Snapshot returns a point-in-time copy of all entities keyed by id, for
// embedding in a lineage record's world_state_snapshot.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.entities))
	for id, e := range s.entities {
		out[id] = e.Clone()
	}
	return out
}

// Entities returns a copy of the full entity map, for the reconciler's scan.
func (s *Store) Entities() map[string]model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Entity, len(s.entities))
	for id, e := range s.entities {
		out[id] = e.Clone()
	}
	return out
}

// ApplyExecution merges updates into an existing entity's properties and
// bumps last_updated. No-op if the entity does not exist.
func (s *Store) ApplyExecution(entityID string, updates map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return
	}
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	for k, v := range updates {
		e.Properties[k] = v
	}
	e.LastUpdated = time.Now().UTC()
	s.entities[entityID] = e
}
