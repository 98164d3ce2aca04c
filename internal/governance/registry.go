package governance

import (
	"sync"
	"time"

	"github.com/gap-kernel/gap/internal/model"
)

// ActionTypeRegistry is the closed set of governed action categories. Five
// baseline entries ship; registration is itself a governed action and must
// record who registered the type and when.
type ActionTypeRegistry struct {
	mu    sync.RWMutex
	specs map[string]model.ActionTypeSpec
}

// NewActionTypeRegistry returns a registry seeded with the five baseline
// action types.
func NewActionTypeRegistry() *ActionTypeRegistry {
	r := &ActionTypeRegistry{specs: make(map[string]model.ActionTypeSpec)}
	now := time.Now().UTC()
	for _, spec := range []model.ActionTypeSpec{
		{
			TypeID:      "task_execution",
			Description: "Routine task execution within declared bounds.",
			RiskProfile: model.RiskProfile{ImpactScope: "local", Reversibility: "reversible", BlastRadius: "narrow"},
			DefaultAuthorizationLevel: model.L0,
			RegisteredBy: "system", RegisteredAt: now,
		},
		{
			TypeID:      "skill_modification",
			Description: "Modification of a capability or skill definition.",
			RiskProfile: model.RiskProfile{ImpactScope: "team", Reversibility: "partially_reversible", BlastRadius: "moderate"},
			DefaultAuthorizationLevel: model.L2,
			RegisteredBy: "system", RegisteredAt: now,
		},
		{
			TypeID:      "drift_reconciliation",
			Description: "Reconciler-driven corrective action for detected drift.",
			RiskProfile: model.RiskProfile{ImpactScope: "local", Reversibility: "reversible", BlastRadius: "narrow"},
			DefaultAuthorizationLevel: model.L1,
			RegisteredBy: "system", RegisteredAt: now,
		},
		{
			TypeID:      "escalation",
			Description: "Hand-off of a decision to a human operator.",
			RiskProfile: model.RiskProfile{ImpactScope: "local", Reversibility: "reversible", BlastRadius: "narrow"},
			DefaultAuthorizationLevel: model.L0,
			RegisteredBy: "system", RegisteredAt: now,
		},
		{
			TypeID:      "policy_proposal",
			Description: "Proposed change to governance policy; never auto-applied.",
			RiskProfile: model.RiskProfile{ImpactScope: "org", Reversibility: "reversible", BlastRadius: "wide"},
			DefaultAuthorizationLevel: model.L4,
			RegisteredBy: "system", RegisteredAt: now,
		},
	} {
		r.specs[spec.TypeID] = spec
	}
	return r
}

// Register adds or replaces an action type spec, stamping who registered it
// and when.
func (r *ActionTypeRegistry) Register(spec model.ActionTypeSpec, registeredBy string) model.ActionTypeSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec.RegisteredBy = registeredBy
	spec.RegisteredAt = time.Now().UTC()
	r.specs[spec.TypeID] = spec
	return spec
}

// Get returns the spec for a type_id, if registered.
func (r *ActionTypeRegistry) Get(typeID string) (model.ActionTypeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[typeID]
	return s, ok
}

// IsRegistered reports whether a type_id is known.
func (r *ActionTypeRegistry) IsRegistered(typeID string) bool {
	_, ok := r.Get(typeID)
	return ok
}

// List returns every registered action type spec.
func (r *ActionTypeRegistry) List() []model.ActionTypeSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ActionTypeSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	return out
}
