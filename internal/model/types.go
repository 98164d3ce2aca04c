// Package model holds the data types shared across the autonomy kernel:
// entities, intents, constraints, proposals, decisions, and lineage records.
package model

import (
	"time"

	"github.com/Masterminds/semver/v3"
)

// Entity is a world-model record keyed by a stable id, carrying an open
// properties bag plus the set of intents that obligate it.
type Entity struct {
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	Properties  map[string]any         `json:"properties"`
	Source      string                 `json:"source"`
	Confidence  float64                `json:"confidence"`
	LastUpdated time.Time              `json:"last_updated"`
	Obligations map[string]struct{}    `json:"-"`
	ObligationsList []string           `json:"obligations"`
}

// Clone returns a deep-enough copy safe to hand outside the store's lock.
func (e Entity) Clone() Entity {
	props := make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	obl := make(map[string]struct{}, len(e.Obligations))
	list := make([]string, 0, len(e.Obligations))
	for k := range e.Obligations {
		obl[k] = struct{}{}
		list = append(list, k)
	}
	e.Properties = props
	e.Obligations = obl
	e.ObligationsList = list
	return e
}

// Intent is an operator-declared objective plus its constraints.
type Intent struct {
	ID              string       `json:"id"`
	Objective       string       `json:"objective"`
	Priority        int          `json:"priority"` // 1..100
	HardConstraints []Constraint `json:"hard_constraints"`
	SoftConstraints []Constraint `json:"soft_constraints"`
	CostCeiling     *float64     `json:"cost_ceiling,omitempty"`
	CreatedBy       string       `json:"created_by"`
	CreatedAt       time.Time    `json:"created_at"`
	Active          bool         `json:"active"`
}

// AllConstraints returns hard and soft constraints concatenated.
func (i Intent) AllConstraints() []Constraint {
	out := make([]Constraint, 0, len(i.HardConstraints)+len(i.SoftConstraints))
	out = append(out, i.HardConstraints...)
	out = append(out, i.SoftConstraints...)
	return out
}

// ConstraintType distinguishes hard (blocking) from soft (recorded) rules.
type ConstraintType string

const (
	ConstraintHard ConstraintType = "HARD"
	ConstraintSoft ConstraintType = "SOFT"
)

// ActivationKind is the temporal-authority discriminator for a Constraint.
type ActivationKind string

const (
	ActivationAlways           ActivationKind = "always"
	ActivationCronSchedule     ActivationKind = "cron_schedule"
	ActivationEmergencyOverride ActivationKind = "emergency_override"
)

// Activation is a constraint's Policy Activation: always-on, or cron-gated.
type Activation struct {
	Kind         ActivationKind `json:"kind"`
	CronSchedule string         `json:"cron_schedule,omitempty"`
}

// Constraint is a named governance rule, hard or soft, with a temporal
// activation window. CELExpression is the SUPPLEMENTED extension point for
// operator-authored custom rules (evaluated in addition to, never instead of,
// the three builtin rules).
type Constraint struct {
	Name          string          `json:"name"`
	Type          ConstraintType  `json:"type"`
	Description   string          `json:"description"`
	Activation    Activation      `json:"activation"`
	CELExpression string          `json:"cel_expression,omitempty"`
	Version       *semver.Version `json:"-"`
}

// PlannedAction is a single step of a StrategyProposal.
type PlannedAction struct {
	ActionType      string         `json:"action_type"`
	Target          string         `json:"target"` // entity id
	Parameters      map[string]any `json:"parameters,omitempty"`
	RequiresConsent bool           `json:"requires_consent"`
	Reversible      bool           `json:"reversible"`
	RiskScore       int            `json:"risk_score"` // 1..10
}

// StrategyProposal is one attempt produced by the Strategy Generator.
type StrategyProposal struct {
	ID               string          `json:"id"`
	IntentID         string          `json:"intent_id"`
	AttemptNumber    int             `json:"attempt_number"`
	PlanDescription  string          `json:"plan_description"`
	Actions          []PlannedAction `json:"actions"`
	EstimatedCost    float64         `json:"estimated_cost"`
	Rationale        string          `json:"rationale"`
	PriorRejectionID string          `json:"prior_rejection_id,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// MaxRiskScore returns the maximum risk_score across actions, defaulting to 1.
func (p StrategyProposal) MaxRiskScore() int {
	max := 1
	for _, a := range p.Actions {
		if a.RiskScore > max {
			max = a.RiskScore
		}
	}
	return max
}

// Verdict is the outcome of a governance evaluation.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
	VerdictEscalate Verdict = "ESCALATE"
)

// AuthorizationLevel is the graduated autonomy tier, L0 (fully autonomous)
// through L4 (human decides).
type AuthorizationLevel string

const (
	L0 AuthorizationLevel = "L0"
	L1 AuthorizationLevel = "L1"
	L2 AuthorizationLevel = "L2"
	L3 AuthorizationLevel = "L3"
	L4 AuthorizationLevel = "L4"
)

// TemporalContext records when and under what wall-clock frame a decision
// was made.
type TemporalContext struct {
	EvaluatedAt     time.Time `json:"evaluated_at"`
	Hour            int       `json:"hour"`
	Weekday         string    `json:"weekday"`
	IsBusinessHours bool      `json:"is_business_hours"`
}

// UncertaintyDeclaration is required on every GovernanceDecision.
type UncertaintyDeclaration struct {
	Assumptions     []string        `json:"assumptions"`
	WatchConditions []string        `json:"watch_conditions"`
	EvidenceBasis   []EvidenceEntry `json:"evidence_basis"`
	KnownUnknowns   []string        `json:"known_unknowns"`
	ConfidenceLevel float64         `json:"confidence_level"`
}

// EvidenceEntry documents one target entity's provenance for an uncertainty
// declaration.
type EvidenceEntry struct {
	EntityID    string    `json:"entity_id"`
	Source      string    `json:"source"`
	LastUpdated time.Time `json:"last_updated"`
}

// PhaseConfig is one stage of a multi-phase authorization chain.
type PhaseConfig struct {
	Name                  string             `json:"name"`
	DefaultAuthLevel      AuthorizationLevel `json:"default_authorization_level"`
	EscalationOnDeviation bool               `json:"escalation_on_deviation"`
}

// EscalationConfig controls how an action type's ESCALATE verdicts route.
type EscalationConfig struct {
	Queue string `json:"queue,omitempty"`
}

// ActionTypeSpec is a governed action category: its risk profile and default
// authorization level.
type ActionTypeSpec struct {
	TypeID                  string             `json:"type_id"`
	Description             string             `json:"description"`
	RiskProfile             RiskProfile        `json:"risk_profile"`
	DefaultAuthorizationLevel AuthorizationLevel `json:"default_authorization_level"`
	ApplicablePolicies      []string           `json:"applicable_policies,omitempty"`
	EscalationConfig        EscalationConfig   `json:"escalation_config,omitempty"`
	PhaseConfig             []PhaseConfig      `json:"phase_config,omitempty"`
	RegisteredBy            string             `json:"registered_by"`
	RegisteredAt            time.Time          `json:"registered_at"`
	Version                 *semver.Version    `json:"-"`
}

// RiskProfile summarizes the blast radius of an action type.
type RiskProfile struct {
	ImpactScope   string `json:"impact_scope"`   // local | team | org
	Reversibility string `json:"reversibility"`  // reversible | partially_reversible | irreversible
	BlastRadius   string `json:"blast_radius"`   // narrow | moderate | wide
}

// PhaseResult records the verdict of one phase of a multi-phase chain.
type PhaseResult struct {
	Phase   string  `json:"phase"`
	Verdict Verdict `json:"verdict"`
	Level   AuthorizationLevel `json:"authorization_level"`
}

// GovernanceDecision is the output of Evaluate.
type GovernanceDecision struct {
	ID                  string                  `json:"id"`
	ProposalID          string                  `json:"proposal_id"`
	Verdict             Verdict                 `json:"verdict"`
	ViolatedConstraints []string                `json:"violated_constraints"`
	RejectionReason     string                  `json:"rejection_reason,omitempty"`
	RejectionDetail     string                  `json:"rejection_detail,omitempty"`
	AuthorizationLevel  AuthorizationLevel      `json:"authorization_level"`
	PolicySnapshot      []string                `json:"policy_snapshot"`
	TemporalContext     TemporalContext         `json:"temporal_context"`
	Uncertainty         UncertaintyDeclaration  `json:"uncertainty"`
	ActionTypeID        string                  `json:"action_type_id,omitempty"`
	PhaseResults        []PhaseResult           `json:"phase_results,omitempty"`
}

// ArtifactProvenance is an optional attachment on a lineage record.
type ArtifactProvenance struct {
	ArtifactID           string `json:"artifact_id"`
	ArtifactType         string `json:"artifact_type"`
	IntegrityHash        string `json:"integrity_hash"` // hex SHA-256
	ValidationEvidence   string `json:"validation_evidence,omitempty"`
	ValidationIndependent bool  `json:"validation_independent"`
	ValidatingEntity     string `json:"validating_entity,omitempty"`
	QualityUncertainty   string `json:"quality_uncertainty,omitempty"`
}

// ExecutionResult is the Executor Dispatcher's report for one proposal.
type ExecutionResult struct {
	ProposalID         string                  `json:"proposal_id"`
	ActionsCompleted   int                     `json:"actions_completed"`
	ActionsFailed      int                     `json:"actions_failed"`
	Success            bool                    `json:"success"`
	WorldStateChanges  []string                `json:"world_state_changes,omitempty"`
	ExecutedAt         time.Time               `json:"executed_at"`
	ExecutionDuration  time.Duration           `json:"execution_duration"`
	ActionResults      []ActionResult          `json:"action_results,omitempty"`
}

// ActionResult is the per-action outcome within an ExecutionResult.
type ActionResult struct {
	ActionType string        `json:"action_type"`
	Target     string        `json:"target"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// LineageRecord is one durable, hash-chained audit entry for a full CGA
// cycle (all attempts of one drift event).
type LineageRecord struct {
	ID                       string                  `json:"id"`
	CycleID                  string                  `json:"cycle_id"`
	IntentID                 string                  `json:"intent_id"`
	Intent                   Intent                  `json:"intent"`
	DriftDetected            string                  `json:"drift_detected"`
	DriftSeverity            int                     `json:"drift_severity"`
	WorldStateSnapshot       map[string]any          `json:"world_state_snapshot"`
	Proposals                []StrategyProposal      `json:"proposals"`
	GovernanceDecisions      []GovernanceDecision    `json:"governance_decisions"`
	FinalApprovedProposal    *StrategyProposal       `json:"final_approved_proposal,omitempty"`
	ExecutionResult          *ExecutionResult        `json:"execution_result,omitempty"`
	ExecutionSuccess         bool                    `json:"execution_success"`
	TotalAttempts            int                     `json:"total_attempts"`
	EscalatedToHuman         bool                    `json:"escalated_to_human"`
	ResolvedAt               *time.Time              `json:"resolved_at,omitempty"`
	ConflictingIntents       []string                `json:"conflicting_intents,omitempty"`
	PriorityOverrideApplied  bool                    `json:"priority_override_applied"`
	DeprioritizedIntent      string                  `json:"deprioritized_intent,omitempty"`
	DeprioritizationRationale string                 `json:"deprioritization_rationale,omitempty"`
	Uncertainty              *UncertaintyDeclaration `json:"uncertainty,omitempty"`
	ArtifactProvenance       *ArtifactProvenance     `json:"artifact_provenance,omitempty"`
	Signature                string                  `json:"signature"`
	PriorRecordHash          string                  `json:"prior_record_hash,omitempty"`
	CreatedAt                time.Time               `json:"created_at"`
}

// OperationalHeuristic is a SUPPLEMENTED, read-only output of the learning
// engine: advisory only, never consulted by governance.
type OperationalHeuristic struct {
	ID              string    `json:"id"`
	PatternSignature string   `json:"pattern_signature"`
	HitCount        int       `json:"hit_count"`
	SuccessRate     float64   `json:"success_rate"`
	Status          string    `json:"status"` // active | retired
	FirstSeen       time.Time `json:"first_seen"`
	LastUpdated     time.Time `json:"last_updated"`
}

// EscalationDescriptor is a SUPPLEMENTED named type for the reconciler's
// human escalation queue entries.
type EscalationDescriptor struct {
	ID                string    `json:"id"`
	CycleID           string    `json:"cycle_id"`
	LineageID         string    `json:"lineage_id"`
	IntentID          string    `json:"intent_id"`
	EntityID          string    `json:"entity_id"`
	DriftDescription  string    `json:"drift_description"`
	ProposalsTried    int       `json:"proposals_tried"`
	RejectionReasons  []string  `json:"rejection_reasons"`
	Status            string    `json:"status"` // pending | resolved
	CreatedAt         time.Time `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	Resolution        string    `json:"resolution,omitempty"`
	ResolvedBy        string    `json:"resolved_by,omitempty"`
	// ResolutionSignature is a hex-encoded Ed25519 signature over the
	// resolution (id, resolution, resolved_by, resolved_at), countersigning
	// the human action with a key scoped to ledger.PurposeEscalationResolution.
	// Empty when no Keyring is configured.
	ResolutionSignature string `json:"resolution_signature,omitempty"`
}

// DriftEvent is a detected deviation from declared intent, emitted by a
// reconciler drift rule.
type DriftEvent struct {
	EntityID             string    `json:"entity_id"`
	IntentID             string    `json:"intent_id"`
	Description          string    `json:"description"`
	Severity             int       `json:"severity"`
	SLARemainingMinutes  *float64  `json:"sla_remaining_minutes,omitempty"`
	DetectedAt           time.Time `json:"detected_at"`
}

// DampeningState is the per-entity cooldown/circuit-breaker record.
type DampeningState struct {
	EntityID            string    `json:"entity_id"`
	LastInterventionAt  time.Time `json:"last_intervention_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CooldownUntil       time.Time `json:"cooldown_until"`
	CircuitBroken       bool      `json:"circuit_broken"`
}
