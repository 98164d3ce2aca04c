package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASMGenerator runs a sandboxed, operator-supplied strategy generator
// compiled to WebAssembly. It satisfies the same Generator contract as
// RuleLadder, for operators who want a custom (non-LLM, non-ladder)
// generator without recompiling the kernel.
//
// ABI: the guest module exports `alloc(size uint32) uint32` and
// `generate(reqPtr, reqLen uint32) uint64` where the return value packs a
// (ptr<<32 | len) pair pointing at a JSON-encoded StrategyProposal written
// into the guest's own linear memory.
type WASMGenerator struct {
	runtime wazero.Runtime
	module  wazero.CompiledModule
	ctx     context.Context
}

type generateRequest struct {
	Intent        model.Intent            `json:"intent"`
	Drift         model.DriftEvent        `json:"drift"`
	Accumulated   []AccumulatedRejection  `json:"accumulated"`
	AttemptNumber int                     `json:"attempt_number"`
}

// LoadWASMGenerator compiles the module at path for later instantiation.
// The runtime grants WASI stdio only — no filesystem or network access —
// matching the sandboxing requirement for untrusted strategy plugins.
func LoadWASMGenerator(ctx context.Context, path string) (*WASMGenerator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("strategy: read wasm module: %w", err)
	}
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("strategy: instantiate wasi: %w", err)
	}
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("strategy: compile wasm module: %w", err)
	}
	return &WASMGenerator{runtime: rt, module: compiled, ctx: ctx}, nil
}

// Close releases the wazero runtime and any instantiated modules.
func (w *WASMGenerator) Close() error {
	return w.runtime.Close(w.ctx)
}

// Generate instantiates a fresh guest instance per call, so plugin state
// never leaks across drift events, marshals the request to JSON, and
// unmarshals the guest's JSON response. Any ABI or decode failure falls
// back to the safest rung rather than blocking the CGA loop.
func (w *WASMGenerator) Generate(intent model.Intent, _ map[string]model.Entity, drift model.DriftEvent, accumulated []AccumulatedRejection, _ []model.StrategyProposal, attemptNumber int) model.StrategyProposal {
	req := generateRequest{Intent: intent, Drift: drift, Accumulated: accumulated, AttemptNumber: attemptNumber}
	payload, err := json.Marshal(req)
	if err != nil {
		return fallbackEscalation(intent, drift, attemptNumber)
	}

	instance, err := w.runtime.InstantiateModule(w.ctx, w.module, wazero.NewModuleConfig())
	if err != nil {
		return fallbackEscalation(intent, drift, attemptNumber)
	}
	defer instance.Close(w.ctx)

	result, err := callGenerate(w.ctx, instance, payload)
	if err != nil {
		return fallbackEscalation(intent, drift, attemptNumber)
	}

	var proposal model.StrategyProposal
	if err := json.Unmarshal(result, &proposal); err != nil {
		return fallbackEscalation(intent, drift, attemptNumber)
	}
	proposal.IntentID = intent.ID
	proposal.AttemptNumber = attemptNumber
	proposal.GeneratedAt = time.Now()
	return proposal
}

func callGenerate(ctx context.Context, instance api.Module, payload []byte) ([]byte, error) {
	alloc := instance.ExportedFunction("alloc")
	generate := instance.ExportedFunction("generate")
	if alloc == nil || generate == nil {
		return nil, fmt.Errorf("strategy: wasm module missing alloc/generate exports")
	}

	allocRes, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil || len(allocRes) == 0 {
		return nil, fmt.Errorf("strategy: alloc failed: %w", err)
	}
	reqPtr := uint32(allocRes[0])

	mem := instance.Memory()
	if !mem.Write(reqPtr, payload) {
		return nil, fmt.Errorf("strategy: failed to write request into guest memory")
	}

	packed, err := generate.Call(ctx, uint64(reqPtr), uint64(len(payload)))
	if err != nil || len(packed) == 0 {
		return nil, fmt.Errorf("strategy: generate call failed: %w", err)
	}

	respPtr := uint32(packed[0] >> 32)
	respLen := uint32(packed[0])
	respBytes, ok := mem.Read(respPtr, respLen)
	if !ok {
		return nil, fmt.Errorf("strategy: failed to read response from guest memory")
	}
	out := make([]byte, len(respBytes))
	copy(out, respBytes)
	return out, nil
}

func fallbackEscalation(intent model.Intent, drift model.DriftEvent, attemptNumber int) model.StrategyProposal {
	return model.StrategyProposal{
		IntentID:        intent.ID,
		AttemptNumber:   attemptNumber,
		PlanDescription: "wasm strategy plugin unavailable; falling back to human hand-off",
		Actions: []model.PlannedAction{
			{ActionType: "route_to_human", Target: drift.EntityID, RiskScore: 2, Reversible: true},
		},
		EstimatedCost: 5.00,
		Rationale:     "plugin call failed; defaulting to the safest rung",
		GeneratedAt:   time.Now(),
	}
}
