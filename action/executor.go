// Package action implements ActionExecutor: the single entry point that
// turns "run this CDP mutation" into a structured ActionDeltaPayload. Its
// internal pipeline (pre-validate -> act -> stabilize -> snapshot ->
// format) is expressed as a kit.Chain of kit.Middleware, the same
// composition shape the kit package was built to support.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/domstate/delta"
	"github.com/hazyhaar/domstate/frametracker"
	"github.com/hazyhaar/domstate/idgen"
	"github.com/hazyhaar/domstate/kit"
	"github.com/hazyhaar/domstate/pagestate"
	"github.com/hazyhaar/domstate/snapshot"
	"github.com/hazyhaar/domstate/stabilize"
	"github.com/hazyhaar/domstate/staleretry"
	"github.com/hazyhaar/domstate/versionmanager"
)

// Status is the action.status wire value.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Info names the action and its outcome in the wire payload.
type Info struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Result is the ActionDeltaPayload wire shape.
type Result struct {
	Action    Info           `json:"action"`
	PreAction *delta.Payload `json:"pre_action,omitempty"`
	Result    delta.Payload  `json:"result"`
	Warnings  []string       `json:"warnings,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Target identifies the element an element-targeted Fn acts on. Executor
// passes the backend_node_id it currently believes is live; on a
// stale-element retry it calls Fn again with a freshly resolved Target.
type Target struct {
	BackendNodeID int64
	Label         string
	Kind          snapshot.Kind
}

// Fn performs the actual CDP mutation (click, type, hover, select,
// scroll-into-view, ...). target is the zero value for page-level actions
// that don't address a single element.
type Fn func(ctx context.Context, target Target) error

// Default stabilization waits, reused here since ActionExecutor owns
// when stabilization runs, not how long it waits.
const (
	DefaultNetWaitTimeout = stabilize.DefaultActionWait
	DefaultNetQuietWindow = stabilize.DefaultQuietWindowNet
)

// Config configures an Executor.
type Config struct {
	NetWaitTimeout time.Duration
	NetQuietWindow time.Duration
	Logger         *slog.Logger
	RequestIDGen   idgen.Generator
}

func (c *Config) defaults() {
	if c.NetWaitTimeout <= 0 {
		c.NetWaitTimeout = DefaultNetWaitTimeout
	}
	if c.NetQuietWindow <= 0 {
		c.NetQuietWindow = DefaultNetQuietWindow
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.RequestIDGen == nil {
		c.RequestIDGen = idgen.NanoID(12)
	}
}

// Executor runs one page's actions. Actions on the same page must never
// overlap; Execute holds mu for its whole duration, so a concurrent call
// simply queues behind the in-flight one rather than running alongside it.
type Executor struct {
	cfg Config

	vm       *versionmanager.Manager
	state    *pagestate.State
	tracker  *frametracker.Tracker
	compiler versionmanager.Compiler // recompile target for stale-element retry
	dom      *stabilize.DomStabilizer
	net      *stabilize.NetworkIdleTracker
	format   *delta.Formatter

	mu sync.Mutex
}

// New returns an Executor wired to one page's components. compiler is the
// same versionmanager.Compiler vm itself was built with; Executor calls it
// directly only for the stale-element retry's re-lookup, never otherwise.
func New(vm *versionmanager.Manager, state *pagestate.State, tracker *frametracker.Tracker, compiler versionmanager.Compiler, dom *stabilize.DomStabilizer, net *stabilize.NetworkIdleTracker, cfg Config) *Executor {
	cfg.defaults()
	return &Executor{
		cfg:      cfg,
		vm:       vm,
		state:    state,
		tracker:  tracker,
		compiler: compiler,
		dom:      dom,
		net:      net,
		format:   delta.New(),
	}
}

// pipelineState threads through the middleware chain. Each stage reads
// and mutates it; the final result is read back out once the chain runs.
type pipelineState struct {
	actionName   string
	target       *Target
	agentVersion *uint64
	fn           Fn

	preActionVersion       uint64
	preDelta               *delta.Payload
	baselineAdvancePending bool
	baselineNodes          []snapshot.ReadableNode

	warnings []string
	result   Result
}

// Execute runs the full pipeline for one action. target is nil for
// page-level actions; it must be set for element-targeted ones so a
// stale-backend-id failure can be retried against a freshly resolved node.
func (e *Executor) Execute(ctx context.Context, actionName string, target *Target, agentVersion *uint64, fn Fn) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A caller embedding Executor behind its own request boundary may
	// already have set a request id (kit.WithRequestID); generate one here
	// only if the chain hasn't seen one yet, so pipeline log lines always
	// correlate to a single Execute call.
	reqID := kit.GetRequestID(ctx)
	if reqID == "" {
		reqID = e.cfg.RequestIDGen()
		ctx = kit.WithRequestID(ctx, reqID)
	}
	log := e.cfg.Logger.With("request_id", reqID, "action", actionName)

	ps := &pipelineState{actionName: actionName, target: target, agentVersion: agentVersion, fn: fn}

	chain := kit.Chain(e.preValidate(), e.act(), e.stabilize(), e.computeAndFormat())
	endpoint := chain(terminalEndpoint)

	out, err := endpoint(ctx, ps)
	if err != nil {
		log.Error("action: pipeline failed", "error", err)
		return Result{}, err
	}
	result := out.(*pipelineState).result
	log.Debug("action: completed", "status", result.Action.Status)
	return result, nil
}

func terminalEndpoint(ctx context.Context, req any) (any, error) {
	return req, nil
}

// preValidate runs capture_if_changed + validate_agent_state,
// short-circuiting the rest of the chain on stale_no_history and building
// a pre_delta on stale_with_history.
func (e *Executor) preValidate() kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			ps := req.(*pipelineState)

			versioned, _, err := e.vm.CaptureIfChanged(ctx)
			if err != nil {
				return nil, fmt.Errorf("action: pre-validate capture: %w", err)
			}
			ps.preActionVersion = versioned.Version

			switch e.vm.ValidateAgentState(ps.agentVersion) {
			case versionmanager.StatusStaleNoHistory:
				e.state.AdvanceBaselineTo(versioned.Snapshot.Nodes)
				payload, ferr := e.format.Format(
					pagestate.Decision{Kind: pagestate.DecisionFull, Snapshot: versioned.Snapshot, Reason: pagestate.ReasonStaleAgentState},
					e.tracker.DrainInvalidations(), e.tracker.MainFrameID(),
				)
				if ferr != nil {
					return nil, fmt.Errorf("action: format stale-no-history snapshot: %w", ferr)
				}
				ps.result = Result{
					Action: Info{Name: ps.actionName, Status: StatusSkipped},
					Result: payload,
					Error:  "stale agent state",
				}
				return ps, nil

			case versionmanager.StatusStaleWithHistory:
				if old, ok := e.vm.GetVersion(*ps.agentVersion); ok {
					diff := pagestate.Diff(old.Snapshot.Nodes, versioned.Snapshot.Nodes)
					payload, ferr := e.format.Format(
						pagestate.Decision{Kind: pagestate.DecisionDelta, Context: pagestate.ContextBase, Diff: diff},
						nil, e.tracker.MainFrameID(),
					)
					if ferr == nil {
						payload.Summary = "Before action: " + payload.Summary
						ps.preDelta = &payload
					}
				}
			}

			ps.baselineAdvancePending = true
			ps.baselineNodes = versioned.Snapshot.Nodes

			return next(ctx, ps)
		}
	}
}

// act runs Fn, and on a classified stale-backend-id failure for an
// element-targeted action, re-resolves the element once and retries.
func (e *Executor) act() kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			ps := req.(*pipelineState)

			target := Target{}
			if ps.target != nil {
				target = *ps.target
			}

			actErr := ps.fn(ctx, target)
			retryNote := ""

			if actErr != nil && ps.target != nil && staleretry.Classify(actErr) {
				if fresh, found := e.relookupTarget(ctx, *ps.target); found {
					if retryErr := ps.fn(ctx, fresh); retryErr == nil {
						actErr = nil
						retryNote = "element was stale; automatically retried with fresh reference"
					} else {
						actErr = retryErr
					}
				}
			}

			if actErr != nil {
				ps.result = Result{
					Action: Info{Name: ps.actionName, Status: StatusFailed},
					Result: delta.Payload{Type: delta.TypeNoChange, Summary: "action failed; references remain valid"},
					Error:  actErr.Error(),
				}
				return ps, nil
			}

			if ps.baselineAdvancePending {
				e.state.AdvanceBaselineTo(ps.baselineNodes)
			}

			ps.result = Result{Action: Info{Name: ps.actionName, Status: StatusCompleted}}
			if retryNote != "" {
				ps.result.Error = retryNote
			}
			return next(ctx, ps)
		}
	}
}

// relookupTarget re-compiles a fresh snapshot and finds a node with the
// same (label, kind) pair as target.
func (e *Executor) relookupTarget(ctx context.Context, target Target) (Target, bool) {
	base, err := e.compiler.Compile(ctx)
	if err != nil {
		return Target{}, false
	}
	for _, n := range base.Nodes {
		if n.Label == target.Label && n.Kind == target.Kind {
			return Target{BackendNodeID: n.BackendNodeID, Label: n.Label, Kind: n.Kind}, true
		}
	}
	return Target{}, false
}

// stabilize waits on the network first, since a settling XHR is often
// what triggers the DOM mutations DomStabilizer then watches for.
func (e *Executor) stabilize() kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			ps := req.(*pipelineState)

			if e.net != nil && !e.net.WaitForQuiet(ctx, e.cfg.NetWaitTimeout, e.cfg.NetQuietWindow) {
				ps.warnings = append(ps.warnings, "network did not settle before the wait timeout")
			}

			if e.dom != nil {
				if r := e.dom.WaitForStable(ctx); r.Status != stabilize.StatusStable {
					warning := r.Warning
					if warning == "" {
						warning = "dom did not settle before the wait timeout"
					}
					ps.warnings = append(ps.warnings, warning)
				}
			}

			return next(ctx, ps)
		}
	}
}

// computeAndFormat runs compute_response against the pre-action version
// (so a single post-action advance never looks like stale_no_history) and
// assembles the final payload.
func (e *Executor) computeAndFormat() kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			ps := req.(*pipelineState)

			decision, err := e.state.ComputeResponse(ctx, &ps.preActionVersion)
			if err != nil {
				return nil, fmt.Errorf("action: post-action compute_response: %w", err)
			}

			payload, err := e.format.Format(decision, e.tracker.DrainInvalidations(), e.tracker.MainFrameID())
			if err != nil {
				return nil, fmt.Errorf("action: format post-action payload: %w", err)
			}

			ps.result.PreAction = ps.preDelta
			ps.result.Result = payload
			ps.result.Warnings = ps.warnings

			return next(ctx, ps)
		}
	}
}
