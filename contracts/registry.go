// Package contracts implements the Tool Registry (C2): a process-wide,
// lazily-initialized catalog of Tool Contracts paired with their invokers.
// Grounded on the teacher's features/policy/basic allow/block engine for the
// filtering idiom and on original_source/backend/app/cwr/tools/registry.py
// for the registry's operations (get/list_all/list_by_category/list_by_tag).
package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

// Invoker is the uniform invocation interface every registered tool
// implements (§4.8): given an ambient context and resolved params, produce a
// StepResult. The engine guarantees params matches the declared input
// schema once validation has passed; invokers still enforce constraints the
// schema subset cannot express (enum combinations, cross-field rules).
type Invoker interface {
	Invoke(ctx context.Context, ictx InvocationContext, params map[string]any) (procedure.StepResult, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, ictx InvocationContext, params map[string]any) (procedure.StepResult, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, ictx InvocationContext, params map[string]any) (procedure.StepResult, error) {
	return f(ctx, ictx, params)
}

// InvocationContext is the ambient data every tool invocation receives
// alongside its resolved params (§4.5 point 2): organization identity,
// dry-run flag, cancellation, and dependency handles the tool may need
// (e.g. an LLM client). It deliberately carries no reference to the
// procedure engine's own types so tool packages stay decoupled from it.
type InvocationContext struct {
	RunID   string
	OrgID   string
	DryRun  bool
	Deps    map[string]any
}

// entry pairs a contract with its invoker and a compiled view of its
// schemas, cached on first request per §4.1 ("Contracts are cached on first
// request").
type entry struct {
	contract procedure.Contract
	invoker  Invoker

	compileOnce  sync.Once
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
	compileErr   error

	// paramsSchema is input_schema compiled with Required cleared, used by
	// Phase F to type/enum-check whatever subset of a step's params is
	// already concrete at validation time (§4.3 Phase F). MissingRequiredParam
	// is enforced separately, directly against contract.InputSchema.Required,
	// so a templated-but-required param never trips a spurious jsonschema
	// "required" failure here.
	paramsOnce   sync.Once
	paramsSchema *jsonschema.Schema
	paramsErr    error
}

// Registry is the process-wide tool catalog. The zero value is not usable;
// construct with New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	initOnce sync.Once
	initFunc func(*Registry)
}

// New constructs an empty Registry. initFunc, if non-nil, is invoked exactly
// once — the first time the registry is used — to install built-in tools
// (lazy one-shot initialization per §4.1).
func New(initFunc func(*Registry)) *Registry {
	return &Registry{entries: map[string]*entry{}, initFunc: initFunc}
}

// ensureInit performs the lazy one-shot initialization.
func (r *Registry) ensureInit() {
	r.initOnce.Do(func() {
		if r.initFunc != nil {
			r.initFunc(r)
		}
	})
}

// Register installs or replaces a contract's entry. Replacing an existing
// name is allowed (§4.1: "further register calls may replace an existing
// entry with a warning") — callers that care about the warning should check
// Has before calling Register and log accordingly; the registry itself does
// not own a logger.
func (r *Registry) Register(contract procedure.Contract, invoker Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[contract.Name] = &entry{contract: contract, invoker: invoker}
}

// Has reports whether name is already registered, without triggering
// lazy initialization side effects beyond the first call.
func (r *Registry) Has(name string) bool {
	r.ensureInit()
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Get looks up a contract and its invoker by name.
func (r *Registry) Get(name string) (procedure.Contract, Invoker, bool) {
	r.ensureInit()
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return procedure.Contract{}, nil, false
	}
	return e.contract, e.invoker, true
}

// ListAll returns every registered contract, sorted by name for determinism.
func (r *Registry) ListAll() []procedure.Contract {
	r.ensureInit()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]procedure.Contract, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.contract)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByCategory returns every registered contract in category c, sorted by
// name.
func (r *Registry) ListByCategory(c procedure.Category) []procedure.Contract {
	all := r.ListAll()
	out := make([]procedure.Contract, 0, len(all))
	for _, ct := range all {
		if ct.Category == c {
			out = append(out, ct)
		}
	}
	return out
}

// ListByTag returns every registered contract carrying tag t, sorted by
// name.
func (r *Registry) ListByTag(t string) []procedure.Contract {
	all := r.ListAll()
	out := make([]procedure.Contract, 0, len(all))
	for _, ct := range all {
		if ct.HasTag(t) {
			out = append(out, ct)
		}
	}
	return out
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	all := r.ListAll()
	out := make([]string, 0, len(all))
	for _, ct := range all {
		out = append(out, ct.Name)
	}
	return out
}

// Categories returns the distinct categories present in the registry,
// sorted.
func (r *Registry) Categories() []string {
	r.ensureInit()
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	for _, e := range r.entries {
		seen[string(e.contract.Category)] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// compiled lazily compiles the contract's input/output schemas via
// santhosh-tekuri/jsonschema, following the same Compiler/AddResource/
// Compile idiom the teacher uses in registry/service.go. Compilation
// failures are sticky and surfaced to callers that specifically want the
// compiled schema (e.g. builtins exercising full JSON-Schema semantics
// beyond what ValidateParams' Required-relaxed variant checks); they never
// block Get/ListAll.
func (r *Registry) compiled(name string) (input, output *jsonschema.Schema, err error) {
	r.ensureInit()
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("contracts: unknown tool %q", name)
	}
	e.compileOnce.Do(func() {
		e.inputSchema, e.outputSchema, e.compileErr = compileSchemaPair(e.contract)
	})
	return e.inputSchema, e.outputSchema, e.compileErr
}

// CompiledInputSchema returns the compiled jsonschema.Schema for a tool's
// input_schema, compiling on first request and caching thereafter.
func (r *Registry) CompiledInputSchema(name string) (*jsonschema.Schema, error) {
	in, _, err := r.compiled(name)
	return in, err
}

// ValidateParams type/enum-checks params against function's declared
// input_schema via jsonschema.Schema.Validate — the same Compiler/
// AddResource/Validate idiom the teacher uses in
// registry/service.go's validatePayloadJSONAgainstSchema. Phase F calls this
// with only the params it already knows are concrete (template markers are
// filtered out by the caller before params ever reaches here); Required is
// dropped from the compiled schema so an omitted-but-templated param never
// produces a spurious failure.
func (r *Registry) ValidateParams(name string, params map[string]any) error {
	r.ensureInit()
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("contracts: unknown tool %q", name)
	}
	e.paramsOnce.Do(func() {
		relaxed := e.contract.InputSchema
		relaxed.Required = nil
		e.paramsSchema, e.paramsErr = compileSchema(e.contract.Name+"#params", relaxed)
	})
	if e.paramsErr != nil {
		return e.paramsErr
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return e.paramsSchema.Validate(doc)
}

func compileSchemaPair(c procedure.Contract) (input, output *jsonschema.Schema, err error) {
	input, err = compileSchema(c.Name+"#input", c.InputSchema)
	if err != nil {
		return nil, nil, fmt.Errorf("compile input schema for %s: %w", c.Name, err)
	}
	output, err = compileSchema(c.Name+"#output", c.OutputSchema)
	if err != nil {
		return nil, nil, fmt.Errorf("compile output schema for %s: %w", c.Name, err)
	}
	return input, output, nil
}

func compileSchema(resourceID string, s procedure.Schema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceID, doc); err != nil {
		return nil, err
	}
	return c.Compile(resourceID)
}
