// Package pack implements the Contract Pack Builder (C3): given a
// Generation Profile and the Tool Registry, produces the filtered,
// profile-aware contract list shown to upstream planners (§4.2). The
// validator does not consult a pack; the Executor checks each step's
// function against one at run time when its Profile is set. Grounded directly on
// original_source/backend/app/cwr/contracts/contract_pack.py (the 4-layer
// filter and the output-schema compaction rules) and on the teacher's
// features/policy/basic.Engine for the allow/block filtering idiom.
package pack

import (
	"encoding/json"
	"sort"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

// Profile is a Generation Profile: the policy bundle used to derive a
// contract pack (§3, §6 "Generation profile").
type Profile struct {
	Name             string   `json:"name" yaml:"name"`
	AllowedCategories []string `json:"allowed_categories" yaml:"allowed_categories"`
	BlockedTools      []string `json:"blocked_tools" yaml:"blocked_tools"`
	AllowSideEffects  bool     `json:"allow_side_effects" yaml:"allow_side_effects"`
}

func (p Profile) allowsCategory(c procedure.Category) bool {
	for _, a := range p.AllowedCategories {
		if a == string(c) {
			return true
		}
	}
	return false
}

func (p Profile) blocks(name string) bool {
	for _, b := range p.BlockedTools {
		if b == name {
			return true
		}
	}
	return false
}

// ProfileRegistry resolves named profiles (SPEC_FULL.md supplemented
// feature #2), generalized from original_source's
// governance/generation_profiles.get_profile lookup-by-name helper.
type ProfileRegistry struct {
	profiles map[string]Profile
}

// NewProfileRegistry builds a ProfileRegistry seeded with the built-in
// "default", "read_only" and "full_access" profiles plus the given named
// profiles, a given profile replacing a built-in of the same name.
func NewProfileRegistry(named ...Profile) *ProfileRegistry {
	r := &ProfileRegistry{profiles: map[string]Profile{}}
	r.profiles["default"] = DefaultProfile()
	r.profiles["read_only"] = ReadOnlyProfile()
	r.profiles["full_access"] = FullAccessProfile()
	for _, p := range named {
		r.profiles[p.Name] = p
	}
	return r
}

// Get resolves a profile by name, falling back to DefaultProfile when name
// is empty or unknown.
func (r *ProfileRegistry) Get(name string) Profile {
	if name == "" {
		return r.profiles["default"]
	}
	if p, ok := r.profiles[name]; ok {
		return p
	}
	return r.profiles["default"]
}

// DefaultProfile allows every category, blocks nothing, and permits
// side-effecting tools.
func DefaultProfile() Profile {
	return Profile{
		Name:              "default",
		AllowedCategories: []string{"llm", "logic", "search", "output", "notify", "compound", "utility", "flow"},
		AllowSideEffects:  true,
	}
}

// ReadOnlyProfile permits every category except side effects, for
// procedures that must never mutate external state.
func ReadOnlyProfile() Profile {
	p := DefaultProfile()
	p.Name = "read_only"
	p.AllowSideEffects = false
	return p
}

// FullAccessProfile is equivalent to DefaultProfile, named for symmetry
// with the original's profile catalog.
func FullAccessProfile() Profile {
	p := DefaultProfile()
	p.Name = "full_access"
	return p
}

// Entry is one contract as delivered to planners via the contract pack,
// with its output schema compacted for display (§4.2, §6 "Tool contract
// format").
type Entry struct {
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	Category        procedure.Category    `json:"category"`
	InputSchema     procedure.Schema      `json:"input_schema"`
	OutputSchema    map[string]any        `json:"output_schema"`
	SideEffects     bool                  `json:"side_effects"`
	PayloadProfile  procedure.PayloadProfile `json:"payload_profile,omitempty"`
	RequiresLLM     bool                  `json:"requires_llm,omitempty"`
}

// Pack is a filtered collection of tool contracts available under a
// Generation Profile.
type Pack struct {
	Profile Profile
	Entries []Entry
}

// ToolNames returns the sorted list of available tool names.
func (p Pack) ToolNames() []string {
	names := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		names[i] = e.Name
	}
	sort.Strings(names)
	return names
}

// Get returns the entry for name, if present.
func (p Pack) Get(name string) (Entry, bool) {
	for _, e := range p.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Has reports whether name is present in the pack — used by the Executor
// to gate each step's function against the profile-filtered surface when
// its Profile is set. The validator checks against the raw registry only.
func (p Pack) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// ToPromptJSON serializes the pack for embedding in an LLM system prompt or
// for transmission to a planning client (SPEC_FULL.md supplemented feature
// #1).
func (p Pack) ToPromptJSON() ([]byte, error) {
	return json.MarshalIndent(p.Entries, "", "  ")
}

// Build enumerates registry entries and keeps those that simultaneously
// satisfy the four filtering layers of §4.2.
func Build(r *contracts.Registry, profile Profile) Pack {
	all := r.ListAll()
	entries := make([]Entry, 0, len(all))
	for _, c := range all {
		if !c.ExposureProfile.Procedure {
			continue
		}
		if !profile.allowsCategory(c.Category) {
			continue
		}
		if profile.blocks(c.Name) {
			continue
		}
		if c.SideEffects && !profile.AllowSideEffects {
			continue
		}
		entries = append(entries, Entry{
			Name:           c.Name,
			Description:    c.Description,
			Category:       c.Category,
			InputSchema:    c.InputSchema,
			OutputSchema:   CompactOutputSchema(c.OutputSchema),
			SideEffects:    c.SideEffects,
			PayloadProfile: c.PayloadProfile,
			RequiresLLM:    c.RequiresLLM,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return Pack{Profile: profile, Entries: entries}
}

// CompactOutputSchema reduces a full output schema to a slim field map for
// display (§4.2). It is idempotent: CompactOutputSchema applied to its own
// output (re-expressed as a procedure.Schema of type "object"/"array"/
// "string") returns the same compacted shape (§8 invariant
// compact(compact(s)) = compact(s)).
func CompactOutputSchema(s procedure.Schema) map[string]any {
	if s.Type == "" {
		return map[string]any{}
	}

	switch s.Type {
	case "string":
		return map[string]any{"type": "string"}

	case "object":
		if len(s.Properties) == 0 {
			return map[string]any{"type": "object"}
		}
		fields := map[string]string{}
		for name, fs := range s.Properties {
			if name == "variants" {
				continue
			}
			fields[name] = fieldType(fs)
		}
		return map[string]any{"type": "object", "fields": fields}

	case "array":
		if s.Items == nil {
			return map[string]any{"type": "array"}
		}
		if s.Items.Type == "object" {
			if len(s.Items.Properties) == 0 {
				return map[string]any{"type": "array", "items": "object"}
			}
			fields := map[string]string{}
			for name, fs := range s.Items.Properties {
				if name == "variants" {
					continue
				}
				fields[name] = fieldType(fs)
			}
			return map[string]any{"type": "array", "item_fields": fields}
		}
		if s.Items.Type != "" {
			return map[string]any{"type": "array", "items": s.Items.Type}
		}
		return map[string]any{"type": "array"}

	default:
		return map[string]any{"type": s.Type}
	}
}

func fieldType(s procedure.Schema) string {
	if s.Type == "" {
		return "any"
	}
	return s.Type
}
