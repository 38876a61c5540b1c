// Command procexec loads a procedure definition from a YAML file, validates
// it against the built-in tool registry, and runs it to completion, printing
// the resulting run record as JSON. It exists to exercise the engine
// end-to-end the way the teacher's cmd/demo exercises a minimal agent
// runtime.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	sdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/contracts/builtins"
	"github.com/davidlarrimore/curatore-v2-sub001/dispatch"
	"github.com/davidlarrimore/curatore-v2-sub001/exec"
	"github.com/davidlarrimore/curatore-v2-sub001/flow"
	"github.com/davidlarrimore/curatore-v2-sub001/pack"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
	"github.com/davidlarrimore/curatore-v2-sub001/validate"
)

func main() {
	path := flag.String("procedure", "cmd/procexec/procedures/notify_if_large.yaml", "path to a procedure YAML file")
	paramsJSON := flag.String("params", "{}", "JSON object of procedure parameters")
	profileName := flag.String("profile", "default", "generation profile to run under: default, read_only, full_access")
	dryRun := flag.Bool("dry-run", false, "run without allowing side-effecting tools to act")
	flag.Parse()

	if err := run(*path, *paramsJSON, *profileName, *dryRun); err != nil {
		fmt.Fprintln(os.Stderr, "procexec:", err)
		os.Exit(1)
	}
}

func run(path, paramsJSON, profileName string, dryRun bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read procedure: %w", err)
	}
	var def procedure.Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return fmt.Errorf("parse procedure: %w", err)
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return fmt.Errorf("parse params: %w", err)
	}

	registry := contracts.New(func(r *contracts.Registry) {
		builtins.RegisterFlow(r)
		builtins.RegisterBasic(r)
		builtins.RegisterCompound(r)
		builtins.RegisterLLM(r, newLLM())
	})

	validator := &validate.Validator{Registry: registry}
	result := validator.Validate(&def)
	if !result.Valid {
		printJSON(result)
		return fmt.Errorf("procedure %q failed validation", def.Slug)
	}
	if result.WarningCount > 0 {
		fmt.Fprintf(os.Stderr, "procexec: %d advisory warning(s)\n", result.WarningCount)
	}

	profiles := pack.NewProfileRegistry()
	builtPack := pack.Build(registry, profiles.Get(profileName))

	executor := exec.New(dispatch.New(registry), flow.New(), exec.NewInMemoryRunStore())
	executor.Profile = &builtPack

	rec, err := executor.Run(context.Background(), &def, params, dryRun)
	if err != nil && rec == nil {
		return fmt.Errorf("run: %w", err)
	}
	printJSON(rec)
	return err
}

// newLLM builds the LLM provider bundle from environment configuration. The
// CLI only wires the Anthropic provider directly (mirroring the teacher's
// own NewFromAPIKey-style bootstrap) since OpenAI and Bedrock credentials
// aren't part of this demo's ambient environment; llm_generate/llm_classify/
// llm_summarize still accept a "provider:model" prefix addressed at those
// providers, they just fail clearly instead of calling out, until a real
// client is plugged in here.
func newLLM() builtins.LLM {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return builtins.LLM{}
	}
	client := sdk.NewClient(anthropicoption.WithAPIKey(apiKey))
	return builtins.LLM{Anthropic: &client.Messages}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
