package chainengine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/chainwork/chainwork/chaintypes"
)

// MappingKind discriminates where a mapped value comes from.
type MappingKind int

const (
	// MappingInput resolves from a user-supplied input field.
	MappingInput MappingKind = iota
	// MappingPriorStep resolves from a prior step's output.
	MappingPriorStep
)

// MappingSource is the parsed form of one input-mapping entry. The raw
// mapping value is sniffed exactly once, at parse time, never per
// substitution.
type MappingSource struct {
	Kind  MappingKind
	Field string // set when Kind == MappingInput
	Step  string // set when Kind == MappingPriorStep
}

// inputSourcePrefix marks a mapping value as referring to a user input field.
const inputSourcePrefix = "input."

// ParseMappingSource classifies one raw input-mapping value.
func ParseMappingSource(raw string) MappingSource {
	if strings.HasPrefix(raw, inputSourcePrefix) {
		return MappingSource{Kind: MappingInput, Field: strings.TrimPrefix(raw, inputSourcePrefix)}
	}
	return MappingSource{Kind: MappingPriorStep, Step: raw}
}

// ResolvedContext holds the substituted prompt and system context for one step.
type ResolvedContext struct {
	Prompt        string `json:"prompt"`
	SystemContext string `json:"systemContext,omitempty"`
}

// fallbackPrompt replaces a prompt that is empty after substitution, so an
// authoring mistake never sends a blank prompt to a model.
const fallbackPrompt = "Respond helpfully based on the provided context."

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.-]+)\}`)

// escapeReplacer undoes the escaping that template authoring tools apply to
// prompt text before it reaches the engine.
var escapeReplacer = strings.NewReplacer(
	"&#36;", "$",
	"&dollar;", "$",
	`\$`, "$",
	`\{`, "{",
	`\}`, "}",
	`\_`, "_",
)

// MissingValueMarker is the literal rendered in place of a value that could
// not be resolved. Execution continues; the gap stays visible in the prompt.
func MissingValueMarker(key string) string {
	return "[Missing value for " + key + "]"
}

// ResolveStepInputs builds the step's resolved prompt and system context.
// Mapping keys resolve from user values or prior step outputs; anything that
// cannot be resolved renders the missing-value marker instead of failing.
func ResolveStepInputs(step chaintypes.StepDefinition, userValues map[string]any, priorOutputs map[string]string) ResolvedContext {
	lookup := make(map[string]string, len(step.InputMapping))
	for key, raw := range step.InputMapping {
		source := ParseMappingSource(raw)
		switch source.Kind {
		case MappingInput:
			value, ok := userValues[source.Field]
			if !ok {
				lookup[key] = MissingValueMarker(key)
				continue
			}
			lookup[key] = stringifyValue(value)
		case MappingPriorStep:
			output, ok := priorOutputs[source.Step]
			if !ok {
				lookup[key] = MissingValueMarker(key)
				continue
			}
			lookup[key] = output
		}
	}

	prompt := substitute(escapeReplacer.Replace(step.PromptTemplate), lookup)
	system := substitute(escapeReplacer.Replace(step.SystemTemplate), lookup)

	if strings.TrimSpace(prompt) == "" {
		prompt = fallbackPrompt
	}

	return ResolvedContext{Prompt: prompt, SystemContext: system}
}

// ResolveDispatchInputs resolves only the user-supplied sources. Keys mapped
// to a prior step keep their literal ${key} placeholder, since no output
// exists yet at dispatch time; the worker substitutes those once the prior
// step has run.
func ResolveDispatchInputs(step chaintypes.StepDefinition, userValues map[string]any) ResolvedContext {
	lookup := make(map[string]string, len(step.InputMapping))
	for key, raw := range step.InputMapping {
		source := ParseMappingSource(raw)
		if source.Kind == MappingPriorStep {
			lookup[key] = "${" + key + "}"
			continue
		}
		value, ok := userValues[source.Field]
		if !ok {
			lookup[key] = MissingValueMarker(key)
			continue
		}
		lookup[key] = stringifyValue(value)
	}

	prompt := substitute(escapeReplacer.Replace(step.PromptTemplate), lookup)
	system := substitute(escapeReplacer.Replace(step.SystemTemplate), lookup)

	if strings.TrimSpace(prompt) == "" {
		prompt = fallbackPrompt
	}

	return ResolvedContext{Prompt: prompt, SystemContext: system}
}

// RealizePriorOutputs substitutes the prior-step placeholders that
// ResolveDispatchInputs left literal, once the referenced outputs exist.
// Outputs are keyed by source step name. A mapped key whose source step has
// no output yet renders the missing-value marker; placeholders outside the
// mapping are left untouched.
func RealizePriorOutputs(resolved string, mapping map[string]string, priorOutputs map[string]string) string {
	lookup := make(map[string]string, len(mapping))
	for key, raw := range mapping {
		source := ParseMappingSource(raw)
		if source.Kind != MappingPriorStep {
			continue
		}
		output, ok := priorOutputs[source.Step]
		if !ok {
			lookup[key] = MissingValueMarker(key)
			continue
		}
		lookup[key] = output
	}
	if len(lookup) == 0 {
		return resolved
	}
	return placeholderPattern.ReplaceAllStringFunc(resolved, func(match string) string {
		key := match[2 : len(match)-1]
		if value, ok := lookup[key]; ok {
			return value
		}
		return match
	})
}

// substitute replaces every ${key} placeholder from the lookup table. A key
// with no mapping entry renders the missing-value marker, never a blank.
func substitute(template string, lookup map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-1]
		if value, ok := lookup[key]; ok {
			return value
		}
		return MissingValueMarker(key)
	})
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
