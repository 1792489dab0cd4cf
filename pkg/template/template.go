// Package template renders {{path}} placeholders inside node configuration
// values against the execution context. Paths use the same dotted-lookup
// roots as the condition language (data, results, variables); there are no
// functions and no host access.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cascadehq/cascade/pkg/models"
)

// ErrUnknownRoot is returned when a placeholder path does not start with a
// known context root.
var ErrUnknownRoot = errors.New("template path must start with data, results or variables")

// Render interpolates placeholders in the input string. A string that is a
// single placeholder ("{{results.node1.body}}") yields the referenced value
// with its type preserved; mixed strings render placeholders with fmt and
// return a string.
func Render(input string, ctx *models.ExecutionContext) (any, error) {
	trimmed := strings.TrimSpace(input)

	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") && strings.Count(trimmed, "{{") == 1 {
		return resolve(strings.TrimSpace(trimmed[2:len(trimmed)-2]), ctx)
	}

	var sb strings.Builder

	rest := input

	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			sb.WriteString(rest)

			break
		}

		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			sb.WriteString(rest)

			break
		}

		sb.WriteString(rest[:start])

		path := strings.TrimSpace(rest[start+2 : start+end])

		value, err := resolve(path, ctx)
		if err != nil {
			return nil, err
		}

		sb.WriteString(stringify(value))

		rest = rest[start+end+2:]
	}

	return sb.String(), nil
}

// RenderString is Render for callers that need a string result regardless of
// the referenced value's type.
func RenderString(input string, ctx *models.ExecutionContext) (string, error) {
	value, err := Render(input, ctx)
	if err != nil {
		return "", err
	}

	return stringify(value), nil
}

// RenderConfig deep-renders every string value of a node configuration map.
// Non-string values pass through untouched.
func RenderConfig(config map[string]any, ctx *models.ExecutionContext) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		out, err := renderValue(value, ctx)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}

		rendered[key] = out
	}

	return rendered, nil
}

func renderValue(value any, ctx *models.ExecutionContext) (any, error) {
	switch v := value.(type) {
	case string:
		return Render(v, ctx)
	case map[string]any:
		return RenderConfig(v, ctx)
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, ctx)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

func resolve(path string, ctx *models.ExecutionContext) (any, error) {
	segments := strings.Split(path, ".")

	current, ok := ctx.Lookup(segments[0])
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoot, segments[0])
	}

	for _, segment := range segments[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, nil
		}

		current, ok = m[segment]
		if !ok {
			return nil, nil
		}
	}

	return current, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
