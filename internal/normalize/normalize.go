// Package normalize extracts a structured object from raw model text. Vision
// language model output arrives with reasoning preambles, markdown fences,
// stray control tokens and half-broken JSON; the extractor is an ordered
// chain of pure strategies with first-success-wins semantics, and failures
// are typed results rather than panics.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// maxDiagnostic bounds how much of the original text a ParseError carries.
const maxDiagnostic = 300

// ParseError is the typed failure returned when no strategy yields a valid
// object. Source holds the head of the original model text for diagnostics.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no JSON object in model output: %v (text: %.80q)", e.Err, e.Source)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	reasoningBlock = regexp.MustCompile(`(?s)<unused\d+>\s*thought\b.*?<unused\d+>`)
	reasoningOpen  = regexp.MustCompile(`^<unused\d+>\s*thought\b`)
	strayToken     = regexp.MustCompile(`<unused\d+>|<\|.*?\|>`)
	fencedBlock    = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?\\s*```")
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
)

// Object parses raw model text into a mapping, or returns a *ParseError.
func Object(raw string) (map[string]any, error) {
	block := ExtractBlock(raw)
	if block == "" {
		return nil, &ParseError{Source: head(raw), Err: fmt.Errorf("empty after stripping")}
	}
	for _, candidate := range []string{block, Repair(block)} {
		var out map[string]any
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out, nil
		}
	}
	// Decode once more to surface the real error.
	var out map[string]any
	err := json.Unmarshal([]byte(Repair(block)), &out)
	return nil, &ParseError{Source: head(raw), Err: err}
}

// ExtractBlock runs the strategy chain and returns the best JSON candidate
// text. Each strategy is attempted only when the previous produced nothing.
func ExtractBlock(raw string) string {
	text := StripReasoning(raw)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if balanced := BalancedObject(text); balanced != "" {
		return balanced
	}
	return strings.TrimSpace(text)
}

// StripReasoning removes delimited reasoning blocks and stray control
// tokens. A truncated reasoning block with no closing delimiter jumps to
// the first '{'.
func StripReasoning(text string) string {
	if stripped := reasoningBlock.ReplaceAllString(text, ""); stripped != text {
		text = stripped
	}
	if reasoningOpen.MatchString(text) {
		if idx := strings.IndexByte(text, '{'); idx != -1 {
			text = text[idx:]
		} else {
			return ""
		}
	}
	return strings.TrimSpace(strayToken.ReplaceAllString(text, ""))
}

// BalancedObject scans for the first '{' and walks forward tracking brace
// depth, respecting quoted-string escaping, returning the first balanced
// object or "".
func BalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// Repair fixes common model-side malformations: trailing commas before
// closing brackets, single-quote strings when no double-quoted strings are
// present, and narrative after the final closing brace.
func Repair(block string) string {
	block = strings.TrimSpace(block)
	if end := strings.LastIndexByte(block, '}'); end != -1 {
		block = block[:end+1]
	}
	block = trailingComma.ReplaceAllString(block, "$1")
	if !strings.Contains(block, `"`) && strings.Contains(block, `'`) {
		block = strings.ReplaceAll(block, `'`, `"`)
	}
	return block
}

func head(s string) string {
	if len(s) > maxDiagnostic {
		return s[:maxDiagnostic]
	}
	return s
}
