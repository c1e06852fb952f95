// Package extract pulls structured grant records out of free-text language
// model output. Models asked for JSON routinely wrap it in prose or markdown
// fences, or truncate it; the parser tries a chain of progressively more
// forgiving strategies before giving up.
package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ctrise/grantmatch/internal/model"
)

// Object extracts a single JSON object from raw model output.
// The fallback chain, each step tried only when the prior one fails:
//
//  1. parse the whole text as JSON
//  2. parse the content of a fenced code block
//  3. parse the first balanced {...} or [...] span
//
// A parsed array yields its first element, which must be an object.
// All failures return model.ErrExtraction.
func Object(text string) (map[string]any, error) {
	v, err := value(text)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		if len(t) == 0 {
			return nil, eris.Wrap(model.ErrExtraction, "extract: empty array")
		}
		obj, ok := t[0].(map[string]any)
		if !ok {
			return nil, eris.Wrap(model.ErrExtraction, "extract: array element is not an object")
		}
		return obj, nil
	default:
		return nil, eris.Wrap(model.ErrExtraction, "extract: value is not an object or array")
	}
}

// List extracts a JSON array of objects from raw model output. A single
// object is returned as a one-element list. Non-object array elements are
// skipped.
func List(text string) ([]map[string]any, error) {
	v, err := value(text)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, el := range t {
			if obj, ok := el.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		if len(out) == 0 {
			return nil, eris.Wrap(model.ErrExtraction, "extract: array holds no objects")
		}
		return out, nil
	case map[string]any:
		return []map[string]any{t}, nil
	default:
		return nil, eris.Wrap(model.ErrExtraction, "extract: value is not an object or array")
	}
}

// Candidate maps a parsed object onto the canonical GrantCandidate shape.
// Missing or null keys are backfilled with "N/A", never dropped, so
// downstream code can rely on key presence.
func Candidate(obj map[string]any) model.GrantCandidate {
	return model.GrantCandidate{
		Title:     field(obj, "title"),
		Sponsor:   field(obj, "sponsor"),
		Amount:    field(obj, "amount"),
		Deadline:  field(obj, "deadline"),
		Summary:   field(obj, "summary"),
		SourceURL: field(obj, "url"),
	}
}

func field(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return model.NA
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return model.NA
		}
		return s
	case float64:
		// json.Unmarshal decodes all numbers as float64. Amounts often
		// arrive numeric; render them without a trailing ".0".
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func value(text string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, eris.Wrap(model.ErrExtraction, "extract: empty response")
	}

	// 1. The whole response is JSON.
	if v, ok := tryParse(text); ok {
		return v, nil
	}

	// 2. A fenced code block.
	if fenced, ok := fencedContent(text); ok {
		if v, ok := tryParse(fenced); ok {
			return v, nil
		}
	}

	// 3. First balanced {...} or [...] span.
	if span, ok := balancedSpan(text); ok {
		if v, ok := tryParse(span); ok {
			return v, nil
		}
	}

	return nil, eris.Wrap(model.ErrExtraction, "extract: no parseable JSON span")
}

func tryParse(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// fencedContent returns the body of the first markdown code fence.
func fencedContent(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	// Drop an optional language tag ("json") up to the first newline.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		// Truncated output: take everything after the opening fence.
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedSpan finds the first '{' or '[' and returns the substring through
// its matching close bracket, respecting JSON string literals and escapes.
func balancedSpan(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}

	var depth int
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
