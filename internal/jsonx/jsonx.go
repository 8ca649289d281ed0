// Package jsonx pulls a single JSON object out of free-form model output and
// coerces its loosely typed fields.
package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrNoObject is returned when the text contains no '{' ... '}' span.
var ErrNoObject = errors.New("no JSON object in model output")

// ParseError reports a brace span that is not valid JSON.
type ParseError struct {
	Span string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON object in model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	// objectPattern is greedy: first '{' through last '}'. Markdown fences
	// and surrounding prose fall outside the span.
	objectPattern        = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractObject returns the outermost brace-delimited span of raw as JSON.
// A span that only fails because of trailing commas is repaired.
func ExtractObject(raw string) (json.RawMessage, error) {
	span := objectPattern.FindString(raw)
	if span == "" {
		return nil, ErrNoObject
	}
	if json.Valid([]byte(span)) {
		return json.RawMessage(span), nil
	}
	if cleaned := trailingCommaPattern.ReplaceAllString(span, "$1"); json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), nil
	}

	var discard any
	err := json.Unmarshal([]byte(span), &discard)
	return nil, &ParseError{Span: span, Err: err}
}

// Decode extracts the object from raw and unmarshals it into v.
func Decode(raw string, v any) error {
	obj, err := ExtractObject(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, v); err != nil {
		return &ParseError{Span: string(obj), Err: err}
	}
	return nil
}

// String renders a decoded JSON value as text. Null and absent values yield
// "", numbers keep their shortest form, composite values are re-encoded.
func String(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Float converts a decoded JSON value to a number. Anything non-numeric,
// including numeric-looking strings with units, yields NaN.
func Float(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// Object returns v as a JSON object, or nil.
func Object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// Array returns v as a JSON array, or nil.
func Array(v any) []any {
	a, _ := v.([]any)
	return a
}

// Truncate shortens s to at most n bytes for log output without splitting a
// UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...(truncated)"
}
