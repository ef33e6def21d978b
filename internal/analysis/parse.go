package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	errNotObject   = errors.New("response is not a JSON object")
	errMissingKeys = errors.New("response misses required keys")
)

// ParseError is returned when the provider answer is not the JSON object a template asked for.
// Raw keeps the unmodified answer for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string { return "parse provider output: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Parse extracts a JSON object from raw and checks that every required key is present.
func Parse(raw string, required []string) (json.RawMessage, error) {
	body := stripFences(raw)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		var v any
		if json.Unmarshal([]byte(body), &v) == nil {
			return nil, &ParseError{Raw: raw, Err: errNotObject}
		}
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if obj == nil {
		return nil, &ParseError{Raw: raw, Err: errNotObject}
	}

	var missing []string
	for _, k := range required {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("%w: %s", errMissingKeys, strings.Join(missing, ", "))}
	}
	return json.RawMessage(body), nil
}

// stripFences removes a surrounding Markdown code fence such as ```json ... ```.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
