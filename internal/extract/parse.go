// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// answer is the model's reply after parsing.
type answer struct {
	Value       string
	Found       bool
	Explanation string
	Evidence    string

	// Confidence is nil when the model did not report one.
	Confidence *float64
}

// parseAnswer extracts the first JSON object from raw, tolerating code
// fences and prose around it. Every failure wraps types.ErrParse.
func parseAnswer(raw string) (answer, error) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return answer{}, fmt.Errorf("no JSON object in response: %w", types.ErrParse)
	}

	dec := json.NewDecoder(strings.NewReader(raw[start:]))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return answer{}, fmt.Errorf("decoding answer: %v: %w", err, types.ErrParse)
	}

	v, hasValue := obj["value"]
	if !hasValue {
		return answer{}, fmt.Errorf("answer has no \"value\": %w", types.ErrParse)
	}

	var a answer
	var err error
	if a.Value, err = stringify(v); err != nil {
		return answer{}, err
	}

	a.Found = v != nil && a.Value != "" && !strings.EqualFold(a.Value, "NOT_FOUND")
	if f, ok := obj["found"]; ok && f != nil {
		b, ok := f.(bool)
		if !ok {
			return answer{}, fmt.Errorf("\"found\" is %T, not a boolean: %w", f, types.ErrParse)
		}
		a.Found = a.Found && b
	}

	a.Explanation, _ = obj["explanation"].(string)
	a.Evidence, _ = obj["evidence"].(string)

	if c, ok := obj["confidence"]; ok && c != nil {
		conf, err := normaliseConfidence(c)
		if err != nil {
			return answer{}, err
		}
		a.Confidence = &conf
	}
	return a, nil
}

// stringify renders a JSON value as a table cell. Strings are kept as is,
// structured values as compact JSON.
func stringify(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(x), nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", fmt.Errorf("encoding value: %v: %w", err, types.ErrParse)
		}
		return string(b), nil
	}
}

// normaliseConfidence maps a reported confidence into [0,1]. Values in
// (1,100] are read as percentages; anything else out of range is an error.
func normaliseConfidence(v any) (float64, error) {
	var f float64
	var err error
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "%"), 64)
	default:
		return 0, fmt.Errorf("confidence is %T: %w", v, types.ErrParse)
	}
	if err != nil {
		return 0, fmt.Errorf("confidence %v: %w", v, types.ErrParse)
	}

	switch {
	case f >= 0 && f <= 1:
		return f, nil
	case f > 1 && f <= 100:
		return f / 100, nil
	}
	return 0, fmt.Errorf("confidence %v out of range: %w", f, types.ErrParse)
}
