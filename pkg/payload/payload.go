// Package payload extracts a JSON document from free-form agent output and
// validates it against a named schema.
//
// Agent output may wrap the document in prose, fenced code blocks, or
// result/structured_output envelopes. Extraction tries a fixed ordered list
// of strategies (raw, fenced, balanced-brace scan, array elements) and the
// first candidate that validates wins. Nothing is coerced: either a
// candidate matches the schema or Decode returns ErrUnparseable.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrUnparseable means no candidate in the output matched the schema.
var ErrUnparseable = errors.New("no JSON payload matched schema")

// maxEnvelopeDepth bounds result/structured_output unwrapping.
const maxEnvelopeDepth = 3

var fencedBlock = regexp.MustCompile("(?s)```[ \t]*(?:json|JSON|jsonc)?[ \t]*\r?\n(.*?)```")

// Schema is a compiled, named JSON schema.
type Schema struct {
	Name   string
	schema *gojsonschema.Schema
}

// Compile compiles a JSON schema document.
func Compile(name, src string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{Name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(name, src string) *Schema {
	s, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks one JSON document against the schema.
func (s *Schema) Validate(doc string) error {
	res, err := s.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s: %s", s.Name, strings.Join(msgs, "; "))
}

// Decode unmarshals into v the first candidate in output that validates
// against s. It returns ErrUnparseable when none does.
func Decode(output string, s *Schema, v any) error {
	for _, c := range Candidates(output) {
		if s.Validate(c) != nil {
			continue
		}
		if err := json.Unmarshal([]byte(c), v); err != nil {
			continue
		}
		return nil
	}
	return fmt.Errorf("%s: %w", s.Name, ErrUnparseable)
}

// Candidates lists every JSON document found in output in strategy order,
// each followed by the documents nested in its envelopes. Duplicates are
// removed.
func Candidates(output string) []string {
	seen := map[string]bool{}
	var out []string
	var add func(doc string, depth int)
	add = func(doc string, depth int) {
		doc = strings.TrimSpace(doc)
		if doc == "" || seen[doc] || !json.Valid([]byte(doc)) {
			return
		}
		seen[doc] = true
		out = append(out, doc)
		if depth >= maxEnvelopeDepth {
			return
		}
		for _, inner := range unwrap(doc) {
			if strings.HasPrefix(strings.TrimSpace(inner), "{") || strings.HasPrefix(strings.TrimSpace(inner), "[") {
				add(inner, depth+1)
				continue
			}
			for _, c := range extract(inner) {
				add(c, depth+1)
			}
		}
	}
	for _, c := range extract(output) {
		add(c, 0)
	}
	return out
}

// extract applies the raw, fenced and balanced-brace strategies to text.
func extract(text string) []string {
	var out []string
	if raw := strings.TrimSpace(text); strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		out = append(out, raw)
	}
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	out = append(out, balancedObjects(text)...)
	return out
}

// unwrap returns the documents nested in an envelope: array elements and
// the values of result/structured_output keys.
func unwrap(doc string) []string {
	var arr []json.RawMessage
	if json.Unmarshal([]byte(doc), &arr) == nil {
		out := make([]string, 0, len(arr))
		for _, el := range arr {
			out = append(out, envelopeValue(el)...)
		}
		return out
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal([]byte(doc), &obj) != nil {
		return nil
	}
	var out []string
	for _, key := range []string{"structured_output", "result", "output", "content", "text"} {
		if raw, ok := obj[key]; ok {
			out = append(out, envelopeValue(raw)...)
		}
	}
	return out
}

// envelopeValue turns a nested value into candidate text. String values
// are returned decoded so their embedded JSON can be extracted.
func envelopeValue(raw json.RawMessage) []string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []string{s}
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &parts) == nil && len(parts) > 0 && parts[0].Text != "" {
		out := []string{string(raw)}
		for _, p := range parts {
			out = append(out, p.Text)
		}
		return out
	}
	return []string{string(raw)}
}

// balancedObjects returns every top-level {...} span in text, honouring
// JSON string quoting.
func balancedObjects(text string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, text[start:i+1])
				start = -1
			}
		}
	}
	return out
}
