package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	procschema "github.com/Paintersrp/procspawn/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaViolation is one profile field that breaks the profile schema.
type SchemaViolation struct {
	Field   string
	Message string
}

// SchemaError lists every schema violation found in a profile, ordered by
// field.
type SchemaError struct {
	Violations []SchemaViolation
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("profile schema validation failed:")
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "\n  - %s: %s", v.Field, v.Message)
	}
	return b.String()
}

var (
	schemaOnce    sync.Once
	profileSchema *jsonschema.Schema
	schemaErr     error

	quotedName = regexp.MustCompile(`'([^']*)'`)
)

func loadProfileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("profile.v1.json", bytes.NewReader(procschema.ProfileV1Schema)); err != nil {
			schemaErr = fmt.Errorf("add profile schema: %w", err)
			return
		}
		if profileSchema, schemaErr = compiler.Compile("profile.v1.json"); schemaErr != nil {
			schemaErr = fmt.Errorf("compile profile schema: %w", schemaErr)
		}
	})
	return profileSchema, schemaErr
}

// validateAgainstSchema checks the expanded document before it is decoded
// into a Profile. Violations come back as a *SchemaError.
func validateAgainstSchema(doc map[string]any) error {
	schema, err := loadProfileSchema()
	if err != nil {
		return err
	}

	// The validator only understands JSON types.
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("prepare profile for validation: %w", err)
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("prepare profile for validation: %w", err)
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("profile schema validation failed: %w", err)
	}
	violations := collectViolations(verr, instance, nil)
	slices.SortStableFunc(violations, func(a, b SchemaViolation) int {
		return strings.Compare(a.Field, b.Field)
	})
	return &SchemaError{Violations: slices.Compact(violations)}
}

func collectViolations(err *jsonschema.ValidationError, instance any, out []SchemaViolation) []SchemaViolation {
	if len(err.Causes) > 0 {
		for _, cause := range err.Causes {
			out = collectViolations(cause, instance, out)
		}
		return out
	}

	field := profileField(err.InstanceLocation)
	value, _ := lookupPointer(instance, err.InstanceLocation)
	def, keyword := schemaKeyword(err.AbsoluteKeywordLocation)

	switch {
	case keyword == "required":
		for _, name := range quotedNames(err.Message) {
			out = append(out, SchemaViolation{Field: name, Message: "is required"})
		}
		return out
	case keyword == "additionalProperties" && field == "profile":
		for _, name := range quotedNames(err.Message) {
			out = append(out, SchemaViolation{Field: name, Message: "is not a profile field"})
		}
		return out
	}
	return append(out, SchemaViolation{Field: field, Message: describeViolation(field, def, keyword, value, err.Message)})
}

func describeViolation(field, def, keyword string, value any, fallback string) string {
	switch {
	case def == "stream" && keyword == "pattern":
		return fmt.Sprintf("%q is not a stream target, want inherit, devnull, pipe, file:<path> or append:<path>", value)
	case def == "duration" && keyword == "pattern":
		return fmt.Sprintf("%q is not a duration such as 500ms or 1m30s", value)
	case (def == "stream" || def == "duration") && keyword == "type":
		return "must be a string"
	case strings.HasPrefix(field, "keepFds[") && keyword == "minimum":
		return fmt.Sprintf("descriptor %v is reserved, descriptors 0 to 3 carry stdio and the exit pipe", value)
	case field == "keepFds" && keyword == "uniqueItems":
		return "lists the same descriptor more than once"
	case field == "version" && keyword == "enum":
		return fmt.Sprintf("unsupported version %v, want \"1\"", value)
	case strings.HasPrefix(field, "env.") && keyword == "pattern":
		return "variable names cannot contain '='"
	}
	return fallback
}

// schemaKeyword splits an absolute keyword location into the $defs entry it
// sits under, if any, and the failing keyword.
func schemaKeyword(loc string) (def, keyword string) {
	if i := strings.LastIndexByte(loc, '/'); i >= 0 {
		keyword = loc[i+1:]
	}
	if _, rest, ok := strings.Cut(loc, "/$defs/"); ok {
		def, _, _ = strings.Cut(rest, "/")
	}
	return def, keyword
}

func quotedNames(message string) []string {
	var names []string
	for _, m := range quotedName.FindAllStringSubmatch(message, -1) {
		names = append(names, m[1])
	}
	return names
}

// profileField renders a JSON pointer the way profile errors name fields:
// env.HOME, keepFds[1].
func profileField(ptr string) string {
	segments := pointerSegments(ptr)
	if len(segments) == 0 {
		return "profile"
	}
	var parts []string
	for _, segment := range segments {
		if _, err := strconv.Atoi(segment); err == nil && len(parts) > 0 {
			parts[len(parts)-1] += "[" + segment + "]"
			continue
		}
		parts = append(parts, segment)
	}
	return fieldPath(parts...)
}

func lookupPointer(doc any, ptr string) (any, bool) {
	cur := doc
	for _, segment := range pointerSegments(ptr) {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func pointerSegments(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return nil
	}
	segments := strings.Split(ptr, "/")
	for i, segment := range segments {
		segments[i] = strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
	}
	return segments
}
