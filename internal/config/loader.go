package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a launch profile from the provided path. Relative paths inside
// the profile resolve against the directory containing it.
func Load(path string) (*Profile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve profile path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open profile file: %w", err)
	}
	defer f.Close()

	profile, err := Parse(f, filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	profile.Source = absPath
	return profile, nil
}

// Parse decodes a launch profile from r. ${VAR} and ${VAR:-default}
// references in string values are expanded from the process environment
// before the document is checked against the profile schema.
func Parse(r io.Reader, baseDir string) (*Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	expandYAMLValues(raw)
	if err := validateAgainstSchema(raw); err != nil {
		return nil, err
	}

	expanded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(expanded))
	decoder.KnownFields(true)
	var doc Profile
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	doc.Dir = resolveWorkdir(baseDir, doc.Dir)
	for _, s := range []*Stream{&doc.Stdin, &doc.Stdout, &doc.Stderr} {
		if s.Path != "" && !filepath.IsAbs(s.Path) {
			s.Path = filepath.Clean(filepath.Join(baseDir, s.Path))
		}
	}
	if doc.EnvFromFile != "" {
		if !filepath.IsAbs(doc.EnvFromFile) {
			doc.EnvFromFile = filepath.Clean(filepath.Join(baseDir, doc.EnvFromFile))
		}
		fileEnv, err := loadEnvFile(doc.EnvFromFile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fieldPath("envFromFile"), err)
		}
		doc.FileEnv = fileEnv
	}

	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Environment builds the child environment. When the profile inherits, base
// is the starting set; variables from envFromFile come next and inline env
// entries win over both.
func (p *Profile) Environment(base []string) []string {
	merged := make(map[string]string, len(base)+len(p.FileEnv)+len(p.Env))
	var order []string
	set := func(key, value string) {
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] = value
	}
	if p.InheritEnv == nil || *p.InheritEnv {
		for _, kv := range base {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				continue
			}
			set(key, value)
		}
	}
	for _, key := range sortedKeys(p.FileEnv) {
		set(key, p.FileEnv[key])
	}
	for _, key := range sortedKeys(p.Env) {
		set(key, p.Env[key])
	}

	env := make([]string, 0, len(order))
	for _, key := range order {
		env = append(env, key+"="+merged[key])
	}
	return env
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func expandYAMLValues(doc map[string]any) {
	for k, v := range doc {
		doc[k] = expandValueRecursive(v)
	}
}

func expandValueRecursive(v any) any {
	switch typed := v.(type) {
	case string:
		return expandEnvWithDefault(typed)
	case []any:
		for i := range typed {
			typed[i] = expandValueRecursive(typed[i])
		}
		return typed
	case map[string]any:
		expandYAMLValues(typed)
		return typed
	default:
		return v
	}
}

// expandEnvWithDefault behaves like os.ExpandEnv and additionally honours
// ${VAR:-default} for unset or empty variables.
func expandEnvWithDefault(s string) string {
	return os.Expand(s, func(name string) string {
		key, fallback, hasDefault := strings.Cut(name, ":-")
		value, ok := os.LookupEnv(key)
		if hasDefault && (!ok || value == "") {
			return fallback
		}
		return value
	})
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return base
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasPrefix(raw, "export ") {
			raw = strings.TrimSpace(raw[len("export "):])
		}
		sep := strings.IndexRune(raw, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(raw[:sep])
		if key == "" {
			return nil, fmt.Errorf("load env file %q: invalid key on line %d", path, lineNo)
		}
		value := strings.TrimSpace(raw[sep+1:])
		if strings.HasPrefix(value, "\"") {
			if len(value) < 2 || value[len(value)-1] != '"' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		} else if strings.HasPrefix(value, "'") {
			if len(value) < 2 || value[len(value)-1] != '\'' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		} else if comment := strings.IndexRune(value, '#'); comment >= 0 {
			value = strings.TrimSpace(value[:comment])
		}
		values[key] = os.ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}
