// Package config contains the loader and strongly typed model for session.yaml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/codex-k8s/depconfctl/internal/env"
)

// Session describes one editing session: where recommendations come from and
// the configuration tree being edited. It mirrors session.yaml after template rendering.
type Session struct {
	// Stack identifies the stack whose advisor is queried.
	Stack StackRef `yaml:"stack"`
	// Server describes the recommendation endpoint.
	Server ServerConfig `yaml:"server,omitempty"`
	// EnvFiles lists .env files to load before rendering.
	EnvFiles []string `yaml:"envFiles,omitempty"`
	// Mode is "service" (default) or "installer".
	Mode string `yaml:"mode,omitempty"`
	// SelectedService is the service being edited.
	SelectedService string `yaml:"selectedService,omitempty"`
	// SelectedGroup is the active config group of SelectedService; empty means its default group.
	SelectedGroup string `yaml:"selectedGroup,omitempty"`
	// Hosts lists cluster host names sent with every request.
	Hosts []string `yaml:"hosts,omitempty"`
	// Sites maps a file tag to its owning service when it cannot be inferred.
	Sites map[string]string `yaml:"sites,omitempty"`
	// Services lists the step configurations.
	Services []ServiceSpec `yaml:"services"`
	// Attributes lists stack property bounds.
	Attributes []AttributeSpec `yaml:"attributes,omitempty"`
}

// StackRef names a stack version.
type StackRef struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ServerConfig describes the cluster-management server.
type ServerConfig struct {
	URL      string `yaml:"url,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	// Timeout is a duration string, e.g. "30s".
	Timeout string `yaml:"timeout,omitempty"`
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `yaml:"caFile,omitempty"`
	// InsecureSkipVerify disables server certificate checks.
	InsecureSkipVerify bool `yaml:"insecureSkipVerify,omitempty"`
}

// ServiceSpec is a service entry of session.yaml.
type ServiceSpec struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"displayName,omitempty"`
	Installed   bool   `yaml:"installed,omitempty"`
	// DependentServices lists services whose configs depend on this one.
	DependentServices []string       `yaml:"dependentServices,omitempty"`
	Groups            []GroupSpec    `yaml:"groups,omitempty"`
	Properties        []PropertySpec `yaml:"properties,omitempty"`
}

// GroupSpec is a config group entry.
type GroupSpec struct {
	Name    string   `yaml:"name"`
	Default bool     `yaml:"default,omitempty"`
	Hosts   []string `yaml:"hosts,omitempty"`
	// DependentGroups maps a dependent service to the group used for it.
	DependentGroups map[string]string `yaml:"dependentGroups,omitempty"`
}

// PropertySpec is a property entry. Nil pointers mean "not set".
type PropertySpec struct {
	Name             string         `yaml:"name"`
	DisplayName      string         `yaml:"displayName,omitempty"`
	File             string         `yaml:"file"`
	Category         string         `yaml:"category,omitempty"`
	Value            string         `yaml:"value"`
	SavedValue       *string        `yaml:"savedValue,omitempty"`
	InitialValue     *string        `yaml:"initialValue,omitempty"`
	RecommendedValue *string        `yaml:"recommendedValue,omitempty"`
	NotSaved         bool           `yaml:"notSaved,omitempty"`
	Required         bool           `yaml:"required,omitempty"`
	Error            string         `yaml:"error,omitempty"`
	Overrides        []OverrideSpec `yaml:"overrides,omitempty"`
}

// OverrideSpec is a per-group property value.
type OverrideSpec struct {
	Group            string  `yaml:"group"`
	Value            string  `yaml:"value"`
	SavedValue       *string `yaml:"savedValue,omitempty"`
	InitialValue     *string `yaml:"initialValue,omitempty"`
	RecommendedValue *string `yaml:"recommendedValue,omitempty"`
	NotSaved         bool    `yaml:"notSaved,omitempty"`
}

// AttributeSpec holds bounds of one stack property.
type AttributeSpec struct {
	Name        string                       `yaml:"name"`
	Site        string                       `yaml:"site"`
	Bounds      map[string]string            `yaml:"bounds,omitempty"`
	GroupBounds map[string]map[string]string `yaml:"groupBounds,omitempty"`
}

// LoadOptions describes parameters that influence template rendering of session.yaml.
type LoadOptions struct {
	// UserVars are inline variables for template rendering.
	UserVars env.Vars
	// VarFiles lists additional var-files to load.
	VarFiles []string
}

// TemplateContext represents the data exposed to Go-templates when rendering session.yaml.
type TemplateContext struct {
	// Root is the directory holding session.yaml.
	Root string
	// Now is the timestamp captured for template rendering.
	Now time.Time
	// UserVars contains inline user variables.
	UserVars env.Vars
	// EnvMap merges OS env, envFiles, var-files and user variables.
	EnvMap env.Vars
	// Stack is the stack reference read before templating.
	Stack StackRef
}

// rawHeader is a minimal struct used to extract top-level fields before templating.
type rawHeader struct {
	EnvFiles []string `yaml:"envFiles"`
	Stack    StackRef `yaml:"stack"`
}

// LoadAndRender reads session.yaml, loads envFiles and user vars, and returns rendered YAML bytes
// together with the template context that was used.
func LoadAndRender(path string, opts LoadOptions) ([]byte, TemplateContext, error) {
	var zeroCtx TemplateContext

	if path == "" {
		return nil, zeroCtx, fmt.Errorf("config path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("resolve config path: %w", err)
	}

	rawBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("read config %q: %w", absPath, err)
	}

	// Header values may themselves be templates; only envFiles must be literal.
	var header rawHeader
	if err := yaml.Unmarshal(stripActions(rawBytes), &header); err != nil {
		return nil, zeroCtx, fmt.Errorf("parse top-level config fields: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	envFileVars, err := env.LoadEnvFiles(baseDir, header.EnvFiles)
	if err != nil {
		return nil, zeroCtx, err
	}

	varFileVars := make(env.Vars)
	for _, vf := range opts.VarFiles {
		if strings.TrimSpace(vf) == "" {
			continue
		}
		vp, err := env.LoadVarFile(vf)
		if err != nil {
			return nil, zeroCtx, fmt.Errorf("load var-file %q: %w", vf, err)
		}
		varFileVars = env.Merge(varFileVars, vp)
	}

	ctx := TemplateContext{
		Root:     baseDir,
		Now:      time.Now().UTC(),
		UserVars: opts.UserVars,
		EnvMap:   env.Merge(env.FromOS(), envFileVars, varFileVars, opts.UserVars),
		Stack:    header.Stack,
	}

	rendered, err := RenderTemplate("session.yaml", rawBytes, ctx)
	if err != nil {
		return nil, zeroCtx, err
	}
	return rendered, ctx, nil
}

// stripActions blanks template actions so that the raw file parses as YAML.
func stripActions(raw []byte) []byte {
	var out bytes.Buffer
	s := string(raw)
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			out.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			out.WriteString(s)
			break
		}
		out.WriteString(s[:start])
		s = s[start+end+2:]
	}
	return out.Bytes()
}

// LoadSession loads, templates, parses and validates session.yaml.
func LoadSession(path string, opts LoadOptions) (*Session, TemplateContext, error) {
	rendered, ctx, err := LoadAndRender(path, opts)
	if err != nil {
		return nil, TemplateContext{}, err
	}

	var s Session
	if err := yaml.Unmarshal(rendered, &s); err != nil {
		return nil, TemplateContext{}, fmt.Errorf("parse rendered session.yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, TemplateContext{}, err
	}
	ctx.Stack = s.Stack
	return &s, ctx, nil
}

// Validate checks fields that do not depend on the tree structure.
func (s *Session) Validate() error {
	if strings.TrimSpace(s.Stack.Name) == "" {
		return fmt.Errorf("stack.name is required")
	}
	if _, err := s.StackVersion(); err != nil {
		return err
	}
	if _, err := s.Timeout(); err != nil {
		return err
	}
	switch s.Mode {
	case "", "service", "installer":
	default:
		return fmt.Errorf("unknown mode %q, expected service or installer", s.Mode)
	}
	return nil
}

// StackVersion parses stack.version.
func (s *Session) StackVersion() (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(s.Stack.Version))
	if err != nil {
		return nil, fmt.Errorf("invalid stack.version %q: %w", s.Stack.Version, err)
	}
	return v, nil
}

// Timeout parses server.timeout; zero when unset.
func (s *Session) Timeout() (time.Duration, error) {
	raw := strings.TrimSpace(s.Server.Timeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid server.timeout %q: %w", raw, err)
	}
	return d, nil
}

// Marshal encodes the session as YAML with two-space indentation.
func (s *Session) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize session: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the session to path.
func (s *Session) WriteFile(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session %q: %w", path, err)
	}
	return nil
}

// RenderTemplate renders arbitrary YAML or text content using the session template context and helpers.
func RenderTemplate(name string, raw []byte, ctx TemplateContext) ([]byte, error) {
	funcs := buildFuncMap(ctx)

	tmpl, err := template.New(name).Funcs(funcs).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// buildFuncMap constructs the set of template functions available in session.yaml.
func buildFuncMap(ctx TemplateContext) template.FuncMap {
	return template.FuncMap{
		"default":    funcDef,
		"toLower":    strings.ToLower,
		"toUpper":    strings.ToUpper,
		"slug":       funcSlug,
		"envOr":      funcEnvOr(ctx.EnvMap),
		"ternary":    funcTernary,
		"now":        func() time.Time { return ctx.Now },
		"join":       funcJoin,
		"trimPrefix": funcTrimPrefix,
	}
}

// funcDef returns def when value is empty or whitespace, otherwise value.
func funcDef(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// funcSlug normalizes a value into a lower-case dash-separated slug.
func funcSlug(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, " ", "-")
	v = strings.ReplaceAll(v, "_", "-")
	return v
}

// funcEnvOr returns a function that looks up a key in envMap and falls back to def.
func funcEnvOr(envMap env.Vars) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := envMap[key]; ok && v != "" {
			return v
		}
		return def
	}
}

func funcTernary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}

func funcJoin(values []string, sep string) string {
	return strings.Join(values, sep)
}

func funcTrimPrefix(value, prefix string) string {
	return strings.TrimPrefix(value, prefix)
}
