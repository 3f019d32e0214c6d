// Package tools holds the functions the agent may call during a conversation.
package tools

import (
	"context"
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/callgpt/pkg/llm"
)

//go:embed manifest.yaml
var manifestYAML []byte

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// Definition is one manifest entry. Say is spoken to the caller before the
// tool runs.
type Definition struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Say         string         `yaml:"say"`
	Parameters  map[string]any `yaml:"parameters"`
}

type manifest struct {
	Tools []Definition `yaml:"tools"`
}

// Func executes a tool with validated arguments and returns the text handed
// back to the model.
type Func func(ctx context.Context, args map[string]any) (string, error)

type Tool struct {
	Definition
	fn     Func
	schema *gojsonschema.Schema
}

// Validate checks raw JSON arguments against the tool's parameter schema.
func (t *Tool) Validate(raw []byte) error {
	if t.schema == nil {
		return nil
	}
	res, err := t.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrap(ErrInvalidArgs, err.Error())
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Wrap(ErrInvalidArgs, strings.Join(msgs, "; "))
	}
	return nil
}

func (t *Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	if t.fn == nil {
		return "", errors.Errorf("tool %s has no implementation", t.Name)
	}
	return t.fn(ctx, args)
}

// Registry maps tool names to their definitions and implementations.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	tools map[string]*Tool
}

// NewRegistry loads the embedded manifest. Tools become callable once registered.
func NewRegistry() (*Registry, error) {
	return NewRegistryFromManifest(manifestYAML)
}

func NewRegistryFromManifest(data []byte) (*Registry, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse tool manifest")
	}
	r := &Registry{defs: map[string]Definition{}, tools: map[string]*Tool{}}
	for _, d := range m.Tools {
		if d.Name == "" {
			return nil, errors.New("tool manifest: entry without name")
		}
		if _, ok := r.defs[d.Name]; ok {
			return nil, errors.Errorf("tool manifest: duplicate tool %s", d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// Register binds an implementation to a manifest entry.
func (r *Registry) Register(name string, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.defs[name]
	if !ok {
		return errors.Wrapf(ErrUnknownTool, "register %s", name)
	}
	t := &Tool{Definition: def, fn: fn}
	if len(def.Parameters) > 0 {
		raw, err := json.Marshal(def.Parameters)
		if err != nil {
			return errors.Wrapf(err, "marshal schema for %s", name)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return errors.Wrapf(err, "compile schema for %s", name)
		}
		t.schema = schema
	}
	r.tools[name] = t
	return nil
}

func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs lists registered tools for the provider, sorted by name.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, llm.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
