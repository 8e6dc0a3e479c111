package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// ErrUnknownResource is returned when a name is not registered.
var ErrUnknownResource = errors.New("registry: unknown resource")

//go:embed resources.yaml
var defaultResources []byte

// File is the on-disk layout of a registry.
type File struct {
	Defaults struct {
		StaleTime time.Duration `yaml:"staleTime,omitempty"`
		Retry     *RetryPolicy  `yaml:"retry,omitempty"`
	} `yaml:"defaults"`
	Resources []Definition `yaml:"resources"`
}

// Registry indexes definitions by name. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	dependents  map[string][]string
}

// New builds a registry from defs. Every definition is validated and every
// DependsOn entry must name a registered resource.
func New(defs ...Definition) (*Registry, error) {
	r := &Registry{
		definitions: make(map[string]Definition, len(defs)),
		dependents:  make(map[string][]string),
	}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("resource %q: %w", def.Name, err)
		}
		if _, dup := r.definitions[def.Name]; dup {
			return nil, fmt.Errorf("resource %q: duplicate definition", def.Name)
		}
		r.definitions[def.Name] = def
	}
	if err := r.index(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) index() error {
	dependents := make(map[string][]string)
	for name, def := range r.definitions {
		for _, dep := range def.DependsOn {
			if dep == name {
				return fmt.Errorf("resource %q: cannot depend on itself", name)
			}
			if _, ok := r.definitions[dep]; !ok {
				return fmt.Errorf("resource %q depends on %q: %w", name, dep, ErrUnknownResource)
			}
			dependents[dep] = append(dependents[dep], name)
		}
	}
	for _, names := range dependents {
		sort.Strings(names)
	}
	r.dependents = dependents
	return nil
}

// Load reads a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a registry document and applies its defaults section to
// resources that leave StaleTime or Retry unset.
func LoadBytes(data []byte) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}
	if err := validation.Validate(file.Defaults.Retry); err != nil {
		return nil, fmt.Errorf("registry defaults: %w", err)
	}
	if file.Defaults.StaleTime < 0 {
		return nil, errors.New("registry defaults: staleTime must not be negative")
	}

	defs := make([]Definition, len(file.Resources))
	for i, def := range file.Resources {
		if def.StaleTime == 0 {
			def.StaleTime = file.Defaults.StaleTime
		}
		if def.Retry == nil && file.Defaults.Retry != nil {
			retry := *file.Defaults.Retry
			def.Retry = &retry
		}
		defs[i] = def
	}
	return New(defs...)
}

// Default returns the built-in registry of procurement, inventory and
// platform resources.
func Default() *Registry {
	r, err := LoadBytes(defaultResources)
	if err != nil {
		panic(fmt.Sprintf("registry: built-in resources invalid: %v", err))
	}
	return r
}

// Register adds or replaces def.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("resource %q: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.definitions[def.Name]
	r.definitions[def.Name] = def
	if err := r.index(); err != nil {
		if existed {
			r.definitions[def.Name] = prev
		} else {
			delete(r.definitions, def.Name)
		}
		return err
	}
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return def, nil
}

// Names lists registered resources in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dependents returns the resources that must be invalidated after a write to
// name, not including name itself. Only direct dependents are returned.
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.dependents[name]...)
}
