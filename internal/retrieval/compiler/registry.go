package compiler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// Builder constructs the iterator for node from its already compiled
// children.
type Builder func(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error)

type alias struct {
	operator string
	params   query.Params
}

// Registry maps operator names to builders. Aliases bind a new name to an
// existing operator with preset parameters.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
	aliases  map[string]alias
}

// NewRegistry returns a registry holding the built-in operators.
func NewRegistry() *Registry {
	r := &Registry{
		builders: make(map[string]Builder),
		aliases:  make(map[string]alias),
	}
	for name, b := range builtins() {
		r.builders[name] = b
	}
	return r
}

// NewRegistryFromConfig adds the configured aliases to the built-ins.
func NewRegistryFromConfig(ops map[string]config.OperatorConfig) (*Registry, error) {
	r := NewRegistry()
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		op := ops[name]
		if err := r.Alias(name, op.Operator, op.Params); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a builder under name. Names already taken are rejected.
func (r *Registry) Register(name string, b Builder) error {
	if name == "" || b == nil {
		return fmt.Errorf("%w: register requires a name and a builder", apperrors.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(name) {
		return fmt.Errorf("%w: operator %q already registered", apperrors.ErrInvalidInput, name)
	}
	r.builders[name] = b
	return nil
}

// Alias makes name compile as operator with params as parameter defaults.
func (r *Registry) Alias(name, operator string, params map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(name) {
		return fmt.Errorf("%w: operator %q already registered", apperrors.ErrInvalidInput, name)
	}
	if _, ok := r.builders[operator]; !ok {
		return fmt.Errorf("%w: alias %q targets unknown operator %q", apperrors.ErrBadOperator, name, operator)
	}
	p := make(query.Params, len(params))
	for k, v := range params {
		p[k] = v
	}
	r.aliases[name] = alias{operator: operator, params: p}
	return nil
}

func (r *Registry) taken(name string) bool {
	_, b := r.builders[name]
	_, a := r.aliases[name]
	return a || b
}

// resolve returns the builder for node and the node with any alias
// defaults applied. The caller's node is never modified.
func (r *Registry) resolve(node *query.Node) (Builder, *query.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.aliases[node.Operator]; ok {
		resolved := &query.Node{Operator: a.operator, Params: make(query.Params), Children: node.Children}
		for k, v := range a.params {
			resolved.Params[k] = v
		}
		for k, v := range node.Params {
			resolved.Params[k] = v
		}
		return r.builders[a.operator], resolved, nil
	}
	b, ok := r.builders[node.Operator]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown operator %q", apperrors.ErrBadOperator, node.Operator)
	}
	return b, node, nil
}

// Operators lists every registered name, aliases included.
func (r *Registry) Operators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders)+len(r.aliases))
	for n := range r.builders {
		names = append(names, n)
	}
	for n := range r.aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
