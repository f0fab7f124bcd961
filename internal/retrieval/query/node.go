// Package query holds the operator tree the retrieval core evaluates. Trees
// arrive already parsed, usually as JSON.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// DefaultKey names the unnamed parameter, such as a term's text.
const DefaultKey = "default"

// Node is one operator with its parameters and ordered children.
type Node struct {
	Operator string  `json:"operator"`
	Params   Params  `json:"params,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

func New(operator string, params Params, children ...*Node) *Node {
	return &Node{Operator: operator, Params: params, Children: children}
}

// Text is the leaf for a term looked up in the default part.
func Text(term string) *Node {
	return New("text", Params{DefaultKey: term})
}

func (n *Node) Default() string { return n.Params[DefaultKey] }

// Clone copies the whole subtree.
func (n *Node) Clone() *Node {
	c := &Node{Operator: n.Operator, Params: make(Params, len(n.Params))}
	for k, v := range n.Params {
		c.Params[k] = v
	}
	for _, ch := range n.Children {
		c.Children = append(c.Children, ch.Clone())
	}
	return c
}

// String is the canonical form used to recognise identical subtrees:
// #op:default:k=v( child child ). Keys after the default are sorted.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	b.WriteByte('#')
	b.WriteString(n.Operator)
	if v, ok := n.Params[DefaultKey]; ok {
		b.WriteByte(':')
		b.WriteString(escape(v))
	}
	for _, k := range n.Params.Keys() {
		if k == DefaultKey {
			continue
		}
		b.WriteByte(':')
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(n.Params[k]))
	}
	b.WriteByte('(')
	for _, ch := range n.Children {
		b.WriteByte(' ')
		ch.write(b)
	}
	if len(n.Children) > 0 {
		b.WriteByte(' ')
	}
	b.WriteByte(')')
}

const special = ":=()@# \t\n"

// escape wraps values holding syntax characters as @/value/, choosing a
// delimiter the value does not contain.
func escape(s string) string {
	if s != "" && !strings.ContainsAny(s, special) {
		return s
	}
	for _, d := range "/|!~^$%" {
		if !strings.ContainsRune(s, d) {
			return "@" + string(d) + s + string(d)
		}
	}
	return strconv.Quote(s)
}

// Walk visits n and its descendants depth first, children before parents.
func (n *Node) Walk(fn func(*Node) error) error {
	for _, ch := range n.Children {
		if err := ch.Walk(fn); err != nil {
			return err
		}
	}
	return fn(n)
}

// Decode parses a JSON query tree.
func Decode(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: decode query: %v", apperrors.ErrInvalidInput, err)
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

func (n *Node) validate() error {
	return n.Walk(func(x *Node) error {
		if x.Operator == "" {
			return fmt.Errorf("%w: node without operator", apperrors.ErrInvalidInput)
		}
		return nil
	})
}

// Params are a node's named parameters, stored in their text form.
type Params map[string]string

func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Params) Get(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %s=%q is not a number", apperrors.ErrConstruction, key, v)
	}
	return f, nil
}

func (p Params) Int(key string, def int64) (int64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %s=%q is not an integer", apperrors.ErrConstruction, key, v)
	}
	return i, nil
}

func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: parameter %s=%q is not a boolean", apperrors.ErrConstruction, key, v)
	}
	return b, nil
}

// Set stores v in its canonical text form.
func (p Params) Set(key string, v any) {
	switch x := v.(type) {
	case string:
		p[key] = x
	case json.Number:
		p[key] = x.String()
	case float64:
		p[key] = strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		p[key] = strconv.FormatInt(x, 10)
	case int:
		p[key] = strconv.Itoa(x)
	case bool:
		p[key] = strconv.FormatBool(x)
	default:
		p[key] = fmt.Sprint(x)
	}
}

// UnmarshalJSON accepts scalar values of any JSON type. Numbers keep the
// digits they were sent with.
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*p = make(Params, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return fmt.Errorf("parameter %s must be a scalar", k)
		case nil:
			continue
		}
		p.Set(k, v)
	}
	return nil
}
