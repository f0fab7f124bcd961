package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

func TestNodeString(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"leaf", Text("whale"), "#text:whale()"},
		{
			"sorted params",
			New("combine", Params{"w": "0.5", "norm": "false"}, Text("a"), Text("b")),
			"#combine:norm=false:w=0.5( #text:a() #text:b() )",
		},
		{
			"default first",
			New("od", Params{DefaultKey: "5", "part": "postings"}, Text("x")),
			"#od:5:part=postings( #text:x() )",
		},
		{"escaped", Text("new york"), "#text:@/new york/()"},
		{"empty value", New("text", Params{DefaultKey: ""}), "#text:@//()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.String())
		})
	}
}

func TestIdenticalSubtreesShareString(t *testing.T) {
	a := New("od", Params{DefaultKey: "1"}, Text("big"), Text("fish"))
	b := a.Clone()
	assert.Equal(t, a.String(), b.String())

	b.Params["width"] = "2"
	assert.NotEqual(t, a.String(), b.String())
	assert.NotContains(t, a.Params, "width")
}

func TestDecode(t *testing.T) {
	n, err := Decode([]byte(`{
		"operator": "combine",
		"params": {"w": 0.5, "norm": false},
		"children": [
			{"operator": "dirichlet", "params": {"mu": 1500}, "children": [{"operator": "text", "params": {"default": "whale"}}]},
			{"operator": "text", "params": {"default": "ship"}}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "#combine:norm=false:w=0.5( #dirichlet:mu=1500( #text:whale() ) #text:ship() )", n.String())

	mu, err := n.Children[0].Params.Float("mu", 0)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, mu)
	norm, err := n.Params.Bool("norm", true)
	require.NoError(t, err)
	assert.False(t, norm)
}

func TestDecodeKeepsLargeIntegers(t *testing.T) {
	n, err := Decode([]byte(`{"operator": "dirichlet", "params": {
		"collectionLength": 5000000000,
		"nodeFrequency": 1000000,
		"collectionFrequency": 9007199254740993
	}, "children": [{"operator": "text", "params": {"default": "whale"}}]}`))
	require.NoError(t, err)

	tests := []struct {
		key  string
		want int64
	}{
		{"collectionLength", 5000000000},
		{"nodeFrequency", 1000000},
		{"collectionFrequency", 1<<53 + 1},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := n.Params.Int(tt.key, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, in := range []string{
		`{"operator": "combine", "children": [{"params": {}}]}`,
		`{"operator": "text", "params": {"default": ["a"]}}`,
		`not json`,
	} {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, in)
	}
}

func TestParamConversions(t *testing.T) {
	p := Params{"k": "abc"}
	_, err := p.Float("k", 0)
	assert.ErrorIs(t, err, apperrors.ErrConstruction)
	_, err = p.Int("k", 0)
	assert.ErrorIs(t, err, apperrors.ErrConstruction)

	v, err := p.Int("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, "abc", p.Get("k", ""))
	assert.Equal(t, "x", p.Get("missing", "x"))
}
