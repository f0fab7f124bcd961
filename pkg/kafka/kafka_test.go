package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type built struct {
		Shard  int      `json:"shard"`
		Shards []string `json:"shards"`
	}
	v, err := DecodeJSON[built]([]byte(`{"shard":1,"shards":["a","b"]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v.Shard)
	assert.Equal(t, []string{"a", "b"}, v.Shards)

	_, err = DecodeJSON[built]([]byte(`{`))
	assert.ErrorContains(t, err, "decoding kafka message")
}
