package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/events"
)

type fakeReloader struct {
	dirs    []string
	reloads int
	err     error
}

func (f *fakeReloader) Reload(_ context.Context, dirs []string) error {
	if f.err != nil {
		return f.err
	}
	f.dirs = dirs
	f.reloads++
	return nil
}

func (f *fakeReloader) Dirs() []string { return f.dirs }

func encode(t *testing.T, e events.IndexBuilt) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestHandleIndexBuilt(t *testing.T) {
	r := &fakeReloader{dirs: []string{"/data/0/1"}}
	handle := HandleIndexBuilt(r)
	ctx := context.Background()

	built := events.IndexBuilt{Type: events.TypeIndexBuilt, BuildID: 2, Shards: []string{"/data/0/2", "/data/1/1"}}
	require.NoError(t, handle(ctx, []byte("0"), encode(t, built)))
	assert.Equal(t, []string{"/data/0/2", "/data/1/1"}, r.dirs)
	assert.Equal(t, 1, r.reloads)

	// same set again is a no-op
	require.NoError(t, handle(ctx, nil, encode(t, built)))
	assert.Equal(t, 1, r.reloads)
}

func TestHandleIndexBuiltSkipsBadMessages(t *testing.T) {
	r := &fakeReloader{}
	handle := HandleIndexBuilt(r)
	ctx := context.Background()

	assert.NoError(t, handle(ctx, nil, []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, encode(t, events.IndexBuilt{Type: events.TypeQuery, Shards: []string{"x"}})))
	assert.NoError(t, handle(ctx, nil, encode(t, events.IndexBuilt{Type: events.TypeIndexBuilt})))
	assert.Zero(t, r.reloads)
}

func TestHandleIndexBuiltReturnsReloadErrors(t *testing.T) {
	boom := errors.New("part missing")
	handle := HandleIndexBuilt(&fakeReloader{err: boom})
	err := handle(context.Background(), nil, encode(t, events.IndexBuilt{Type: events.TypeIndexBuilt, BuildID: 9, Shards: []string{"/d"}}))
	assert.ErrorIs(t, err, boom)
}
