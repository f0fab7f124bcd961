package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	c := NewChecker()
	c.Register("shards", ShardsCheck(func() int { return 2 }))
	c.Register("redis", OptionalPingCheck(func(context.Context) error { return errors.New("connection refused") }))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "2 shards open", report.Components["shards"].Message)
	assert.Equal(t, StatusDegraded, report.Components["redis"].Status)

	c.Register("postgres", PingCheck(func(context.Context) error { return errors.New("timeout") }))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestPanickingCheck(t *testing.T) {
	c := NewChecker()
	c.Register("bad", func(context.Context) ComponentHealth { panic("boom") })
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["bad"].Message, "boom")
}

func TestReadyHandler(t *testing.T) {
	shards := 0
	c := NewChecker()
	c.Register("shards", ShardsCheck(func() int { return shards }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	shards = 1
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUp, report.Status)
}
