package main

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/murmur/internal/metrics"
)

type scriptedPool struct {
	snapshots []sql.DBStats
	calls     int
}

func (p *scriptedPool) Stats() sql.DBStats {
	i := p.calls
	if i >= len(p.snapshots) {
		i = len(p.snapshots) - 1
	}
	p.calls++
	return p.snapshots[i]
}

func TestWatchStorePool_SamplesBeforeReturning(t *testing.T) {
	pool := &scriptedPool{snapshots: []sql.DBStats{{InUse: 3, Idle: 2, MaxOpenConnections: 20}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	watchStorePool(ctx, pool, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), time.Hour)

	require.Equal(t, 1, pool.calls)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.StoreConnections.WithLabelValues("in_use")))
	assert.Equal(t, 20.0, testutil.ToFloat64(metrics.StoreConnections.WithLabelValues("limit")))
}

func TestPoolWatcher_WarnsOnNewWaits(t *testing.T) {
	var buf bytes.Buffer
	pool := &scriptedPool{snapshots: []sql.DBStats{
		{InUse: 20, MaxOpenConnections: 20},
		{InUse: 20, MaxOpenConnections: 20, WaitCount: 4},
		{InUse: 5, MaxOpenConnections: 20, WaitCount: 4},
	}}
	w := &poolWatcher{src: pool, logger: slog.New(slog.NewTextHandler(&buf, nil))}

	w.sample()
	assert.Empty(t, buf.String())

	w.sample()
	assert.Contains(t, buf.String(), "memory store pool saturated")
	assert.Contains(t, buf.String(), "new_waits=4")

	buf.Reset()
	w.sample()
	assert.Empty(t, buf.String())
}
