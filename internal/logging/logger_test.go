package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigureAndGet(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Configure(zap.New(core), true)
	defer Configure(zap.NewNop(), false)

	Infof(CategorySync, "tick started")
	Debugf(CategoryGraph, "upsert %s", "file.go")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "sync", entries[0].ContextMap()["category"])
	require.Equal(t, "graph", entries[1].ContextMap()["category"])
}

func TestDebugfNoopWhenDisabled(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Configure(zap.New(core), false)
	defer Configure(zap.NewNop(), false)

	Debugf(CategoryVector, "should not appear")
	require.Len(t, logs.All(), 0)
}

func TestTimerStopWithThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Configure(zap.New(core), true)
	defer Configure(zap.NewNop(), false)

	timer := StartTimer(CategoryEmbedding, "embed_batch")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Millisecond)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zap.WarnLevel, entries[0].Level)
}
