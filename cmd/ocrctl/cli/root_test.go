package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mercadoleve/mercadoleve/internal/ocr"
	"github.com/mercadoleve/mercadoleve/jobs"
)

type stubBackend struct {
	requests []ocr.ProcessRequest
	sweeps   []time.Duration
	stats    jobs.QueueStats
	err      error
	closed   bool
}

func (s *stubBackend) EnqueueProcessBatch(_ context.Context, req ocr.ProcessRequest) (ocr.EnqueuedTask, error) {
	if s.err != nil {
		return ocr.EnqueuedTask{}, s.err
	}
	s.requests = append(s.requests, req)
	return ocr.EnqueuedTask{BatchID: req.BatchID, TaskID: "ocr:process_batch:" + req.BatchID, Queue: jobs.QueueDefault}, nil
}

func (s *stubBackend) EnqueueSweep(_ context.Context, maxAge time.Duration) (string, error) {
	s.sweeps = append(s.sweeps, maxAge)
	return "sweep-1", s.err
}

func (s *stubBackend) QueueStats(context.Context) (jobs.QueueStats, error) {
	return s.stats, s.err
}

func (s *stubBackend) Close() error {
	s.closed = true
	return nil
}

func run(t *testing.T, backend *stubBackend, args ...string) (string, error) {
	t.Helper()
	var addr string
	cmd := NewRootCommand(func(redisAddr string) (Backend, error) {
		addr = redisAddr
		return backend, nil
	})
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--redis", "redis.test:6379"}, args...))
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		require.Equal(t, "redis.test:6379", addr)
	}
	return out.String(), err
}

const (
	batchID       = "7b0d8f0e-2a4c-4a8e-9d35-0f3d6b5f2a10"
	supermarketID = "c3f1e2d4-5b6a-4c7d-8e9f-0a1b2c3d4e5f"
)

func TestEnqueueCommand(t *testing.T) {
	backend := &stubBackend{}
	out, err := run(t, backend, "enqueue", "--batch", batchID, "--supermarket", supermarketID,
		"--image", batchID+"/1.jpg", "--image", batchID+"/2.jpg")
	require.NoError(t, err)
	require.Contains(t, out, "queued batch "+batchID)
	require.True(t, backend.closed)
	require.Len(t, backend.requests, 1)
	require.Len(t, backend.requests[0].ImageFiles, 2)
	require.Equal(t, supermarketID, backend.requests[0].SupermarketID)
}

func TestEnqueueCommandJSON(t *testing.T) {
	out, err := run(t, &stubBackend{}, "--json", "enqueue", "--batch", batchID, "--supermarket", supermarketID, "--image", "a.jpg")
	require.NoError(t, err)
	var task ocr.EnqueuedTask
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	require.Equal(t, batchID, task.BatchID)
}

func TestEnqueueCommandValidatesFlags(t *testing.T) {
	backend := &stubBackend{}
	_, err := run(t, backend, "enqueue", "--batch", "nope", "--supermarket", supermarketID, "--image", "a.jpg")
	require.ErrorContains(t, err, "--batch")

	_, err = run(t, backend, "enqueue", "--batch", batchID, "--supermarket", supermarketID)
	require.ErrorContains(t, err, "--image")
	require.Empty(t, backend.requests)
}

func TestEnqueueCommandReportsConflict(t *testing.T) {
	_, err := run(t, &stubBackend{err: ocr.ErrAlreadyQueued}, "enqueue", "--batch", batchID, "--supermarket", supermarketID, "--image", "a.jpg")
	require.ErrorIs(t, err, ocr.ErrAlreadyQueued)
}

func TestQueueCommand(t *testing.T) {
	backend := &stubBackend{stats: jobs.QueueStats{Queue: jobs.QueueDefault, Pending: 4, Failed: 1}}
	out, err := run(t, backend, "queue")
	require.NoError(t, err)
	require.Contains(t, out, "PENDING")
	require.Contains(t, out, "default")

	backend.err = errors.New("redis down")
	_, err = run(t, backend, "queue")
	require.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	backend := &stubBackend{}
	out, err := run(t, backend, "sweep", "--older-than", "2h")
	require.NoError(t, err)
	require.Contains(t, out, "sweep-1")
	require.Equal(t, []time.Duration{2 * time.Hour}, backend.sweeps)

	_, err = run(t, backend, "sweep", "--older-than", "10s")
	require.Error(t, err)
}
