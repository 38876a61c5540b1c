package exec

import (
	"context"
	"fmt"
	"sync"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/workflow"

	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

// RunStore persists completed run Records for later retrieval (§6 "Run
// record"). The Executor writes exactly once per run, after the run
// finishes or is cancelled.
type RunStore interface {
	Save(ctx context.Context, rec procedure.Record) error
	Get(ctx context.Context, runID string) (procedure.Record, bool, error)
}

// InMemoryRunStore is the default RunStore: a process-local map, adequate
// for the CLI and for tests. Grounded on the teacher's in-memory engine
// idiom (runtime/agent/engine/inmem) of keeping run state in a guarded map
// rather than a database.
type InMemoryRunStore struct {
	mu      sync.RWMutex
	records map[string]procedure.Record
}

// NewInMemoryRunStore constructs an empty store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{records: map[string]procedure.Record{}}
}

// Save records rec, keyed by rec.RunID.
func (s *InMemoryRunStore) Save(_ context.Context, rec procedure.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.RunID] = rec
	return nil
}

// Get returns the record for runID, if one was saved.
func (s *InMemoryRunStore) Get(_ context.Context, runID string) (procedure.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[runID]
	return rec, ok, nil
}

// RecordRunWorkflowName is the workflow type TemporalRunStore registers and
// executes to durably persist one run record. It is a trivial workflow that
// simply returns its input, letting Temporal's own execution history serve
// as the durable store — no activities, no side effects beyond Temporal's
// own persistence.
const RecordRunWorkflowName = "procedure.RecordRun"

// RecordRunWorkflow is the workflow function backing RecordRunWorkflowName.
// Register it with a worker.Worker before using TemporalRunStore against
// that task queue.
func RecordRunWorkflow(ctx workflow.Context, rec procedure.Record) (procedure.Record, error) {
	return rec, nil
}

// TemporalRunStore persists run records as completed Temporal workflow
// executions, keyed by workflow ID = run ID, giving the store Temporal's
// retention/visibility tooling for free. Grounded on the teacher's
// runtime/agent/engine/temporal.Engine for the
// client.StartWorkflowOptions{ID, TaskQueue} / ExecuteWorkflow /
// GetWorkflow idiom, repurposed here for storage instead of orchestration.
type TemporalRunStore struct {
	Client    client.Client
	TaskQueue string
}

// NewTemporalRunStore builds a store that round-trips records through c.
func NewTemporalRunStore(c client.Client, taskQueue string) *TemporalRunStore {
	return &TemporalRunStore{Client: c, TaskQueue: taskQueue}
}

// Save starts (and waits on) a RecordRunWorkflow execution whose sole
// purpose is to park rec in Temporal's durable history under workflow ID
// rec.RunID.
func (s *TemporalRunStore) Save(ctx context.Context, rec procedure.Record) error {
	opts := client.StartWorkflowOptions{
		ID:        rec.RunID,
		TaskQueue: s.TaskQueue,
	}
	run, err := s.Client.ExecuteWorkflow(ctx, opts, RecordRunWorkflowName, rec)
	if err != nil {
		return fmt.Errorf("exec: start record-run workflow: %w", err)
	}
	return run.Get(ctx, nil)
}

// Get replays the completed workflow for runID and decodes its result back
// into a procedure.Record.
func (s *TemporalRunStore) Get(ctx context.Context, runID string) (procedure.Record, bool, error) {
	var rec procedure.Record
	run := s.Client.GetWorkflow(ctx, runID, "")
	if run == nil {
		return procedure.Record{}, false, nil
	}
	if err := run.Get(ctx, &rec); err != nil {
		return procedure.Record{}, false, fmt.Errorf("exec: fetch run %s: %w", runID, err)
	}
	return rec, true, nil
}
