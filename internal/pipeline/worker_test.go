package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chronicle/internal/pipeline"
	"chronicle/internal/stages"
	"chronicle/internal/store"
	"chronicle/internal/testsupport"
)

type fakeProcessor struct {
	stage string
	fn    func(item *store.WorkItem, upstream map[string][]byte) ([]byte, error)
	calls int
}

func (p *fakeProcessor) Stage() string { return p.stage }

func (p *fakeProcessor) Process(ctx context.Context, item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
	p.calls++
	if p.fn == nil {
		return []byte(`{}`), nil
	}
	return p.fn(item, upstream)
}

func seedSource(t *testing.T, st *store.Store, itemID int64, text string) {
	t.Helper()
	if _, err := st.InsertStageResult(context.Background(), itemID, store.SourceStage, text, nil, "test"); err != nil {
		t.Fatalf("insert source record: %v", err)
	}
}

func TestRunPassProcessesEligibleItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coord := pipeline.NewCoordinator(st, stages.Default(), nil)
	ctx := context.Background()
	batch := testsupport.NewBatch(t, st, "pass")
	item := testsupport.NewWorkItem(t, st, batch.ID, "chunk-1")
	seedSource(t, st, item.ID, "hello world")

	proc := &fakeProcessor{
		stage: stages.Segment,
		fn: func(item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
			if string(upstream[store.SourceStage]) != "hello world" {
				t.Errorf("upstream = %q, want the source record", upstream[store.SourceStage])
			}
			return []byte(`{"segments":1}`), nil
		},
	}
	worker := pipeline.NewWorker(coord, proc, nil, cfg)

	summary, err := worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID})
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	completion, err := st.CompletionFor(ctx, item.ID, stages.Segment)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if completion == nil || completion.Status != store.CompletionCompleted {
		t.Fatalf("completion = %+v, want completed", completion)
	}
	result, err := st.LatestStageResult(ctx, item.ID, stages.Segment)
	if err != nil {
		t.Fatalf("latest result: %v", err)
	}
	if result == nil || result.Payload != `{"segments":1}` {
		t.Fatalf("result = %+v", result)
	}
	if result.ProducerVersion != cfg.Ingest.ProducerVersion {
		t.Fatalf("producer version = %q, want %q", result.ProducerVersion, cfg.Ingest.ProducerVersion)
	}

	// A second pass finds nothing eligible: completion excludes the item.
	summary, err = worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID})
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("second pass summary = %+v, want nothing processed", summary)
	}
}

func TestRunPassIsolatesItemFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coord := pipeline.NewCoordinator(st, stages.Default(), nil)
	ctx := context.Background()
	batch := testsupport.NewBatch(t, st, "isolation")
	bad := testsupport.NewWorkItem(t, st, batch.ID, "bad")
	good := testsupport.NewWorkItem(t, st, batch.ID, "good")
	seedSource(t, st, bad.ID, "x")
	seedSource(t, st, good.ID, "y")

	proc := &fakeProcessor{
		stage: stages.Segment,
		fn: func(item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
			if item.ID == bad.ID {
				return nil, errors.New("malformed chunk")
			}
			return []byte(`{}`), nil
		},
	}
	worker := pipeline.NewWorker(coord, proc, nil, cfg)

	summary, err := worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID})
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want one processed and one failed", summary)
	}

	completion, err := st.CompletionFor(ctx, bad.ID, stages.Segment)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if completion.Status != store.CompletionFailed {
		t.Fatalf("bad item status = %q, want failed", completion.Status)
	}
	if completion.ErrorMessage != "malformed chunk" {
		t.Fatalf("error message = %q", completion.ErrorMessage)
	}
	if completion.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", completion.RetryCount)
	}

	goodCompletion, err := st.CompletionFor(ctx, good.ID, stages.Segment)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if goodCompletion.Status != store.CompletionCompleted {
		t.Fatalf("good item status = %q, want completed", goodCompletion.Status)
	}
}

func TestRunPassRetriesFailedItemsByDefault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coord := pipeline.NewCoordinator(st, stages.Default(), nil)
	ctx := context.Background()
	batch := testsupport.NewBatch(t, st, "retry-default")
	item := testsupport.NewWorkItem(t, st, batch.ID, "flaky")
	seedSource(t, st, item.ID, "x")

	attempts := 0
	proc := &fakeProcessor{
		stage: stages.Segment,
		fn: func(*store.WorkItem, map[string][]byte) ([]byte, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("transient")
			}
			return []byte(`{}`), nil
		},
	}
	worker := pipeline.NewWorker(coord, proc, nil, cfg)

	if _, err := worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID}); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	summary, err := worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID})
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("summary = %+v, want the failed item retried and processed", summary)
	}
	completion, err := st.CompletionFor(ctx, item.ID, stages.Segment)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if completion.Status != store.CompletionCompleted {
		t.Fatalf("status = %q, want completed after retry", completion.Status)
	}
}

func TestRunPassSkipsItemsPastRetryLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MaxRetries = 1
	st := testsupport.MustOpenStore(t, cfg)
	coord := pipeline.NewCoordinator(st, stages.Default(), nil)
	ctx := context.Background()
	batch := testsupport.NewBatch(t, st, "retry-limit")
	item := testsupport.NewWorkItem(t, st, batch.ID, "hopeless")
	seedSource(t, st, item.ID, "x")

	proc := &fakeProcessor{
		stage: stages.Segment,
		fn: func(*store.WorkItem, map[string][]byte) ([]byte, error) {
			return nil, errors.New("always broken")
		},
	}
	worker := pipeline.NewWorker(coord, proc, nil, cfg)

	summary, err := worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID})
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("first pass summary = %+v", summary)
	}

	summary, err = worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID})
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if summary.Skipped != 1 || summary.Failed != 0 {
		t.Fatalf("second pass summary = %+v, want the item skipped", summary)
	}
	if proc.calls != 1 {
		t.Fatalf("processor called %d times, want 1", proc.calls)
	}

	// Explicit resume clears the limit and re-attempts.
	summary, err = worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID, ResumeFailed: true})
	if err != nil {
		t.Fatalf("resume pass: %v", err)
	}
	if summary.Failed != 1 || summary.Skipped != 0 {
		t.Fatalf("resume pass summary = %+v, want a fresh attempt", summary)
	}
	if proc.calls != 2 {
		t.Fatalf("processor called %d times, want 2", proc.calls)
	}
}

func TestRunPassLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coord := pipeline.NewCoordinator(st, stages.Default(), nil)
	ctx := context.Background()
	batch := testsupport.NewBatch(t, st, "limit")
	for _, label := range []string{"a", "b", "c"} {
		item := testsupport.NewWorkItem(t, st, batch.ID, label)
		seedSource(t, st, item.ID, label)
	}

	proc := &fakeProcessor{stage: stages.Segment}
	worker := pipeline.NewWorker(coord, proc, nil, cfg)

	summary, err := worker.RunPass(ctx, pipeline.PassOptions{BatchID: batch.ID, Limit: 2})
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("summary = %+v, want exactly the limit processed", summary)
	}
}

func TestRunProcessesUntilCanceled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coord := pipeline.NewCoordinator(st, stages.Default(), nil)
	batch := testsupport.NewBatch(t, st, "continuous")
	item := testsupport.NewWorkItem(t, st, batch.ID, "chunk-1")
	seedSource(t, st, item.ID, "x")

	proc := &fakeProcessor{stage: stages.Segment}
	worker := pipeline.NewWorker(coord, proc, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for {
		completion, err := st.CompletionFor(context.Background(), item.ID, stages.Segment)
		if err != nil {
			t.Fatalf("completion: %v", err)
		}
		if completion != nil && completion.Status == store.CompletionCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never completed the item")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
