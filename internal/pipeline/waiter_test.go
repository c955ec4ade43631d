package pipeline_test

import (
	"context"
	"testing"
	"time"

	"chronicle/internal/pipeline"
	"chronicle/internal/stages"
	"chronicle/internal/store"
	"chronicle/internal/testsupport"
)

func TestWaitForDataReturnsImmediatelyWhenEligible(t *testing.T) {
	st, coord := newTestCoordinator(t)
	batch := testsupport.NewBatch(t, st, "wait-ready")
	testsupport.NewWorkItem(t, st, batch.ID, "chunk-1")

	waiter := pipeline.NewWaiter(coord, nil, 0)
	start := time.Now()
	ready, err := waiter.WaitForData(context.Background(), stages.Segment, pipeline.WaitOptions{
		BatchID:       batch.ID,
		MaxWait:       5 * time.Second,
		CheckInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !ready {
		t.Fatal("expected ready with an eligible item present")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("wait took %v; the first check should not sleep", elapsed)
	}
}

func TestWaitForDataTimesOutAndReportsOnce(t *testing.T) {
	st, coord := newTestCoordinator(t)
	batch := testsupport.NewBatch(t, st, "wait-empty")

	timeouts := 0
	waiter := pipeline.NewWaiter(coord, nil, 0)
	start := time.Now()
	ready, err := waiter.WaitForData(context.Background(), stages.Segment, pipeline.WaitOptions{
		BatchID:       batch.ID,
		MaxWait:       2 * time.Second,
		CheckInterval: 500 * time.Millisecond,
		OnTimeout:     func() { timeouts++ },
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if ready {
		t.Fatal("expected timeout with no eligible items")
	}
	elapsed := time.Since(start)
	if elapsed < 2*time.Second {
		t.Fatalf("returned after %v, before MaxWait elapsed", elapsed)
	}
	if elapsed > 4*time.Second {
		t.Fatalf("returned after %v, well past MaxWait", elapsed)
	}
	if timeouts != 1 {
		t.Fatalf("OnTimeout invoked %d times, want exactly 1", timeouts)
	}
}

func TestWaitForDataObservesItemAddedMidWait(t *testing.T) {
	st, coord := newTestCoordinator(t)
	batch := testsupport.NewBatch(t, st, "wait-late")

	go func() {
		time.Sleep(300 * time.Millisecond)
		_, _ = st.InsertWorkItem(context.Background(), &store.WorkItem{BatchID: batch.ID, Label: "late-arrival"})
	}()

	waiter := pipeline.NewWaiter(coord, nil, 0)
	ready, err := waiter.WaitForData(context.Background(), stages.Segment, pipeline.WaitOptions{
		BatchID:       batch.ID,
		MaxWait:       5 * time.Second,
		CheckInterval: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !ready {
		t.Fatal("expected the waiter to observe the item added mid-wait")
	}
}

func TestWaitForDataHonorsCancellation(t *testing.T) {
	st, coord := newTestCoordinator(t)
	batch := testsupport.NewBatch(t, st, "wait-cancel")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	timeouts := 0
	waiter := pipeline.NewWaiter(coord, nil, 0)
	ready, err := waiter.WaitForData(ctx, stages.Segment, pipeline.WaitOptions{
		BatchID:       batch.ID,
		MaxWait:       10 * time.Second,
		CheckInterval: 100 * time.Millisecond,
		OnTimeout:     func() { timeouts++ },
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ready {
		t.Fatal("expected not ready on cancellation")
	}
	if timeouts != 0 {
		t.Fatal("OnTimeout must not fire on cancellation")
	}
}
