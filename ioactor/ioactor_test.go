package ioactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coreminer/gominer/work"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

type fakeRequester struct {
	mu sync.Mutex

	getWorkErrs   []error
	getWorkCalls  int
	getWorkJob    *work.Work
	getWorkLPPath string

	submitErrs  []error
	submitCalls int
	submitOK    bool
}

func (f *fakeRequester) GetWork(ctx context.Context) (*work.Work, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.getWorkCalls
	f.getWorkCalls++
	if idx < len(f.getWorkErrs) && f.getWorkErrs[idx] != nil {
		return nil, "", f.getWorkErrs[idx]
	}
	return f.getWorkJob, f.getWorkLPPath, nil
}

func (f *fakeRequester) SubmitWork(ctx context.Context, w *work.Work) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.submitCalls
	f.submitCalls++
	if idx < len(f.submitErrs) && f.submitErrs[idx] != nil {
		return false, f.submitErrs[idx]
	}
	return f.submitOK, nil
}

func constPoolID(id int) func() int {
	return func() int { return id }
}

func TestGetWorkSuccessDeliversReply(t *testing.T) {
	job := &work.Work{JobID: "abc"}
	f := &fakeRequester{getWorkJob: job, getWorkLPPath: "/lp/1"}
	a := NewActor(f, 4, 3, time.Millisecond, testLogger())

	reply := make(chan GetWorkResult, 1)
	a.Commands() <- Command{Kind: CmdGetWork, Reply: reply}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case res := <-reply:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Job != job {
			t.Fatalf("expected the fake's job to be delivered")
		}
		if res.LongPollPath != "/lp/1" {
			t.Fatalf("expected long-poll path to be forwarded")
		}
	default:
		t.Fatalf("expected a reply on the channel")
	}
}

func TestGetWorkRetriesThenSucceeds(t *testing.T) {
	f := &fakeRequester{
		getWorkErrs: []error{errors.New("boom"), errors.New("boom again")},
		getWorkJob:  &work.Work{JobID: "ok"},
	}
	a := NewActor(f, 4, 5, time.Millisecond, testLogger())

	reply := make(chan GetWorkResult, 1)
	a.Commands() <- Command{Kind: CmdGetWork, Reply: reply}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := <-reply
	if res.Err != nil {
		t.Fatalf("expected eventual success, got %v", res.Err)
	}
	if f.getWorkCalls != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", f.getWorkCalls)
	}
}

func TestGetWorkPersistentFailureTerminates(t *testing.T) {
	f := &fakeRequester{
		getWorkErrs: []error{errors.New("1"), errors.New("2"), errors.New("3")},
	}
	a := NewActor(f, 4, 1, time.Millisecond, testLogger())

	reply := make(chan GetWorkResult, 1)
	a.Commands() <- Command{Kind: CmdGetWork, Reply: reply}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := a.Run(ctx, constPoolID(0))
	if !errors.Is(err, ErrPersistentFailure) {
		t.Fatalf("expected ErrPersistentFailure, got %v", err)
	}

	res := <-reply
	if res.Err == nil {
		t.Fatalf("expected the reply to carry the terminal error")
	}
}

func TestSubmitWorkDroppedForStalePool(t *testing.T) {
	f := &fakeRequester{submitOK: true}
	a := NewActor(f, 4, 3, time.Millisecond, testLogger())

	job := &work.Work{JobID: "x", PoolID: 1}
	a.Commands() <- Command{Kind: CmdSubmitWork, Job: job}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.submitCalls != 0 {
		t.Fatalf("expected submission for a stale pool id to be dropped, got %d calls", f.submitCalls)
	}
}

func TestSubmitWorkAcceptedForCurrentPool(t *testing.T) {
	f := &fakeRequester{submitOK: true}
	a := NewActor(f, 4, 3, time.Millisecond, testLogger())

	job := &work.Work{JobID: "x", PoolID: 2}
	a.Commands() <- Command{Kind: CmdSubmitWork, Job: job}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(2)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.submitCalls != 1 {
		t.Fatalf("expected exactly one submission attempt, got %d", f.submitCalls)
	}
}

func TestSubmitWorkPersistentFailureTerminates(t *testing.T) {
	f := &fakeRequester{submitErrs: []error{errors.New("1"), errors.New("2")}}
	a := NewActor(f, 4, 0, time.Millisecond, testLogger())

	job := &work.Work{JobID: "x", PoolID: 0}
	a.Commands() <- Command{Kind: CmdSubmitWork, Job: job}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := a.Run(ctx, constPoolID(0))
	if !errors.Is(err, ErrPersistentFailure) {
		t.Fatalf("expected ErrPersistentFailure, got %v", err)
	}
}

func TestSubmitWorkDroppedForStaleHeight(t *testing.T) {
	f := &fakeRequester{submitOK: true}
	a := NewActor(f, 4, 3, time.Millisecond, testLogger())
	a.EnableStaleWorkCheck(func() *work.Work { return &work.Work{Height: 100} }, false)

	job := &work.Work{JobID: "x", PoolID: 0, Height: 99}
	a.Commands() <- Command{Kind: CmdSubmitWork, Job: job}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.submitCalls != 0 {
		t.Fatalf("expected stale-height submission to be dropped without network I/O, got %d calls", f.submitCalls)
	}
}

func TestSubmitWorkStaleHeightSuppressedBySubmitOld(t *testing.T) {
	f := &fakeRequester{submitOK: true}
	a := NewActor(f, 4, 3, time.Millisecond, testLogger())
	a.EnableStaleWorkCheck(func() *work.Work { return &work.Work{Height: 100} }, false)

	job := &work.Work{JobID: "x", PoolID: 0, Height: 99, SubmitOld: true}
	a.Commands() <- Command{Kind: CmdSubmitWork, Job: job}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.submitCalls != 1 {
		t.Fatalf("expected SubmitOld to suppress the height check, got %d calls", f.submitCalls)
	}
}

func TestSubmitWorkDroppedForHeaderPrefixDrift(t *testing.T) {
	f := &fakeRequester{submitOK: true}
	a := NewActor(f, 4, 3, time.Millisecond, testLogger())

	current := &work.Work{}
	current.Data[1] = 0xaabbccdd
	a.EnableStaleWorkCheck(func() *work.Work { return current }, true)

	job := &work.Work{JobID: "x", PoolID: 0}
	job.Data[1] = 0x11223344
	a.Commands() <- Command{Kind: CmdSubmitWork, Job: job}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.submitCalls != 0 {
		t.Fatalf("expected header-prefix-drift submission to be dropped, got %d calls", f.submitCalls)
	}
}

func TestSubmitWorkAcceptedWhenNotStale(t *testing.T) {
	f := &fakeRequester{submitOK: true}
	a := NewActor(f, 4, 3, time.Millisecond, testLogger())
	a.EnableStaleWorkCheck(func() *work.Work { return &work.Work{Height: 100} }, false)

	job := &work.Work{JobID: "x", PoolID: 0, Height: 100}
	a.Commands() <- Command{Kind: CmdSubmitWork, Job: job}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.submitCalls != 1 {
		t.Fatalf("expected exactly one submission attempt, got %d", f.submitCalls)
	}
}

func TestSetRequesterSwapsActiveClient(t *testing.T) {
	first := &fakeRequester{submitErrs: []error{errors.New("no client yet")}}
	a := NewActor(first, 4, 5, time.Millisecond, testLogger())

	second := &fakeRequester{submitOK: true}
	a.SetRequester(second)

	job := &work.Work{JobID: "x", PoolID: 0}
	a.Commands() <- Command{Kind: CmdSubmitWork, Job: job}
	a.Commands() <- Command{Kind: CmdAbort}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Run(ctx, constPoolID(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if first.submitCalls != 0 {
		t.Fatalf("expected the swapped-out requester to see no calls, got %d", first.submitCalls)
	}
	if second.submitCalls != 1 {
		t.Fatalf("expected the swapped-in requester to handle the submission, got %d", second.submitCalls)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	f := &fakeRequester{}
	a := NewActor(f, 4, 3, time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	var ran int32
	done := make(chan error, 1)
	go func() {
		atomic.StoreInt32(&ran, 1)
		done <- a.Run(ctx, constPoolID(0))
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}
