package supervisor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coreminer/gominer/algo"
	"github.com/coreminer/gominer/ioactor"
	"github.com/coreminer/gominer/work"
)

type fakeRequester struct {
	job *work.Work
}

func (f *fakeRequester) GetWork(ctx context.Context) (*work.Work, string, error) {
	return f.job, "", nil
}

func (f *fakeRequester) SubmitWork(ctx context.Context, w *work.Work) (bool, error) {
	return true, nil
}

func blakeFamily() *algo.Family {
	fam := algo.MustLookup("blake")
	cp := *fam
	cp.Scan = func(workerID int, header [32]uint32, target [8]uint32, maxNonce uint32) algo.ScanResult {
		return algo.ScanResult{RC: 0, HashesDone: 1}
	}
	return &cp
}

func TestRunStopsOnRequestShutdown(t *testing.T) {
	fam := blakeFamily()
	req := &fakeRequester{job: &work.Work{JobID: "j1"}}
	cfg := Config{
		WorkerCount: 2,
		Algo:        fam,
		ScanTime:    time.Minute,
		HaveStratum: true,
	}
	sup := New(cfg, req, nil, nil, nil, nil, zap.NewNop().Sugar())
	sup.CurrentWork().Publish(&work.Work{JobID: "j1"}, 0, time.Now())

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sup.RequestShutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after RequestShutdown")
	}
	if !sup.Aborted() {
		t.Fatalf("expected Aborted() to report true after shutdown")
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	fam := blakeFamily()
	req := &fakeRequester{job: &work.Work{JobID: "j1"}}
	cfg := Config{
		WorkerCount: 1,
		Algo:        fam,
		ScanTime:    time.Minute,
		HaveStratum: true,
	}
	sup := New(cfg, req, nil, nil, nil, nil, zap.NewNop().Sugar())
	sup.CurrentWork().Publish(&work.Work{JobID: "j1"}, 0, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	fam := blakeFamily()
	req := &fakeRequester{}
	sup := New(Config{WorkerCount: 1, Algo: fam, ScanTime: time.Minute, HaveStratum: true}, req, nil, nil, nil, nil, zap.NewNop().Sugar())

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)

	sup.RequestShutdown()
	sup.RequestShutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestCommandsQueueAcceptsSubmissions(t *testing.T) {
	fam := blakeFamily()
	req := &fakeRequester{}
	sup := New(Config{WorkerCount: 1, Algo: fam, ScanTime: time.Minute, HaveStratum: true, IOQueueCap: 2}, req, nil, nil, nil, nil, zap.NewNop().Sugar())

	select {
	case sup.Commands() <- ioactor.Command{Kind: ioactor.CmdSubmitWork, Job: &work.Work{PoolID: 0}}:
	default:
		t.Fatalf("expected the command queue to accept a queued submission")
	}
}
