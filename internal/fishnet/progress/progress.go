// Package progress implements the progress reporter: a single background
// task that drains a bounded, lossy queue of partial analysis snapshots and
// posts them to the coordinator, never blocking the analysis loop that feeds
// it.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lichess-org/fishnet-go/internal/fishnet/job"
	"github.com/seekerror/logw"
)

// Poster posts one progress payload to the coordinator's analysis endpoint
// and returns the HTTP status code. It is implemented by package transport;
// kept as a narrow interface here so progress has no dependency on the HTTP
// client's own retry/backoff machinery.
type Poster interface {
	Post(ctx context.Context, path string, body []byte) (status int, err error)
}

type item struct {
	path string
	data []byte
}

// Reporter owns the bounded queue and the single goroutine draining it. The
// queue size is chosen by the caller; the original convention is one slot per
// worker plus a handful of spares (len(workers) + 4).
type Reporter struct {
	poster Poster
	queue  chan item
	quit   chan struct{}
	done   chan struct{}
}

// New returns a Reporter with the given queue capacity. Run must be started
// in its own goroutine before Send is useful.
func New(poster Poster, queueSize int) *Reporter {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Reporter{
		poster: poster,
		queue:  make(chan item, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Send enqueues a partial analysis snapshot for jobID. If the queue is full
// the item is dropped — analysis progress is speculative, so losing one
// snapshot is preferable to blocking the caller's analysis loop.
func (r *Reporter) Send(ctx context.Context, jobID string, result job.AnalysisResult) {
	data, err := json.Marshal(result)
	if err != nil {
		logw.Errorf(ctx, "Could not encode progress report for %v: %v", jobID, err)
		return
	}

	select {
	case r.queue <- item{path: fmt.Sprintf("analysis/%s", jobID), data: data}:
	default:
		logw.Debugf(ctx, "Could not keep up with progress reports. Dropping one.")
	}
}

// Stop drains any queued items and signals Run to exit. Items queued after
// the drain but before Run observes the signal may still be posted once;
// Stop does not guarantee Run exits with an empty queue, only that it will
// exit promptly.
func (r *Reporter) Stop() {
drain:
	for {
		select {
		case <-r.queue:
		default:
			break drain
		}
	}
	close(r.quit)
}

// Done returns a channel closed once Run has returned.
func (r *Reporter) Done() <-chan struct{} {
	return r.done
}

// Run drains the queue until Stop is called, posting each item in turn. It
// is meant to be the entire body of its own goroutine.
func (r *Reporter) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case it := <-r.queue:
			r.post(ctx, it)
		case <-r.quit:
			return
		}
	}
}

func (r *Reporter) post(ctx context.Context, it item) {
	status, err := r.poster.Post(ctx, it.path, it.data)
	if err != nil {
		logw.Warningf(ctx, "Could not send progress report (%v). Continuing.", err)
		return
	}

	switch {
	case status == 429:
		logw.Errorf(ctx, "Too many requests. Suspending progress reports for 60s ...")
		time.Sleep(60 * time.Second)
	case status != 204:
		logw.Errorf(ctx, "Expected status 204 for progress report, got %d", status)
	}
}
