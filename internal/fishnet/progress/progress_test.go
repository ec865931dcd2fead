package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lichess-org/fishnet-go/internal/fishnet/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	mu    sync.Mutex
	posts []string
	status int
	err    error
}

func (f *fakePoster) Post(ctx context.Context, path string, body []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, path)
	if f.err != nil {
		return 0, f.err
	}
	if f.status == 0 {
		return 204, nil
	}
	return f.status, nil
}

func (f *fakePoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func TestSendPostsQueuedItem(t *testing.T) {
	p := &fakePoster{}
	r := New(p, 4)
	go r.Run(context.Background())

	r.Send(context.Background(), "job1", job.AnalysisResult{{Skipped: true}})

	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, time.Millisecond)
	r.Stop()
	<-r.Done()
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	p := &fakePoster{}
	r := New(p, 1)
	// No Run goroutine started: the queue never drains, so the second Send
	// must be dropped rather than block.
	r.Send(context.Background(), "a", job.AnalysisResult{{Skipped: true}})
	r.Send(context.Background(), "b", job.AnalysisResult{{Skipped: true}})

	assert.Len(t, r.queue, 1)
}

func TestStopExitsRunPromptly(t *testing.T) {
	p := &fakePoster{}
	r := New(p, 4)
	go r.Run(context.Background())

	r.Stop()
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}
