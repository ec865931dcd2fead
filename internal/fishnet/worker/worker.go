// Package worker implements the per-engine job loop of spec §4.5: ensure the
// engine subprocess is alive, execute the current job (or acquire a new one),
// post the result, and classify the response into no-job/job/error outcomes
// with the appropriate backoff.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lichess-org/fishnet-go/internal/fishnet/enginechan"
	"github.com/lichess-org/fishnet-go/internal/fishnet/executor"
	"github.com/lichess-org/fishnet-go/internal/fishnet/job"
	"github.com/lichess-org/fishnet-go/internal/fishnet/transport"
	"github.com/lichess-org/fishnet-go/internal/fishnet/uciclient"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
)

// Transport is the narrow collaborator a Worker needs from package
// transport: post a request envelope, get back a classifiable response.
type Transport interface {
	Do(ctx context.Context, path string, body []byte) (*transport.Response, error)
}

// ProgressReporter is the narrow collaborator a Worker needs from package
// progress: stream a lossy partial analysis snapshot.
type ProgressReporter interface {
	Send(ctx context.Context, jobID string, result job.AnalysisResult)
}

// Config is the static configuration a Worker is built with: how to spawn
// its engine, what options to install on it, and how to identify itself to
// the coordinator.
type Config struct {
	EngineCommand  []string
	EngineDir      string
	Threads        int
	HashMB         int
	EngineOptions  map[string]string
	NNUEFiles      map[string]string // variant NNUENetKey -> local network file path
	FixedBackoff   bool
	FishnetVersion string
	APIKey         string
}

// Worker drives one engine subprocess through the acquire/execute/report
// cycle until stopped by its owning supervisor.
type Worker struct {
	name      string
	cfg       Config
	transport Transport
	reporter  ProgressReporter

	alive    atomic.Bool
	stopSoon atomic.Bool
	finished iox.AsyncCloser
	sleeper  *sleeper
	backoff  Backoff

	fatalMu  sync.Mutex
	fatalErr error

	positions atomic.Int64
	nodes     atomic.Int64

	mu          sync.Mutex
	job         *job.Job
	ch          *enginechan.Channel
	client      *uciclient.Client
	engineAlive bool
}

// New returns a Worker named name (e.g. "><> 1"), ready to Run.
func New(name string, cfg Config, t Transport, r ProgressReporter) *Worker {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	return &Worker{
		name:      name,
		cfg:       cfg,
		transport: t,
		reporter:  r,
		finished:  iox.NewAsyncCloser(),
		sleeper:   newSleeper(),
		backoff:   NewBackoff(cfg.FixedBackoff),
	}
}

func (w *Worker) Name() string { return w.name }

// Positions and Nodes are the monotonically non-decreasing counters the
// supervisor aggregates for its statistics tick.
func (w *Worker) Positions() int64 { return w.positions.Load() }
func (w *Worker) Nodes() int64     { return w.nodes.Load() }

// Finished is closed once Run has returned.
func (w *Worker) Finished() <-chan struct{} { return w.finished.Closed() }

// FatalError returns the error that caused Run to exit, if any. Only
// meaningful after Finished is closed.
func (w *Worker) FatalError() error {
	w.fatalMu.Lock()
	defer w.fatalMu.Unlock()
	return w.fatalErr
}

// Stop implements the hard-shutdown path: the loop exits as soon as its
// current iteration observes the alive flag false, the engine is killed and
// the current job is best-effort aborted.
func (w *Worker) Stop() {
	w.alive.Store(false)
	w.sleeper.Wake()
}

// StopSoon implements the soft-shutdown path: the current job (if any) is
// allowed to complete and its result posted; no new job is acquired
// afterwards, and a job handed out in reply to that result is aborted
// rather than run.
func (w *Worker) StopSoon() {
	w.stopSoon.Store(true)
	w.sleeper.Wake()
}

// Run is the worker's entire goroutine body.
func (w *Worker) Run(ctx context.Context) {
	w.alive.Store(true)
	defer w.finished.Close()
	defer w.teardownEngine(ctx)

	defer func() {
		if r := recover(); r != nil {
			w.setFatal(fmt.Errorf("panic in worker %v: %v", w.name, r))
		}
	}()

	for w.alive.Load() {
		if w.stopSoon.Load() && !w.hasJob() {
			return
		}

		if err := w.iterate(ctx); err != nil {
			if errors.Is(err, transport.ErrUpdateRequired) {
				logw.Errorf(ctx, "[%v] stopping worker for update", w.name)
			} else {
				logw.Errorf(ctx, "[%v] fatal error: %v", w.name, err)
			}
			w.setFatal(err)
			return
		}
	}

	// The loop was left by Stop: best-effort abort the job still held.
	w.mu.Lock()
	j := w.job
	w.mu.Unlock()
	if j != nil {
		if body, err := json.Marshal(w.envelope()); err == nil {
			if _, err := w.transport.Do(ctx, fmt.Sprintf("abort/%s", j.Work.ID), body); err != nil {
				logw.Warningf(ctx, "[%v] could not abort %v: %v", w.name, j, err)
			}
		}
	}
}

func (w *Worker) setFatal(err error) {
	w.fatalMu.Lock()
	defer w.fatalMu.Unlock()
	if w.fatalErr == nil {
		w.fatalErr = err
	}
}

func (w *Worker) hasJob() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.job != nil
}

func (w *Worker) setJob(j *job.Job) {
	w.mu.Lock()
	w.job = j
	w.mu.Unlock()
}

// iterate runs one pass of spec §4.5's loop body. A non-nil return is a
// fatal worker exception (or ErrUpdateRequired); all recoverable conditions
// are handled internally with a backoff sleep and a nil return.
func (w *Worker) iterate(ctx context.Context) error {
	if err := w.ensureEngine(ctx); err != nil {
		return fmt.Errorf("ensure engine: %w", err)
	}

	path, body, err := w.buildRequest(ctx)
	if err != nil {
		if errors.Is(err, enginechan.ErrEngineDied) {
			w.handleEngineDied(ctx)
			return nil
		}
		return err
	}

	resp, err := w.transport.Do(ctx, path, body)
	if err != nil {
		logw.Warningf(ctx, "[%v] transport error, backing off: %v", w.name, err)
		w.setJob(nil)
		w.sleepBackoff(ctx)
		return nil
	}

	switch transport.Classify(ctx, resp) {
	case transport.OutcomeNoJob:
		w.setJob(nil)
		logw.Debugf(ctx, "[%v] no job found", w.name)
		w.sleepBackoff(ctx)

	case transport.OutcomeJob:
		var j job.Job
		if err := json.Unmarshal(resp.Body, &j); err != nil {
			logw.Errorf(ctx, "[%v] could not decode job: %v", w.name, err)
			w.setJob(nil)
			w.sleepBackoff(ctx)
			return nil
		}
		logw.Infof(ctx, "[%v] got job: %v", w.name, j.String())
		w.setJob(&j)
		w.backoff = NewBackoff(w.cfg.FixedBackoff)
		if w.stopSoon.Load() {
			// Not run: leaving the loop makes Run abort it.
			w.alive.Store(false)
		}

	case transport.OutcomeRateLimited:
		w.setJob(nil)
		w.sleeper.Sleep(ctx, w.backoff.Next()+60*time.Second)

	case transport.OutcomeUpdateRequired:
		return transport.ErrUpdateRequired

	default: // OutcomeRecoverable
		w.setJob(nil)
		w.sleepBackoff(ctx)
	}
	return nil
}

func (w *Worker) sleepBackoff(ctx context.Context) {
	t := w.backoff.Next()
	logw.Debugf(ctx, "[%v] backing off %.1fs", w.name, t.Seconds())
	w.sleeper.Sleep(ctx, t)
}

// buildRequest decides what to post this iteration: "acquire" if there is no
// current job, or the result of executing it.
func (w *Worker) buildRequest(ctx context.Context) (string, []byte, error) {
	w.mu.Lock()
	j := w.job
	client := w.client
	w.mu.Unlock()

	if j == nil {
		body, err := json.Marshal(w.envelope())
		if err != nil {
			return "", nil, err
		}
		return "acquire", body, nil
	}

	exec := executor.New(client, w.cfg.Threads, w.cfg.NNUEFiles)

	switch j.Work.Type {
	case job.TypeMove:
		result, err := exec.BestMove(ctx, j)
		if err != nil {
			return "", nil, err
		}
		w.positions.Inc()
		w.nodes.Add(int64(exec.LastNodes()))

		req := w.envelope()
		req.Move = result
		body, err := json.Marshal(req)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("move/%s", j.Work.ID), body, nil

	case job.TypeAnalysis:
		result, err := exec.Analysis(ctx, j, func(partial job.AnalysisResult) {
			w.reporter.Send(ctx, j.Work.ID, partial)
		})
		if err != nil {
			return "", nil, err
		}
		for _, p := range result {
			if p.Skipped || p.Info == nil {
				continue
			}
			w.positions.Inc()
			w.nodes.Add(int64(p.Info.Nodes))
		}

		req := w.envelope()
		req.Analysis = result
		body, err := json.Marshal(req)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("analysis/%s", j.Work.ID), body, nil

	default:
		logw.Errorf(ctx, "[%v] invalid job type: %v", w.name, j.Work.Type)
		w.setJob(nil)
		body, err := json.Marshal(w.envelope())
		return "acquire", body, err
	}
}

// handleEngineDied implements spec §4.5 step 5 and §7's "Engine died"
// policy: best-effort abort the in-flight job, kill the subprocess, back
// off. The next iteration's ensureEngine respawns.
func (w *Worker) handleEngineDied(ctx context.Context) {
	w.mu.Lock()
	j := w.job
	ch := w.ch
	w.ch, w.client, w.engineAlive = nil, nil, false
	w.mu.Unlock()

	if j != nil {
		logw.Warningf(ctx, "[%v] engine process has died while working on %v", w.name, j)
		body, err := json.Marshal(w.envelope())
		if err == nil {
			if _, err := w.transport.Do(ctx, fmt.Sprintf("abort/%s", j.Work.ID), body); err != nil {
				logw.Warningf(ctx, "[%v] could not abort %v: %v", w.name, j, err)
			} else {
				logw.Infof(ctx, "[%v] aborted %v", w.name, j)
			}
		}
	} else {
		logw.Warningf(ctx, "[%v] engine process has died", w.name)
	}

	if ch != nil {
		ch.Kill(ctx)
	}
	w.setJob(nil)
	w.sleepBackoff(ctx)
}

// ensureEngine implements spec §4.5 step 1: spawn and handshake an engine if
// none is currently alive, then install the identification and option
// snapshot (Threads, Hash, user-provided options). EvalFile is set per job,
// not here, since it depends on the job's variant (see executor.New).
func (w *Worker) ensureEngine(ctx context.Context) error {
	w.mu.Lock()
	alive := w.engineAlive
	w.mu.Unlock()
	if alive {
		return nil
	}

	ch, err := enginechan.Spawn(ctx, w.cfg.EngineCommand, w.cfg.EngineDir)
	if err != nil {
		return fmt.Errorf("spawn: %w", err)
	}

	client, err := uciclient.Handshake(ctx, ch)
	if err != nil {
		ch.Kill(ctx)
		return fmt.Errorf("handshake: %w", err)
	}

	if err := client.SetOption(ctx, "Threads", w.cfg.Threads); err != nil {
		ch.Kill(ctx)
		return err
	}
	if w.cfg.HashMB > 0 {
		if err := client.SetOption(ctx, "Hash", w.cfg.HashMB); err != nil {
			ch.Kill(ctx)
			return err
		}
	}
	for name, value := range w.cfg.EngineOptions {
		if err := client.SetOption(ctx, name, value); err != nil {
			ch.Kill(ctx)
			return err
		}
	}
	if err := client.WaitReady(ctx); err != nil {
		ch.Kill(ctx)
		return err
	}

	w.mu.Lock()
	w.ch, w.client, w.engineAlive = ch, client, true
	w.mu.Unlock()

	logw.Infof(ctx, "[%v] engine ready: %v", w.name, client.Identification().Name())
	return nil
}

func (w *Worker) teardownEngine(ctx context.Context) {
	w.mu.Lock()
	ch, client := w.ch, w.client
	w.ch, w.client, w.engineAlive = nil, nil, false
	w.mu.Unlock()

	if client != nil {
		_ = client.Quit(ctx)
	}
	if ch != nil {
		ch.Kill(ctx)
	}
}

// envelope builds the acquire/result envelope common to every request,
// carrying the client identification and the echoed engine option snapshot.
func (w *Worker) envelope() job.Request {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	info := job.EngineInfo{}
	if client != nil {
		id := client.Identification()
		info.Name = id.Name()
		info.Author = id.Fields["author"]
		info.Options = w.optionsSnapshot()
		info.NNUE = w.nnueList()
	}

	return job.Request{
		Fishnet:   job.FishnetInfo{Version: w.cfg.FishnetVersion, APIKey: w.cfg.APIKey},
		Stockfish: info,
	}
}

func (w *Worker) optionsSnapshot() map[string]string {
	out := map[string]string{
		"Threads": strconv.Itoa(w.cfg.Threads),
	}
	if w.cfg.HashMB > 0 {
		out["Hash"] = strconv.Itoa(w.cfg.HashMB)
	}
	for k, v := range w.cfg.EngineOptions {
		out[k] = v
	}
	return out
}

// nnueList reports the installed network filenames for the envelope's
// "nnue" field, matching the original client's
// ["%s-%s.nnue" % (v, NNUE_NET[v]) for v in NNUE_NET] list.
func (w *Worker) nnueList() []string {
	out := make([]string, 0, len(w.cfg.NNUEFiles))
	for _, p := range w.cfg.NNUEFiles {
		out = append(out, filepath.Base(p))
	}
	sort.Strings(out)
	return out
}
