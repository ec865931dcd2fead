// Package supervisor implements the process-wide coordination layer of
// spec §4.6: it dimensions the worker pool from cores/threads/memory,
// starts the shared progress reporter and the workers, installs signal
// handlers for the two-stage shutdown and the update-required escape, and
// periodically logs cumulative statistics and checks for a newer release.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lichess-org/fishnet-go/internal/fishnet/progress"
	"github.com/lichess-org/fishnet-go/internal/fishnet/transport"
	"github.com/lichess-org/fishnet-go/internal/fishnet/worker"
	"github.com/seekerror/logw"
)

// Exit codes, per spec §4.6 and §6 of the CLI surface.
const (
	ExitOK             = 0
	ExitFatalError     = 1
	ExitUpdateRequired = 70
	ExitConfigError    = 78
)

// StatInterval is the spacing between cumulative statistics log lines and
// the (probabilistic) update check.
const StatInterval = 60 * time.Second

// CheckUpdateChance is the probability, per statistics tick, of consulting
// the package index for a newer release.
const CheckUpdateChance = 0.01

// UpdateChecker reports whether a newer client release is available. It is
// satisfied by package download; nil disables the auto-update check
// entirely.
type UpdateChecker interface {
	HasUpdate(ctx context.Context) (bool, error)
}

// Config is everything the supervisor needs to dimension and launch the
// worker pool.
type Config struct {
	Cores             int
	ThreadsPerProcess int
	MemoryMB          int
	FixedBackoff      bool
	EngineCommand     []string
	EngineDir         string
	EngineOptions     map[string]string
	NNUEFiles         map[string]string
	FishnetVersion    string
	APIKey            string
	AutoUpdate        bool
}

// PlanPool partitions cores into one bucket per engine process, round-robin
// the way fairyfishnet's cmd_run does ("buckets[i % instances] += 1"), so
// that bucket sizes differ by at most one thread.
func PlanPool(cores, threadsPerProcess int) []int {
	if cores < 1 {
		cores = 1
	}
	if threadsPerProcess < 1 {
		threadsPerProcess = 1
	}

	instances := (cores + threadsPerProcess - 1) / threadsPerProcess
	if instances < 1 {
		instances = 1
	}

	buckets := make([]int, instances)
	for i := 0; i < cores; i++ {
		buckets[i%instances]++
	}
	return buckets
}

// Supervisor owns the worker pool and the progress reporter for the
// lifetime of one `fishnet run` invocation.
type Supervisor struct {
	cfg       Config
	transport *transport.Client
	checker   UpdateChecker

	workers  []*worker.Worker
	reporter *progress.Reporter
}

// New returns a Supervisor. checker may be nil to disable the auto-update
// check.
func New(cfg Config, t *transport.Client, checker UpdateChecker) *Supervisor {
	return &Supervisor{cfg: cfg, transport: t, checker: checker}
}

// Run starts the pool, blocks until a terminal condition (signal, fatal
// worker error, update-required) and returns the process exit code. It
// always leaves every worker stopped and the reporter drained before
// returning.
func (s *Supervisor) Run(ctx context.Context) int {
	buckets := PlanPool(s.cfg.Cores, s.cfg.ThreadsPerProcess)
	instances := len(buckets)

	hashPerWorker := 0
	if instances > 0 {
		hashPerWorker = s.cfg.MemoryMB / instances
	}

	s.reporter = progress.New(s.transport, instances+4)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.reporter.Run(wctx)

	for i, threads := range buckets {
		w := worker.New(fmt.Sprintf("><> %d", i+1), worker.Config{
			EngineCommand:  s.cfg.EngineCommand,
			EngineDir:      s.cfg.EngineDir,
			Threads:        threads,
			HashMB:         hashPerWorker,
			EngineOptions:  s.cfg.EngineOptions,
			NNUEFiles:      s.cfg.NNUEFiles,
			FixedBackoff:   s.cfg.FixedBackoff,
			FishnetVersion: s.cfg.FishnetVersion,
			APIKey:         s.cfg.APIKey,
		}, s.transport, s.reporter)
		s.workers = append(s.workers, w)

		logw.Infof(ctx, "Starting worker %v with %v threads, %v MB hash", w.Name(), threads, hashPerWorker)
		go w.Run(wctx)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	code := s.watch(ctx, sigCh)

	for _, w := range s.workers {
		w.Stop()
	}
	s.reporter.Stop()
	for _, w := range s.workers {
		<-w.Finished()
	}
	<-s.reporter.Done()

	return code
}

// watch runs the statistics/signal select loop until a terminal condition.
func (s *Supervisor) watch(ctx context.Context, sigCh <-chan os.Signal) int {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	soon := false
	var ticks int

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM:
				logw.Infof(ctx, "Good bye! Aborting pending jobs ...")
				return ExitOK

			case syscall.SIGUSR1:
				logw.Errorf(ctx, "Update required!")
				return ExitUpdateRequired

			case syscall.SIGINT:
				if soon {
					logw.Infof(ctx, "Good bye! Aborting pending jobs ...")
					return ExitOK
				}
				soon = true
				logw.Infof(ctx, "Stopping soon. Press ^C again to abort pending jobs ...")
				for _, w := range s.workers {
					w.StopSoon()
				}
			}

		case <-ticker.C:
			if code, done := s.checkWorkers(ctx); done {
				return code
			}
			if soon && s.allFinished() {
				logw.Infof(ctx, "Good bye!")
				return ExitOK
			}

			ticks++
			if ticks%int(StatInterval/time.Second) == 0 {
				s.logStats(ctx)
				if code, stop := s.maybeCheckUpdate(ctx); stop {
					return code
				}
			}

		case <-ctx.Done():
			return ExitOK
		}
	}
}

func (s *Supervisor) checkWorkers(ctx context.Context) (int, bool) {
	for _, w := range s.workers {
		select {
		case <-w.Finished():
		default:
			continue
		}
		if err := w.FatalError(); err != nil {
			if errors.Is(err, transport.ErrUpdateRequired) {
				return ExitUpdateRequired, true
			}
			logw.Errorf(ctx, "Fatal error in worker %v: %v", w.Name(), err)
			return ExitFatalError, true
		}
	}
	return 0, false
}

func (s *Supervisor) allFinished() bool {
	for _, w := range s.workers {
		select {
		case <-w.Finished():
		default:
			return false
		}
	}
	return true
}

func (s *Supervisor) logStats(ctx context.Context) {
	var positions, nodes int64
	for _, w := range s.workers {
		positions += w.Positions()
		nodes += w.Nodes()
	}
	logw.Infof(ctx, "[fishnet %v] Analyzed %v positions, crunched %v million nodes",
		s.cfg.FishnetVersion, positions, nodes/1_000_000)
}

func (s *Supervisor) maybeCheckUpdate(ctx context.Context) (int, bool) {
	if s.checker == nil || !s.cfg.AutoUpdate {
		return 0, false
	}
	if rand.Float64() > CheckUpdateChance {
		return 0, false
	}
	has, err := s.checker.HasUpdate(ctx)
	if err != nil {
		logw.Warningf(ctx, "Could not check for update: %v", err)
		return 0, false
	}
	if has {
		logw.Errorf(ctx, "Update required!")
		return ExitUpdateRequired, true
	}
	return 0, false
}
