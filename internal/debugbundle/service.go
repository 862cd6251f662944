package debugbundle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ocx/backend/internal/debugbundle/argv"
	"github.com/ocx/backend/internal/debugbundle/proc"
	"github.com/ocx/backend/internal/debugbundle/shard"
	"github.com/ocx/backend/internal/debugbundle/store"
)

// cancelGrace is the grace period Cancel gives the collector process
// before escalating to a forced kill, per spec.md §4.E step 5.
const cancelGrace = 1 * time.Second

// Service is the Lifecycle Controller, component E: the public
// initiate/cancel/status/path/delete surface, with every operation
// pinned to the service shard's single actor goroutine so at most one
// collector run is ever in flight.
type Service struct {
	router  *shard.Router
	cfg     *LiveConfig
	store   *store.Adapter
	metrics *Metrics
	bus     *StatusBus

	// handle is only ever read or written from inside a router.Dispatch
	// closure, so the actor goroutine's serialization is its guard;
	// nil means "never started".
	handle *proc.Handle
}

// New wires the lifecycle controller to its collaborators.
func New(router *shard.Router, cfg *LiveConfig, kv store.KV, metrics *Metrics, bus *StatusBus) *Service {
	return &Service{
		router:  router,
		cfg:     cfg,
		store:   store.NewAdapter(kv),
		metrics: metrics,
		bus:     bus,
	}
}

// Initiate starts a new collector run, per spec.md §4.E steps 1-11.
func (s *Service) Initiate(ctx context.Context, jobID JobID, params Parameters) error {
	_, err := s.router.Dispatch(ctx, func(ctx context.Context) (any, error) {
		return nil, s.initiateLocked(ctx, jobID, params)
	})
	return err
}

func (s *Service) initiateLocked(ctx context.Context, jobID JobID, params Parameters) error {
	cfg := s.cfg.Snapshot()

	if _, err := os.Stat(cfg.CollectorBinaryPath); err != nil {
		return Tagged(ErrRPKBinaryNotPresent)
	}

	if s.handle != nil && s.handle.Running() {
		return Tagged(ErrProcessRunning)
	}

	if err := s.cleanupPrevious(ctx); err != nil {
		return Internal(err)
	}

	storageDir := cfg.EffectiveStorageDir()
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return Internal(err)
	}

	bundleFilePath := filepath.Join(storageDir, jobID.String()+".zip")
	processOutputFilePath := filepath.Join(storageDir, jobID.String()+".out")

	argvList, err := argv.Build(cfg.CollectorBinaryPath, bundleFilePath, params)
	if err != nil {
		return err
	}
	slog.Debug("debugbundle: spawning collector", "job_id", jobID, "argv", argv.Redacted(argvList))

	h, err := proc.Spawn(context.Background(), jobID, argvList, bundleFilePath, processOutputFilePath)
	if err != nil {
		s.handle = nil
		return Internal(err)
	}

	s.handle = h
	s.spawnBackgroundWait(h)
	return nil
}

// cleanupPrevious removes the previous run's on-disk artifacts and KV
// metadata entry, per spec.md §4.E step 4. A never-started service has
// nothing to clean up.
func (s *Service) cleanupPrevious(ctx context.Context) error {
	if s.handle == nil {
		return nil
	}

	var errs []error
	for _, path := range []string{s.handle.BundleFilePath(), s.handle.ProcessOutputFilePath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := s.store.Remove(ctx); err != nil && !errors.Is(err, store.ErrNotFound) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// spawnBackgroundWait registers a gate ticket and awaits the child
// outside the actor goroutine — Wait blocks until exit, and the actor
// must stay free to serve Status/Cancel/Path/Delete while the run is in
// flight (spec.md §4.E step 10, §9).
func (s *Service) spawnBackgroundWait(h *proc.Handle) {
	s.router.Gate().Enter()
	go func() {
		defer s.router.Gate().Leave()

		started := h.CreatedAt()
		ws, waitErr := h.Wait()
		if waitErr != nil {
			slog.Error("debugbundle: collector wait failed", "job_id", h.JobID(), "error", waitErr)
		}

		_, err := s.router.Dispatch(context.Background(), func(ctx context.Context) (any, error) {
			return nil, s.onTerminal(ctx, h)
		})
		if err != nil {
			slog.Error("debugbundle: post-run metadata write failed", "job_id", h.JobID(), "error", err)
		}

		if s.metrics != nil {
			status := string(statusFromWaitStatus(ws))
			s.metrics.RunsTotal.WithLabelValues(status).Inc()
			s.metrics.RunDuration.Observe(time.Since(started).Seconds())
		}
	}()
}

// onTerminal persists the finished run's metadata and publishes a
// status event. It runs back on the actor goroutine so it observes a
// consistent s.handle. The event is published even when the metadata
// write fails; the write error is still returned.
func (s *Service) onTerminal(ctx context.Context, h *proc.Handle) error {
	writeErr := s.store.Write(ctx, h)
	if s.bus != nil {
		snap, err := s.snapshotOf(h)
		if err == nil {
			s.bus.Publish(StatusEvent{Snapshot: snap})
		}
	}
	return writeErr
}

// Cancel terminates the in-flight run, per spec.md §4.E steps 1-5.
func (s *Service) Cancel(ctx context.Context, jobID JobID) error {
	_, err := s.router.Dispatch(ctx, func(ctx context.Context) (any, error) {
		return nil, s.cancelLocked(jobID)
	})
	return err
}

func (s *Service) cancelLocked(jobID JobID) error {
	if s.handle == nil {
		return Tagged(ErrProcessNeverStarted)
	}
	if !s.handle.Running() {
		return Tagged(ErrProcessNotRunning)
	}
	if s.handle.JobID() != jobID {
		return Tagged(ErrJobIDNotRecognized)
	}

	if err := s.handle.Terminate(cancelGrace); err != nil {
		if !s.handle.Running() {
			return Tagged(ErrProcessNotRunning)
		}
		return Internal(err)
	}
	return nil
}

// Status returns the current run's snapshot, per spec.md §4.E steps 1-3.
func (s *Service) Status(ctx context.Context) (*Snapshot, error) {
	v, err := s.router.Dispatch(ctx, func(ctx context.Context) (any, error) {
		return s.statusLocked()
	})
	if err != nil {
		return nil, err
	}
	snap := v.(Snapshot)
	return &snap, nil
}

func (s *Service) statusLocked() (Snapshot, error) {
	if s.handle == nil {
		return Snapshot{}, Tagged(ErrProcessNeverStarted)
	}
	return s.snapshotOf(s.handle)
}

func (s *Service) snapshotOf(h *proc.Handle) (Snapshot, error) {
	snap := Snapshot{
		JobID:       h.JobID(),
		Status:      statusFromWaitStatus(h.Status()),
		CreatedAt:   h.CreatedAt(),
		FileName:    filepath.Base(h.BundleFilePath()),
		StdoutLines: h.StdoutLines(),
		StderrLines: h.StderrLines(),
	}
	if snap.Status == StatusSuccess {
		info, err := os.Stat(h.BundleFilePath())
		if err != nil {
			return Snapshot{}, Internal(err)
		}
		size := info.Size()
		snap.FileSize = &size
	}
	return snap, nil
}

// Path returns the absolute on-disk bundle path, per spec.md §4.E
// steps 1-5.
func (s *Service) Path(ctx context.Context, jobID JobID) (string, error) {
	v, err := s.router.Dispatch(ctx, func(ctx context.Context) (any, error) {
		return s.pathLocked(jobID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) pathLocked(jobID JobID) (string, error) {
	if s.handle == nil {
		return "", Tagged(ErrProcessNeverStarted)
	}

	switch statusFromWaitStatus(s.handle.Status()) {
	case StatusRunning:
		return "", Tagged(ErrProcessRunning)
	case StatusError:
		return "", Tagged(ErrProcessFailed)
	}

	if s.handle.JobID() != jobID {
		return "", Tagged(ErrJobIDNotRecognized)
	}

	abs, err := filepath.Abs(s.handle.BundleFilePath())
	if err != nil {
		return "", Internal(err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", Internal(err)
	}
	return abs, nil
}

// Delete removes the current run's bundle file, per spec.md §4.E
// steps 1-5.
func (s *Service) Delete(ctx context.Context, jobID JobID) error {
	_, err := s.router.Dispatch(ctx, func(ctx context.Context) (any, error) {
		return nil, s.deleteLocked(jobID)
	})
	return err
}

func (s *Service) deleteLocked(jobID JobID) error {
	if s.handle == nil {
		return Tagged(ErrProcessNeverStarted)
	}
	if s.handle.Running() {
		return Tagged(ErrProcessRunning)
	}
	if s.handle.JobID() != jobID {
		return Tagged(ErrJobIDNotRecognized)
	}

	if _, err := os.Stat(s.handle.BundleFilePath()); err == nil {
		if err := os.Remove(s.handle.BundleFilePath()); err != nil {
			return Internal(err)
		}
	}
	return nil
}

// Shutdown best-effort terminates an in-flight run and then drains
// every outstanding gate ticket, including background wait tasks,
// before returning.
func (s *Service) Shutdown(ctx context.Context) {
	_, err := s.router.Dispatch(ctx, func(ctx context.Context) (any, error) {
		if s.handle != nil && s.handle.Running() {
			if err := s.handle.Terminate(cancelGrace); err != nil {
				slog.Warn("debugbundle: shutdown terminate failed", "error", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		slog.Warn("debugbundle: shutdown dispatch failed", "error", err)
	}
	s.router.Shutdown()
}
