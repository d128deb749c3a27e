package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/oshokin/update-manager/internal/config"
	domain "github.com/oshokin/update-manager/internal/domain/update"
	"github.com/oshokin/update-manager/internal/logger"
	"github.com/oshokin/update-manager/internal/metrics"
	repo "github.com/oshokin/update-manager/internal/repository/status"
	"github.com/oshokin/update-manager/internal/runner"
)

// Messages written into the persisted record. Callers poll /status for them,
// so the exact strings are part of the API.
const (
	messageSyncFailed    = "git pull failed: "
	messageRebuildFailed = "docker compose build failed: "
	messageTimedOut      = "Update timed out"
	messageSuccess       = "Update successful"
)

// Phase labels for metrics.
const (
	phaseSync    = "sync"
	phaseRebuild = "rebuild"
)

// commandRunner abstracts external command execution for testability.
type commandRunner interface {
	Run(ctx context.Context, command runner.Command) (*runner.Result, error)
}

// orchestrator owns the single update slot: the in-memory gate, the lease
// written into the persisted record, and the two-phase pipeline. It is the
// only writer of the record while an operation runs.
// It is unexported to keep the transport decoupled from the implementation.
type orchestrator struct {
	// repo handles persistent storage of the update record.
	repo repo.Repository
	// runner executes the sync and rebuild commands.
	runner commandRunner
	// cfg holds commands, directories, timeouts and the lease TTL.
	cfg *config.Config
	// gate is the non-reentrant mutual exclusion for the update slot.
	// Trigger acquires it with TryLock and never blocks.
	gate sync.Mutex
	// mu serializes record writes so heartbeat renewals and phase
	// transitions never interleave. It also guards current.
	mu sync.Mutex
	// current is the record most recently written by this process.
	current *domain.Record
}

// newOrchestrator builds the orchestrator and reconciles the persisted record:
// a record left in pulling/building with no live lease is a leftover of a
// crashed run and is reset to idle before the listener starts accepting traffic.
func newOrchestrator(ctx context.Context, repository repo.Repository, commands commandRunner, cfg *config.Config) (*orchestrator, error) {
	o := &orchestrator{
		repo:   repository,
		runner: commands,
		cfg:    cfg,
	}

	record, err := repository.Load(ctx)
	switch {
	case err == nil && record.Status.InProgress() && o.leaseLive(ctx, record.Lease):
		// Another process is mid-operation on the shared file. Leave the
		// record alone; Trigger will keep rejecting until the lease dies.
		logger.WarnKV(ctx, "Found in-flight record with a live lease, keeping it",
			"status", record.Status,
			"lease", record.Lease)

		return o, nil
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		logger.WarnKV(ctx, "Unable to load persisted record, resetting to idle", "error", err)
	}

	if err = o.save(ctx, domain.Idle()); err != nil {
		return nil, fmt.Errorf("initialise record: %w", err)
	}

	return o, nil
}

// Status returns the current update record. Absence or corruption of the
// persisted state is absorbed into the idle default; reads never fail.
func (o *orchestrator) Status(ctx context.Context) *domain.Record {
	record, err := o.repo.Load(ctx)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			logger.WarnKV(ctx, "Unable to read persisted record, reporting idle", "error", err)
		}

		return domain.Idle()
	}

	return record
}

// Trigger starts the two-phase pipeline in the background. It returns
// domain/update.ErrAlreadyInProgress when another operation holds the slot and
// never blocks:
// there is no queueing. The triggering caller gets an answer immediately;
// the outcome is reported through the persisted record.
func (o *orchestrator) Trigger(ctx context.Context) error {
	// Best-effort duplicate check against the persisted record. The gate
	// below is what actually prevents concurrent runs; this check also
	// covers records written by a previous process via the lease.
	current := o.Status(ctx)
	if current.Status.InProgress() && o.leaseLive(ctx, current.Lease) {
		metrics.IncRejected()

		return domain.ErrAlreadyInProgress
	}

	if !o.gate.TryLock() {
		metrics.IncRejected()

		return domain.ErrAlreadyInProgress
	}

	metrics.IncStarted()
	logger.Info(ctx, "Update triggered")

	// The pipeline must outlive the triggering HTTP request.
	go o.runPipeline(context.WithoutCancel(ctx))

	return nil
}

// runPipeline executes sync then rebuild, writing every status transition.
// The gate is released on every exit path, and a panic anywhere in the
// pipeline is converted into a terminal error record so the system can
// never get stuck mid-operation.
func (o *orchestrator) runPipeline(ctx context.Context) {
	defer o.gate.Unlock()

	startedAt := time.Now().UTC()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(ctx, "Update pipeline panicked", "panic", r)
			o.writeTerminal(ctx, domain.StatusError, fmt.Sprintf("%v", r), startedAt)
			metrics.IncFailed("panic")
		}
	}()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	go o.renewLease(heartbeatCtx)

	if !o.runSyncPhase(ctx, startedAt) {
		return
	}

	if !o.runRebuildPhase(ctx, startedAt) {
		return
	}

	o.writeTerminal(ctx, domain.StatusComplete, messageSuccess, startedAt)
	metrics.IncSucceeded()
	logger.InfoKV(ctx, "Update finished", "duration", time.Since(startedAt))
}

// runSyncPhase pulls the latest sources. Returns false when the pipeline must stop.
func (o *orchestrator) runSyncPhase(ctx context.Context, startedAt time.Time) bool {
	o.writeInProgress(ctx, domain.StatusPulling, startedAt)

	result := o.runPhase(ctx, phaseSync, runner.Command{
		Name:    "git",
		Args:    []string{"pull", "--ff-only"},
		Dir:     o.cfg.ProjectDir,
		Timeout: o.cfg.SyncTimeout,
	})
	if result == nil {
		o.writeTerminal(ctx, domain.StatusError, messageTimedOut, startedAt)
		metrics.IncFailed("timeout")

		return false
	}

	if result.ExitCode != 0 {
		o.writeTerminal(ctx, domain.StatusError, messageSyncFailed+strings.TrimSpace(result.Stderr), startedAt)
		metrics.IncFailed(phaseSync)

		return false
	}

	return true
}

// runRebuildPhase rebuilds and redeploys the configured services.
// Returns false when the pipeline must stop.
func (o *orchestrator) runRebuildPhase(ctx context.Context, startedAt time.Time) bool {
	o.writeInProgress(ctx, domain.StatusBuilding, startedAt)

	args := []string{"compose", "-p", o.cfg.ComposeProject, "up", "-d", "--build"}
	args = append(args, o.cfg.Services...)

	result := o.runPhase(ctx, phaseRebuild, runner.Command{
		Name:    "docker",
		Args:    args,
		Dir:     o.cfg.ProjectDir,
		Timeout: o.cfg.BuildTimeout,
	})
	if result == nil {
		o.writeTerminal(ctx, domain.StatusError, messageTimedOut, startedAt)
		metrics.IncFailed("timeout")

		return false
	}

	if result.ExitCode != 0 {
		o.writeTerminal(ctx, domain.StatusError, messageRebuildFailed+strings.TrimSpace(result.Stderr), startedAt)
		metrics.IncFailed(phaseRebuild)

		return false
	}

	return true
}

// runPhase runs one command and records its duration. A nil result means the
// phase timed out; the abandoned process's ultimate fate is not tracked.
func (o *orchestrator) runPhase(ctx context.Context, phase string, command runner.Command) *runner.Result {
	phaseStart := time.Now()

	result, err := o.runner.Run(ctx, command)

	metrics.ObservePhaseDuration(phase, time.Since(phaseStart).Seconds())

	if err != nil {
		logger.WarnKV(ctx, "Update phase timed out",
			"phase", phase,
			"timeout", command.Timeout,
			"error", err)

		return nil
	}

	logger.InfoKV(ctx, "Update phase finished",
		"phase", phase,
		"exit_code", result.ExitCode)

	return result
}

// writeInProgress persists an in-flight transition with a fresh lease.
func (o *orchestrator) writeInProgress(ctx context.Context, phase domain.Status, startedAt time.Time) {
	record := &domain.Record{
		Status:    phase,
		StartedAt: &startedAt,
		Lease: &domain.Lease{
			PID:       os.Getpid(),
			RenewedAt: time.Now().UTC(),
		},
	}

	if err := o.save(ctx, record); err != nil {
		logger.ErrorKV(ctx, "Unable to persist status transition",
			"status", phase,
			"error", err)
	}
}

// writeTerminal persists a terminal transition. The lease is cleared and
// completed_at is stamped; started_at is carried over from the operation.
func (o *orchestrator) writeTerminal(ctx context.Context, outcome domain.Status, message string, startedAt time.Time) {
	completedAt := time.Now().UTC()
	record := &domain.Record{
		Status:      outcome,
		Message:     message,
		StartedAt:   &startedAt,
		CompletedAt: &completedAt,
	}

	if err := o.save(ctx, record); err != nil {
		logger.ErrorKV(ctx, "Unable to persist terminal status",
			"status", outcome,
			"error", err)
	}
}

// save persists the record and remembers it for heartbeat renewal.
func (o *orchestrator) save(ctx context.Context, record *domain.Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.repo.Save(ctx, record); err != nil {
		return err
	}

	o.current = record

	return nil
}

// renewLease refreshes the lease timestamp while the pipeline runs, so that
// a successor process can tell a live operation from a stale record.
func (o *orchestrator) renewLease(ctx context.Context) {
	interval := o.cfg.LeaseTTL / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()

			if o.current == nil || !o.current.Status.InProgress() || o.current.Lease == nil {
				o.mu.Unlock()
				continue
			}

			renewed := o.current.Clone()
			renewed.Lease.RenewedAt = time.Now().UTC()

			if err := o.repo.Save(ctx, renewed); err != nil {
				logger.WarnKV(ctx, "Unable to renew lease", "error", err)
			} else {
				o.current = renewed
			}

			o.mu.Unlock()
		}
	}
}

// leaseLive reports whether an in-flight record still has a live holder.
// A lease is live while its timestamp is within the TTL; past the TTL the
// recorded process is checked, and only a dead holder makes the lease stale.
func (o *orchestrator) leaseLive(ctx context.Context, lease *domain.Lease) bool {
	if lease == nil {
		// Records without a lease cannot be verified; treat them as stale
		// so a crashed run never blocks updates forever.
		return false
	}

	if time.Since(lease.RenewedAt) <= o.cfg.LeaseTTL {
		return true
	}

	process, err := ps.FindProcess(lease.PID)
	if err != nil {
		logger.WarnKV(ctx, "Unable to check lease holder, assuming stale",
			"pid", lease.PID,
			"error", err)

		return false
	}

	if process != nil {
		logger.WarnKV(ctx, "Lease expired but holder is still running",
			"pid", lease.PID,
			"renewed_at", lease.RenewedAt)

		return true
	}

	logger.WarnKV(ctx, "Reclaiming stale lease",
		"pid", lease.PID,
		"renewed_at", lease.RenewedAt)

	return false
}
