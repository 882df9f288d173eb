// Package queue implements the file-queue daemon (C6): a watch-mode
// loop over three lifecycle directories (unprocessed/, underprocess/,
// processed/) that claims one file at a time, drives it through an
// engine.Engine, and commits or retries it depending on outcome.
//
// The claim/commit/retry dance is grounded on the teacher's
// workerPool/logTailer lifecycle in internal/monitors/file_monitor.go,
// replacing its continuous tail-a-growing-file model (github.com/nxadm/
// tail) with atomic os.Rename moves between directories, since this
// domain's files are static batches handed off by an upstream writer,
// not logs appended to in place.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tagflow/tagflow/internal/breaker"
	"github.com/tagflow/tagflow/internal/dedup"
	"github.com/tagflow/tagflow/internal/driver"
	"github.com/tagflow/tagflow/internal/engine"
	"github.com/tagflow/tagflow/internal/metrics"
	"github.com/tagflow/tagflow/pkg/apperr"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Dirs names the three lifecycle directories the daemon rotates files
// through.
type Dirs struct {
	Unprocessed string
	Underprocess string
	Processed   string
}

// Daemon watches Dirs.Unprocessed for new files and drives each one
// through an Engine in turn. Only one file is in flight at a time —
// the engine itself forbids intra-file parallelism, and the daemon
// extends that to inter-file serialization to keep metrics and dedup
// state coherent.
type Daemon struct {
	dirs       Dirs
	engineOf   func() *engine.Engine
	store      *metrics.Store
	dedupCache *dedup.Cache
	breaker    *breaker.PerName
	poll       time.Duration
	logger     *logrus.Logger
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithPollInterval overrides the fsnotify-fallback poll cadence
// (default 1s, per spec.md §4.6).
func WithPollInterval(d time.Duration) Option {
	return func(daemon *Daemon) { daemon.poll = d }
}

// WithDedup attaches a content-digest cache so repeats can be flagged
// (observability only — every file is still processed at-least-once).
func WithDedup(c *dedup.Cache) Option {
	return func(daemon *Daemon) { daemon.dedupCache = c }
}

// WithBreaker attaches a per-filename backoff so a file that keeps
// failing doesn't hot-loop the daemon.
func WithBreaker(b *breaker.PerName) Option {
	return func(daemon *Daemon) { daemon.breaker = b }
}

// New constructs a Daemon. engineOf is called once per claimed file so
// each file gets a fresh Engine instance. Stage instances live in the
// graph the engines are built from, so when that graph is shared (as
// app.App does) per-node stage state carries over from file to file.
func New(dirs Dirs, engineOf func() *engine.Engine, store *metrics.Store, logger *logrus.Logger, opts ...Option) *Daemon {
	if logger == nil {
		logger = logrus.New()
	}
	d := &Daemon{
		dirs:     dirs,
		engineOf: engineOf,
		store:    store,
		poll:     time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Recover moves any files left in Underprocess back into Unprocessed.
// Called once at startup so a crash mid-processing doesn't strand a
// file in limbo (spec.md §4.6's "recovery: anything left in
// underprocess/ at startup is assumed interrupted, not in flight").
func (d *Daemon) Recover() error {
	entries, err := os.ReadDir(d.dirs.Underprocess)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(d.dirs.Underprocess, 0o755)
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(d.dirs.Underprocess, entry.Name())
		dst := filepath.Join(d.dirs.Unprocessed, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			d.logger.WithError(err).WithField("file", entry.Name()).Error("failed to recover stranded file")
			continue
		}
		d.logger.WithField("file", entry.Name()).Info("recovered stranded file into unprocessed")
	}
	return nil
}

// Run watches Unprocessed until ctx is cancelled, processing one file
// at a time as they appear. It uses fsnotify for low-latency wakeups
// and a poll-interval fallback ticker so a missed or coalesced fsnotify
// event never stalls the daemon indefinitely.
func (d *Daemon) Run(ctx context.Context) error {
	for _, dir := range []string{d.dirs.Unprocessed, d.dirs.Underprocess, d.dirs.Processed} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(d.dirs.Unprocessed); err != nil {
		return fmt.Errorf("watching %s: %w", d.dirs.Unprocessed, err)
	}

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	d.drainOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				d.drainOnce(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.WithError(err).Warn("fsnotify watcher error")
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

// drainOnce processes every file currently sitting in Unprocessed,
// oldest modification time first (ties broken by name), stopping early
// if ctx is cancelled.
func (d *Daemon) drainOnce(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		name, ok := d.nextFile()
		if !ok {
			return
		}
		d.processFile(ctx, name)
	}
}

func (d *Daemon) nextFile() (string, bool) {
	entries, err := os.ReadDir(d.dirs.Unprocessed)
	if err != nil {
		d.logger.WithError(err).Error("failed to list unprocessed directory")
		return "", false
	}
	names := make([]string, 0, len(entries))
	modTimes := make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			names = append(names, entry.Name())
			modTimes[entry.Name()] = info.ModTime()
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	sort.SliceStable(names, func(i, j int) bool { return modTimes[names[i]].Before(modTimes[names[j]]) })
	name := names[0]
	if d.breaker != nil && !d.breaker.Allow(name) {
		return "", false
	}
	return name, true
}

// processFile claims, runs, and commits-or-retries a single file.
func (d *Daemon) processFile(ctx context.Context, name string) {
	src := filepath.Join(d.dirs.Unprocessed, name)
	claimed, err := d.claim(src, name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.WithError(err).WithField("file", name).Error("failed to claim file")
		}
		return
	}

	d.store.SetCurrentFile(name)
	d.logger.WithField("file", name).Info("processing claimed file")

	if d.dedupCache != nil {
		if content, err := os.ReadFile(claimed); err == nil {
			if d.dedupCache.Seen(dedup.Digest(content)) {
				d.logger.WithField("file", name).Debug("duplicate file content observed")
			}
		}
	}

	if err := d.run(ctx, claimed, name); err != nil {
		var appErr *apperr.AppError
		if !errors.As(err, &appErr) {
			appErr = apperr.Wrap(apperr.CodeIO, "daemon", "processFile", err)
		}
		recovered := appErr.AsRecovered().WithLine(name)
		d.logger.WithFields(logrus.Fields{
			"file":      name,
			"code":      recovered.Code,
			"component": recovered.Component,
		}).WithError(recovered).Error("file processing failed, retrying")
		if d.breaker != nil {
			d.breaker.RecordFailure(name)
		}
		d.retry(claimed, name)
		return
	}

	if d.breaker != nil {
		d.breaker.RecordSuccess(name)
	}
	d.commit(claimed, name)
	d.store.RecordProcessedFile(name)
}

func (d *Daemon) claim(src, name string) (string, error) {
	dst := filepath.Join(d.dirs.Underprocess, name)
	if err := os.Rename(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// run drives the claimed file through a fresh Engine, writing emitted
// lines to a temporary "<name>.out" file alongside it in Underprocess.
// The temp output only becomes the committed processed/<name>.out on
// success (spec.md §4.6 step 2, §6, §8 scenario 5); a failed run
// removes it so retry() never finds a stale partial output.
func (d *Daemon) run(ctx context.Context, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	tmpOut := filepath.Join(d.dirs.Underprocess, name+".out")
	outFile, err := os.Create(tmpOut)
	if err != nil {
		return err
	}
	defer outFile.Close()

	eng := d.engineOf()
	if err := driver.Run(ctx, eng, in, outFile, d.logger); err != nil {
		os.Remove(tmpOut)
		return err
	}
	return nil
}

// commit moves a successfully processed file and its companion .out
// file into Processed, appending a .dup suffix on a destination-name
// collision rather than overwriting an existing output (spec.md §4.6).
func (d *Daemon) commit(path, name string) {
	dst := filepath.Join(d.dirs.Processed, name)
	if _, err := os.Stat(dst); err == nil {
		dst = dst + ".dup"
	}
	if err := os.Rename(path, dst); err != nil {
		d.logger.WithError(err).WithField("file", name).Error("failed to commit processed file")
	}

	outSrc := filepath.Join(d.dirs.Underprocess, name+".out")
	outDst := filepath.Join(d.dirs.Processed, name+".out")
	if _, err := os.Stat(outDst); err == nil {
		outDst = outDst + ".dup"
	}
	if err := os.Rename(outSrc, outDst); err != nil {
		d.logger.WithError(err).WithField("file", name).Error("failed to commit processed output file")
	}
}

// retry moves a failed file back into Unprocessed for another attempt,
// appending a .retry suffix on a destination-name collision so repeated
// failures don't clobber each other.
func (d *Daemon) retry(path, name string) {
	dst := filepath.Join(d.dirs.Unprocessed, name)
	if _, err := os.Stat(dst); err == nil {
		dst = dst + ".retry"
	}
	if err := os.Rename(path, dst); err != nil {
		d.logger.WithError(err).WithField("file", name).Error("failed to requeue failed file")
	}
}
