// Package patcher runs the patch routines against a Dynalist install.
//
// A routine ([Job]) backs up its archive once, re-extracts the pristine
// backup into a scratch directory, edits one script there and repacks the
// scratch directory over the original archive. Routines touch disjoint paths
// and run concurrently via [Patcher.RunAll].
package patcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"tools.zach/dev/dynapatch/internal/asar"
	"tools.zach/dev/dynapatch/internal/fsutil"
	"tools.zach/dev/dynapatch/internal/logger"
	"tools.zach/dev/dynapatch/internal/patch"
	"tools.zach/dev/dynapatch/internal/paths"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Job is one patch routine.
type Job struct {
	// Name identifies the routine in logs and results.
	Name string
	// Archive is the archive patched in place.
	Archive string
	// Backup is the pristine copy, created once and always extracted from.
	Backup string
	// Scratch is the extraction directory, wiped at the start of every run.
	Scratch string
	// Target is the slash-separated script path inside the archive.
	Target string
	// Apply edits the target script.
	Apply func(src string) (patch.Result, error)
}

// Result is the outcome of one [Job].
type Result struct {
	Job string
	Err error
}

// Options controls a [Patcher].
type Options struct {
	// DryRun stops each routine after the edit is computed: nothing is
	// written back and no archive is repacked. Backups are still created.
	DryRun bool
	// Unpack is forwarded to [asar.Options.Unpack] when repacking.
	Unpack []string
	// Preview receives a one-line diff of every edit. Nil disables it.
	Preview io.Writer
	// PreviewContext is the number of bytes shown around an edit.
	PreviewContext int
}

// Patcher runs jobs.
type Patcher struct {
	log  *slog.Logger
	opts Options
	// previewMu keeps concurrent routines from interleaving preview output.
	previewMu sync.Mutex
}

// New returns a Patcher that logs through log.
func New(log *slog.Logger, opts Options) *Patcher {
	if opts.PreviewContext <= 0 {
		opts.PreviewContext = 60
	}
	return &Patcher{log: log, opts: opts}
}

// ///////////////////////////////////////////////
// Jobs
// ///////////////////////////////////////////////

// Jobs returns the two Dynalist routines for layout: "app" disables the
// update check and "dynalist" injects fontFamily.
func Jobs(l paths.Layout, fontFamily string) []Job {
	return []Job{
		{
			Name:    "app",
			Archive: l.AppArchive,
			Backup:  l.AppBackup,
			Scratch: l.AppScratch,
			Target:  paths.AppScript,
			Apply:   patch.DisableUpdateCheck,
		},
		{
			Name:    "dynalist",
			Archive: l.DynalistArchive,
			Backup:  l.DynalistBackup,
			Scratch: l.DynalistScratch,
			Target:  paths.DynalistScript,
			Apply: func(src string) (patch.Result, error) {
				return patch.InjectFont(src, fontFamily)
			},
		},
	}
}

// ///////////////////////////////////////////////
// Running
// ///////////////////////////////////////////////

// RunAll runs every job concurrently and returns their results in job
// order. Each failure is logged by its own routine; one failing job never
// stops another.
func (p *Patcher) RunAll(ctx context.Context, jobs ...Job) []Result {
	results := make([]Result, len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, job := range jobs {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{Job: job.Name, Err: fmt.Errorf("panic: %v", r)}
					logger.Fail(p.log, "patch "+job.Name+" fail", "error", r)
				}
			}()
			err := p.Run(ctx, job)
			if err != nil {
				logger.Fail(p.log, "patch "+job.Name+" fail", "error", err)
			}
			results[i] = Result{Job: job.Name, Err: err}
		}()
	}
	wg.Wait()
	return results
}

// Run executes job's steps in order, stopping at the first failure. The
// primary archive is only replaced by the final repack, which is atomic.
// Files unpacked in the backup stay unpacked in the repacked archive.
func (p *Patcher) Run(ctx context.Context, job Job) error {
	log := p.log.With("job", job.Name)

	created, err := fsutil.BackupArchive(job.Archive, job.Backup)
	if err != nil {
		return fmt.Errorf("backup %s: %w", job.Archive, err)
	}
	if created {
		log.Info("backup created", "path", job.Backup)
	} else {
		logger.Trace(log, "backup exists", "path", job.Backup)
	}
	unpackedDir := job.Archive + asar.UnpackedSuffix
	created, err = fsutil.BackupDir(unpackedDir, job.Backup+asar.UnpackedSuffix)
	if err != nil {
		return fmt.Errorf("backup %s: %w", unpackedDir, err)
	}
	if created {
		log.Info("backup created", "path", job.Backup+asar.UnpackedSuffix)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.clear(log, job.Scratch); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := asar.ExtractAll(job.Backup, job.Scratch); err != nil {
		return fmt.Errorf("extract %s: %w", job.Backup, err)
	}
	logger.Trace(log, "extracted", "from", job.Backup, "to", job.Scratch)
	keepUnpacked, err := asar.UnpackedFiles(job.Backup)
	if err != nil {
		return err
	}

	target := paths.InScratch(job.Scratch, job.Target)
	src, err := fsutil.ReadFile(target)
	if err != nil {
		return err
	}
	res, err := job.Apply(src)
	if err != nil {
		return fmt.Errorf("%s: %w", job.Target, err)
	}
	if !res.Scoped {
		log.Warn("function marker not found, patched first match in whole file",
			"file", job.Target, "offset", res.Offset)
	}
	p.preview(job, src, res)

	if p.opts.DryRun {
		log.Info("dry run, archive left untouched", "file", job.Target, "offset", res.Offset)
		return nil
	}

	if err := fsutil.WriteFile(target, res.Text); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := asar.CreatePackage(job.Scratch, job.Archive, asar.Options{
		Unpack:      p.opts.Unpack,
		UnpackFiles: keepUnpacked,
	}); err != nil {
		return fmt.Errorf("repack %s: %w", job.Archive, err)
	}
	log.Info("patched", "archive", job.Archive, "file", job.Target, "offset", res.Offset)
	return nil
}

// clear removes a scratch directory left over from an earlier run.
func (p *Patcher) clear(log *slog.Logger, dir string) error {
	if err := fsutil.ExistsDir(dir); err != nil {
		log.Info("clear: not exists", "path", dir)
		return nil
	}
	log.Info("clear: exists", "path", dir)
	if err := fsutil.RemoveDir(dir); err != nil {
		return err
	}
	log.Info("clear: has clear", "path", dir)
	return nil
}

// preview writes a one-line diff of res when a preview writer is set.
func (p *Patcher) preview(job Job, src string, res patch.Result) {
	if p.opts.Preview == nil {
		return
	}
	diffs := patch.Preview(src, res, p.opts.PreviewContext)
	p.previewMu.Lock()
	defer p.previewMu.Unlock()
	fmt.Fprintf(p.opts.Preview, "%s: %s @%d\n  %s\n", job.Name, job.Target, res.Offset, patch.Render(diffs))
}
