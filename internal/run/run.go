// Package run implements the run driver (§5, §7): directory traversal
// over the input tree, per-file dispatch through the quarantine
// classifier and dataset rewriter, quarantine copy-verbatim, summary
// accumulation, and cooperative cancellation at file boundaries.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeninja55/dicom-anon/dicom"
	"github.com/codeninja55/dicom-anon/internal/deident/quarantine"
	"github.com/codeninja55/dicom-anon/internal/deident/rewrite"
)

// Logger is the minimal structured-logging contract the run driver
// needs; *charmbracelet/log.Logger satisfies it.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// Options configures a run.
type Options struct {
	IdentDir      string
	CleanDir      string
	QuarantineDir string

	// DryRun runs classification, scope resolution, and transformation
	// but writes nothing: no cleaned file, no quarantine copy, no audit
	// commit (§ supplemented dry-run feature).
	DryRun bool

	Logger Logger
}

// Runner drives a single pass over an input tree.
type Runner struct {
	Classifier *quarantine.Classifier
	Rewriter   *rewrite.Rewriter
	Options    Options
}

// New creates a Runner.
func New(classifier *quarantine.Classifier, rewriter *rewrite.Rewriter, opts Options) *Runner {
	return &Runner{Classifier: classifier, Rewriter: rewriter, Options: opts}
}

// Summary accumulates per-run counts (supplemented feature: per-run
// summary counts). There is no separate "failed" bucket: under §7's
// error model, every per-file failure class (parse failure, classifier
// rejection, transform failure) is isolated into Quarantined, and every
// other failure class (filesystem read/write, audit-store) aborts the
// whole run rather than marking one file as failed.
type Summary struct {
	Seen        int
	Cleaned     int
	Quarantined map[string]int
}

func newSummary() *Summary {
	return &Summary{Quarantined: make(map[string]int)}
}

// Run walks r.Options.IdentDir and processes every regular file found.
// A read failure at the filesystem level or a write failure on a
// cleaned file aborts the run (§7); per-file parse, classify, and
// transform failures are isolated via quarantine and do not abort.
// ctx is checked for cancellation at each file boundary (§5).
//
// Every audit-store mutation made during the walk is wrapped in a
// single transaction for the run: it is rolled back instead of
// committed when DryRun is set, or when the walk aborts, so neither
// consumed synthetic ids nor partial rows survive a run that produced
// no output (§7, supplemented dry-run feature).
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := newSummary()

	if err := validateDestination(r.Options.IdentDir, r.Options.CleanDir); err != nil {
		return nil, err
	}

	store := r.Rewriter.Store
	if err := store.BeginRun(); err != nil {
		return nil, fmt.Errorf("run aborted: %w", err)
	}

	var walkErr error
	err := filepath.Walk(r.Options.IdentDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if info.IsDir() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, relErr := filepath.Rel(r.Options.IdentDir, path)
		if relErr != nil {
			return fmt.Errorf("resolve relative path for %s: %w", path, relErr)
		}

		summary.Seen++
		if err := r.processFile(path, rel, summary); err != nil {
			walkErr = err
			return err
		}
		return nil
	})

	if err != nil || walkErr != nil || r.Options.DryRun {
		if rbErr := store.RollbackRun(); rbErr != nil {
			r.log().Error("failed to roll back audit store", "error", rbErr)
		}
	} else if commitErr := store.CommitRun(); commitErr != nil {
		return summary, fmt.Errorf("run aborted: %w", commitErr)
	}

	if err != nil {
		return summary, fmt.Errorf("run aborted: %w", err)
	}
	if walkErr != nil {
		return summary, walkErr
	}

	return summary, nil
}

// processFile handles one input file: parse, classify, rewrite or
// quarantine. Returns a non-nil error only for the filesystem/write
// failure classes that must abort the run (§7); all other failure
// classes are absorbed into quarantine and logged.
func (r *Runner) processFile(path, rel string, summary *Summary) error {
	ds, err := dicom.ParseFile(path)
	if err != nil {
		return r.quarantine(path, rel, "Could not read DICOM file.", summary)
	}

	if quarantined, reason := r.Classifier.Classify(ds); quarantined {
		return r.quarantine(path, rel, reason, summary)
	}

	result, err := r.Rewriter.Rewrite(ds, filepath.Base(path))
	if err != nil {
		reason := fmt.Sprintf("Error running anonymize function. %s", err)
		return r.quarantine(path, rel, reason, summary)
	}

	if r.Options.DryRun {
		summary.Cleaned++
		r.log().Info("would clean", "path", path)
		return nil
	}

	destDir := filepath.Join(r.Options.CleanDir, filepath.Dir(rel))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create clean directory %s: %w", destDir, err)
	}
	destPath := filepath.Join(destDir, result.OutputName)
	if err := dicom.WriteFile(destPath, result.DataSet); err != nil {
		return fmt.Errorf("write cleaned file %s: %w", destPath, err)
	}

	summary.Cleaned++
	r.log().Info("cleaned", "path", path, "dest", destPath)
	return nil
}

// quarantine copies the original file verbatim to the quarantine tree,
// preserving its relative path, and records the reason. A copy failure
// at the filesystem level is itself a read/write failure and aborts the
// run; in dry-run mode no copy is made.
func (r *Runner) quarantine(path, rel, reason string, summary *Summary) error {
	summary.Quarantined[reason]++
	r.log().Warn("quarantined", "path", path, "reason", reason)

	if r.Options.DryRun || r.Options.QuarantineDir == "" {
		return nil
	}

	destPath := filepath.Join(r.Options.QuarantineDir, rel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create quarantine directory: %w", err)
	}
	if err := copyFile(path, destPath); err != nil {
		return fmt.Errorf("copy to quarantine %s: %w", destPath, err)
	}
	return nil
}

func (r *Runner) log() Logger {
	if r.Options.Logger != nil {
		return r.Options.Logger
	}
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(any, ...any) {}
func (noopLogger) Info(any, ...any)  {}
func (noopLogger) Warn(any, ...any)  {}
func (noopLogger) Error(any, ...any) {}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// validateDestination rejects a clean/quarantine tree nested inside the
// input tree (§6: "the destination must not be nested inside the source").
func validateDestination(sourceDir, destDir string) error {
	if destDir == "" {
		return nil
	}
	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("resolve source directory: %w", err)
	}
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolve destination directory: %w", err)
	}
	rel, err := filepath.Rel(absSource, absDest)
	if err != nil {
		return nil
	}
	if rel == "." || (!strings.HasPrefix(rel, "..") && rel != "") {
		return errors.New("destination directory must not be nested inside the source directory")
	}
	return nil
}
