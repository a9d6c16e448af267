package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/codeninja55/dicom-anon/cmd/dicom-anon/internal/build"
	"github.com/codeninja55/dicom-anon/cmd/dicom-anon/internal/ui"
	"github.com/codeninja55/dicom-anon/internal/config"
	"github.com/codeninja55/dicom-anon/internal/deident/audit"
	"github.com/codeninja55/dicom-anon/internal/deident/identifier"
	"github.com/codeninja55/dicom-anon/internal/deident/quarantine"
	"github.com/codeninja55/dicom-anon/internal/deident/rewrite"
	"github.com/codeninja55/dicom-anon/internal/deident/spectable"
	"github.com/codeninja55/dicom-anon/internal/deident/transform"
	"github.com/codeninja55/dicom-anon/internal/deident/whitelist"
	"github.com/codeninja55/dicom-anon/internal/run"
)

const (
	appName        = "dicom-anon"
	appDescription = "De-identify a directory tree of DICOM files"
)

// CLI is the root command structure.
type CLI struct {
	config.GlobalConfig

	Clean  CleanCmd  `cmd:"" default:"withargs" help:"De-identify ident_dir into clean_dir"`
	Lookup LookupCmd `cmd:"" help:"Reverse audit lookup: cleaned value to original"`
}

// CleanCmd runs a full de-identification pass.
type CleanCmd struct {
	config.RunArgs
}

// LookupCmd exposes the audit store's reversal path (supplemented
// feature 1) for an auditor who needs to go from a cleaned value back
// to the original.
type LookupCmd struct {
	AuditFile string `name:"audit_file" required:"" type:"existingfile" help:"Path to the audit store database"`
	Attribute string `arg:"" help:"Attribute name as it appears in the specification table, e.g. \"Patient's Name\""`
	Cleaned   string `arg:"" help:"Cleaned value to reverse"`
	StudyPK   int64  `name:"study" default:"0" help:"Study scope primary key (0 for the unscoped Study Instance UID table)"`
}

// Run executes the dicom-anon CLI with the provided build info.
func Run(version, commit, date string) error {
	build.SetBuildInfo(version, commit, date)

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name(appName),
		kong.Description(appDescription),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version, "commit": commit, "date": date},
	)

	logger := setupLogger(&cli.GlobalConfig)
	runID := uuid.NewString()
	logger.Debug("dicom-anon starting", "version", version, "commit", commit, "run_id", runID)

	if err := ctx.Run(&cli.GlobalConfig, logger, runID); err != nil {
		logger.Error("command failed", "error", err)
		return err
	}
	return nil
}

// Run executes the de-identification pass.
func (c *CleanCmd) Run(global *config.GlobalConfig, logger *log.Logger, runID string) error {
	if err := config.LoadDefaults(&c.RunArgs); err != nil {
		return err
	}
	if err := config.Validate(&c.RunArgs); err != nil {
		return err
	}

	ui.PrintBanner()
	logger = logger.With("run_id", runID)

	table, err := spectable.Load(c.SpecFile)
	if err != nil {
		return fmt.Errorf("load specification table: %w", err)
	}

	wl := whitelist.Empty()
	if c.WhiteListFile != "" {
		wl, err = whitelist.Load(c.WhiteListFile)
		if err != nil {
			return fmt.Errorf("load whitelist: %w", err)
		}
	}

	store, err := audit.Open(c.AuditFile)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer store.Close()

	profile := transform.ProfileBasic
	if c.Profile == "clean" {
		profile = transform.ProfileClean
	}

	tr := &transform.Transformer{
		Table:       table,
		Whitelist:   wl,
		Store:       store,
		Identifier:  identifier.New(c.OrgRoot),
		Profile:     profile,
		KeepOverlay: c.KeepOverlay,
		Logger: func(format string, args ...any) {
			logger.Infof(format, args...)
		},
	}

	rewriteOpts := rewrite.Options{
		Profile:         profile,
		KeepPrivateTags: c.KeepPrivateTags,
		KeepCSAHeaders:  c.KeepCSAHeaders,
		Rename:          c.Rename,
	}
	rewriter := rewrite.New(tr, store, rewriteOpts)

	relativeDateTags, err := config.ParseRelativeDateTags(c.RelativeDates)
	if err != nil {
		return err
	}
	if len(relativeDateTags) > 0 {
		rebaser := rewrite.NewRebaser(relativeDateTags)
		logger.Info("scanning for relative-date offsets", "tags", len(relativeDateTags))
		if err := rebaser.Scan(c.IdentDir); err != nil {
			return fmt.Errorf("scan relative-date offsets: %w", err)
		}
		rewriter.Rebaser = rebaser
	}

	classifier := quarantine.New(c.Modalities, c.SuspectManufacturer, c.SuspectModelName)

	runner := run.New(classifier, rewriter, run.Options{
		IdentDir:      c.IdentDir,
		CleanDir:      c.CleanDir,
		QuarantineDir: c.QuarantineDir,
		DryRun:        c.DryRun,
		Logger:        logger,
	})

	summary, err := runner.Run(context.Background())
	if err != nil {
		return err
	}

	quarantinedTotal := 0
	for _, n := range summary.Quarantined {
		quarantinedTotal += n
	}
	logger.Info("run complete", "seen", summary.Seen, "cleaned", summary.Cleaned, "quarantined", quarantinedTotal)
	ui.PrintSummary(os.Stdout, summary)
	return nil
}

// Run executes a reverse audit lookup.
func (c *LookupCmd) Run(global *config.GlobalConfig, logger *log.Logger, runID string) error {
	store, err := audit.Open(c.AuditFile)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer store.Close()

	original, ok, err := store.Reverse(c.Attribute, c.Cleaned, c.StudyPK)
	if err != nil {
		return fmt.Errorf("reverse lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("no audit record found for %s=%q in study scope %d", c.Attribute, c.Cleaned, c.StudyPK)
	}

	fmt.Println(original)
	return nil
}

// setupLogger configures the global logger based on config.
func setupLogger(cfg *config.GlobalConfig) *log.Logger {
	out := os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			logger := log.NewWithOptions(f, log.Options{
				ReportCaller:    cfg.Debug,
				ReportTimestamp: true,
				TimeFormat:      "15:04:05",
			})
			applyLevelAndFormat(logger, cfg)
			log.SetDefault(logger)
			return logger
		}
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	applyLevelAndFormat(logger, cfg)
	log.SetDefault(logger)
	return logger
}

func applyLevelAndFormat(logger *log.Logger, cfg *config.GlobalConfig) {
	switch cfg.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if !cfg.Pretty {
		logger.SetFormatter(log.JSONFormatter)
	}
}
