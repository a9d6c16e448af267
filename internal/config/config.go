// Package config defines the CLI-facing and file-layered configuration
// for a run: flag/argument binding via kong, optional YAML/TOML
// defaults layered underneath via viper, and struct-level validation
// via validator/v10, following the layering pattern ThirdCoastInteractive's
// internal/config applies to viper + validator.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/codeninja55/dicom-anon/dicom/tag"
)

// GlobalConfig holds flags shared across the CLI before any subcommand
// runs (logging verbosity, output style), mirroring the teacher's own
// GlobalConfig role in cmd/radx/internal/cli.
type GlobalConfig struct {
	LogLevel string `name:"log-level" enum:"debug,info,warn,error" default:"info" help:"Logging verbosity"`
	LogFile  string `name:"log_file" help:"Write structured logs to this file instead of stderr"`
	Pretty   bool   `name:"pretty" default:"true" negatable:"" help:"Use human-readable log output instead of JSON"`
	Debug    bool   `name:"debug" help:"Include caller info in log output"`
}

// RunArgs is the de-identification-run-specific portion of the
// configuration: everything except the logging flags shared across
// every subcommand. Split out so the CLI's root command can carry
// GlobalConfig once while the "clean" subcommand embeds only RunArgs
// (the "lookup" subcommand embeds neither).
type RunArgs struct {
	IdentDir      string `arg:"" name:"ident_dir" type:"existingdir" validate:"required" help:"Input directory of identified DICOM files"`
	CleanDir      string `arg:"" name:"clean_dir" validate:"required" help:"Output directory for de-identified files"`
	QuarantineDir string `name:"quarantine" help:"Directory for files that cannot be safely cleaned"`

	WhiteListFile string   `name:"white_list" type:"existingfile" help:"Whitelist JSON file for Clean-Descriptors retention"`
	AuditFile     string   `name:"audit_file" default:"audit.db" help:"Path to the audit store database"`
	Modalities    []string `name:"modalities" default:"mr,ct" help:"Allowed modality codes"`
	OrgRoot       string   `name:"org_root" required:"" validate:"required" help:"Organizational OID root for generated UIDs"`
	Rename        bool     `name:"rename" help:"Name output files after the cleaned SOP Instance UID"`
	Profile       string   `name:"profile" enum:"basic,clean" default:"basic" validate:"oneof=basic clean" help:"Confidentiality profile"`

	KeepOverlay     bool `name:"keep_overlay" help:"Retain overlay data planes"`
	KeepPrivateTags bool `name:"keep_private_tags" help:"Retain private (odd-group) tags"`
	KeepCSAHeaders  bool `name:"keep_csa_headers" help:"Retain Siemens CSA header tags"`

	SpecFile      string   `name:"spec_file" type:"existingfile" validate:"required" required:"" help:"Confidentiality profile specification table file"`
	RelativeDates []string `name:"relative_dates" help:"Repeatable gggg,eeee tag pairs to rebase relative to the earliest observed date"`

	SuspectManufacturer []string `name:"suspect_manufacturer" help:"Additional manufacturer substrings that force quarantine"`
	SuspectModelName    []string `name:"suspect_model_name" help:"Additional model-name substrings that force quarantine"`

	DryRun bool `name:"dry-run" help:"Run the full pipeline but write nothing and commit no audit changes"`

	ConfigFile string `name:"config" type:"existingfile" help:"YAML/TOML file of default flag values"`
}

// Config is the full configuration for one de-identification run: the
// shared logging flags plus the run-specific arguments, bound directly
// from CLI flags/arguments by kong and, when a config file is given,
// filled in from it via viper after kong parses (see LoadDefaults).
type Config struct {
	GlobalConfig
	RunArgs
}

// LoadDefaults reads cfg.ConfigFile (if set) via viper and layers its
// values underneath whatever kong has already populated into cfg,
// leaving any field kong set from an explicit flag/argument untouched.
// A field that still holds its kong default (audit_file, modalities,
// profile) counts as unset, so the file's value replaces it even when
// the flag was given explicitly with that same default value.
// Call after kong.Parse, before validation.
func LoadDefaults(cfg *RunArgs) error {
	if cfg.ConfigFile == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(cfg.ConfigFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", cfg.ConfigFile, err)
	}

	if cfg.OrgRoot == "" {
		cfg.OrgRoot = v.GetString("org_root")
	}
	if cfg.SpecFile == "" {
		cfg.SpecFile = v.GetString("spec_file")
	}
	if cfg.WhiteListFile == "" {
		cfg.WhiteListFile = v.GetString("white_list")
	}
	if cfg.AuditFile == "audit.db" && v.IsSet("audit_file") {
		cfg.AuditFile = v.GetString("audit_file")
	}
	if len(cfg.Modalities) == 0 || (len(cfg.Modalities) == 2 && cfg.Modalities[0] == "mr" && cfg.Modalities[1] == "ct") {
		if v.IsSet("modalities") {
			cfg.Modalities = v.GetStringSlice("modalities")
		}
	}
	if cfg.Profile == "basic" && v.IsSet("profile") {
		cfg.Profile = v.GetString("profile")
	}
	if len(cfg.SuspectManufacturer) == 0 && v.IsSet("suspect_manufacturer") {
		cfg.SuspectManufacturer = v.GetStringSlice("suspect_manufacturer")
	}
	if len(cfg.SuspectModelName) == 0 && v.IsSet("suspect_model_name") {
		cfg.SuspectModelName = v.GetStringSlice("suspect_model_name")
	}

	return nil
}

// Validate checks structural requirements with validator/v10 and the
// extra cross-field checks a struct tag cannot express (at least one
// modality, relative-date tag syntax).
func Validate(cfg *RunArgs) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if len(cfg.Modalities) == 0 {
		return fmt.Errorf("validate config: at least one modality is required")
	}

	if _, err := ParseRelativeDateTags(cfg.RelativeDates); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	return nil
}

// ParseRelativeDateTags parses the repeatable "gggg,eeee" CLI values
// into dataset tags, for the Relative-Date Rebaser (§4.7).
func ParseRelativeDateTags(values []string) ([]tag.Tag, error) {
	tags := make([]tag.Tag, 0, len(values))
	for _, v := range values {
		t, err := tag.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid relative_dates tag %q: %w", v, err)
		}
		tags = append(tags, t)
	}
	return tags, nil
}
