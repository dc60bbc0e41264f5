// Package config loads the patch engine's configuration: a YAML file for
// the durable settings plus kong-parsed CLI flags for the knobs that make
// sense to override per-invocation.
//
// Grounded on the teacher's config package: same NewConfig shape
// (.env, then CLI, then file, then validate), same per-substruct
// validate* functions, same destination DSN validation via
// dd-trace-go's parsedsn — with TOML swapped for YAML.
package config

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/DataDog/dd-trace-go/contrib/database/sql/parsedsn"
)

const (
	EnvVarPrefix = "BEAMPATCH"

	DefaultPatchListURL     = ""
	DefaultTargetGRF        = "data.grf"
	DefaultVerifyChecksums  = true
	DefaultAllowManualPatch = false
	DefaultHTTPListenAddr   = ":8080"

	MinMirrorPriority = 0
	MaxMirrorPriority = 1000
)

var validAuditSinkTypes = map[string]struct{}{
	"":         {}, // audit disabled
	"file":     {},
	"mysql":    {},
	"postgres": {},
	"mongo":    {},
}

// Config is the fully loaded, validated configuration.
type Config struct {
	CLI  *CLI
	YAML *YAML
}

// YAML is the file-backed configuration, mirroring spec's enumerated
// "config surface consumed by the core" plus the ambient extras
// (health tracking, audit sinks, HTTP listen address) this rework adds.
type YAML struct {
	Patcher *YAMLPatcher `yaml:"patcher"`
	App     *YAMLApp     `yaml:"app"`
	Health  *YAMLHealth  `yaml:"health"`
	Audit   *YAMLAudit   `yaml:"audit"`
	HTTP    *YAMLHTTP    `yaml:"http"`
}

type YAMLMirror struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
}

type YAMLPatcher struct {
	Mirrors          []YAMLMirror `yaml:"mirrors"`
	PatchListURL     string       `yaml:"patch_list_url"`
	VerifyChecksums  bool         `yaml:"verify_checksums"`
	TargetGRF        string       `yaml:"target_grf"`
	AllowManualPatch bool         `yaml:"allow_manual_patch"`
}

type YAMLApp struct {
	GameDirectory string `yaml:"game_directory"`
}

// YAMLHealth configures the optional mirror-health tracker. Backend "mem"
// (the default) needs nothing further; "redis" needs Addr.
type YAMLHealth struct {
	Backend  string `yaml:"backend"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// YAMLAudit configures the optional audit sink. Type "" disables
// auditing entirely.
type YAMLAudit struct {
	Type      string `yaml:"type"` // "", "file", "mysql", "postgres", "mongo"
	Path      string `yaml:"path"` // for type "file"
	DSN       string `yaml:"dsn"`  // for type "mysql"/"postgres"
	MongoURI  string `yaml:"mongo_uri"`
	MongoDB   string `yaml:"mongo_database"`
	MongoColl string `yaml:"mongo_collection"`
}

type YAMLHTTP struct {
	ListenAddr string `yaml:"listen_addr"`
}

type CLI struct {
	ConfigFile string `kong:"help='Path to the YAML config file',type='path',default='config.yaml',short='c'"`
	DryRun     bool   `kong:"help='Check for and list pending patches without applying them',short='n'"`
	Apply      bool   `kong:"help='Apply all pending patches and exit',short='a'"`
	Serve      bool   `kong:"help='Run the HTTP control surface',short='s'"`

	ManualPatch string `kong:"help='Apply a single patch file directly, bypassing mirrors/cache',type='path'"`
	ResetCache  bool   `kong:"help='Forget all applied patches'"`

	Debug   bool             `kong:"help='Enable debug logging',short='d'"`
	Version kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	Ctx *kong.Context `kong:"-"`
}

// VERSION gets set during build.
var VERSION = "0.0.0"

// NewConfig loads .env (if present), parses CLI args, reads and validates
// the YAML config file.
func NewConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	cli, err := readCLIArgs()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	y, err := readYAML(cli.ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	return &Config{CLI: cli, YAML: y}, nil
}

func readCLIArgs() (*CLI, error) {
	cli := &CLI{}
	cli.Ctx = kong.Parse(cli,
		kong.Name("beampatch"),
		kong.Description("Content patch engine for GRF-backed game clients"),
		kong.UsageOnError(),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version": VERSION,
		})

	return cli, nil
}

func readYAML(file string) (*YAML, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "error reading file")
	}

	y := &YAML{}
	if err := yaml.Unmarshal(data, y); err != nil {
		return nil, errors.Wrap(err, "error parsing YAML config")
	}

	setYAMLDefaults(y)

	if err := Validate(y); err != nil {
		return nil, errors.Wrap(err, "error validating config")
	}

	return y, nil
}

func setYAMLDefaults(y *YAML) {
	if y.Patcher == nil {
		y.Patcher = &YAMLPatcher{}
	}
	if y.App == nil {
		y.App = &YAMLApp{}
	}
	if y.Health == nil {
		y.Health = &YAMLHealth{}
	}
	if y.Audit == nil {
		y.Audit = &YAMLAudit{}
	}
	if y.HTTP == nil {
		y.HTTP = &YAMLHTTP{}
	}

	if y.Patcher.TargetGRF == "" {
		y.Patcher.TargetGRF = DefaultTargetGRF
	}
	if y.Health.Backend == "" {
		y.Health.Backend = "mem"
	}
	if y.HTTP.ListenAddr == "" {
		y.HTTP.ListenAddr = DefaultHTTPListenAddr
	}
}

// Validate checks every substruct of y for internal consistency.
func Validate(y *YAML) error {
	if y == nil {
		return errors.New("config cannot be nil")
	}

	if err := validatePatcher(y.Patcher); err != nil {
		return errors.Wrap(err, "patcher error(s)")
	}
	if err := validateHealth(y.Health); err != nil {
		return errors.Wrap(err, "health error(s)")
	}
	if err := validateAudit(y.Audit); err != nil {
		return errors.Wrap(err, "audit error(s)")
	}

	return nil
}

func validatePatcher(p *YAMLPatcher) error {
	if p == nil {
		return errors.New("patcher config cannot be empty")
	}

	if p.PatchListURL == "" {
		return errors.New("patcher.patch_list_url cannot be empty")
	}

	if p.TargetGRF == "" {
		return errors.New("patcher.target_grf cannot be empty")
	}

	for _, m := range p.Mirrors {
		if m.Name == "" {
			return errors.New("patcher.mirrors entry missing name")
		}
		if m.Priority < MinMirrorPriority || m.Priority > MaxMirrorPriority {
			return errors.Errorf("patcher.mirrors[%s].priority must be between %d and %d", m.Name, MinMirrorPriority, MaxMirrorPriority)
		}
	}

	return nil
}

func validateHealth(h *YAMLHealth) error {
	if h == nil {
		return errors.New("health config cannot be empty")
	}

	switch h.Backend {
	case "mem":
		// nothing further required
	case "redis":
		if h.Addr == "" {
			return errors.New("health.addr cannot be empty when backend is redis")
		}
	default:
		return errors.Errorf("health.backend %s is invalid", h.Backend)
	}

	return nil
}

func validateAudit(a *YAMLAudit) error {
	if a == nil {
		return errors.New("audit config cannot be empty")
	}

	if _, ok := validAuditSinkTypes[a.Type]; !ok {
		return errors.Errorf("audit.type %s is invalid", a.Type)
	}

	switch a.Type {
	case "file":
		if a.Path == "" {
			return errors.New("audit.path cannot be empty when type is file")
		}
	case "mysql":
		if _, err := parsedsn.MySQL(a.DSN); err != nil {
			return errors.Wrap(err, "error validating audit.dsn")
		}
	case "postgres":
		if _, err := parsedsn.Postgres(a.DSN); err != nil {
			return errors.Wrap(err, "error validating audit.dsn")
		}
	case "mongo":
		if a.MongoURI == "" || a.MongoDB == "" || a.MongoColl == "" {
			return errors.New("audit.mongo_uri, audit.mongo_database, audit.mongo_collection must all be set when type is mongo")
		}
	}

	return nil
}
