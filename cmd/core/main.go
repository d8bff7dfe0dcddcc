// Package main provides the techniquebook core maintenance binary: it applies schema
// migrations, loads seed data and moves the store in and out of export files.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kimhsiao/techniquebook/internal/config"
	"github.com/kimhsiao/techniquebook/internal/db"
	"github.com/kimhsiao/techniquebook/internal/export"
	"github.com/kimhsiao/techniquebook/internal/logging"
	"github.com/kimhsiao/techniquebook/internal/media"
	"github.com/kimhsiao/techniquebook/internal/models"
	"github.com/kimhsiao/techniquebook/internal/services"
)

// Version is set at build time
var Version = "0.1.0"

var _ services.MediaRemover = (*media.FileStore)(nil)

const usage = `Usage: techniquebook [global flags] <command> [flags]

Commands:
  version              Print the version
  migrate              Apply pending schema migrations
  seed [--file path]   Load seed techniques into an empty store
  export -o <path>     Write every technique to a JSON file
  import -i <path>     Restore techniques from a JSON export
  stats                Print technique counts per mode

Global flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// env bundles what every command needs once configuration is loaded.
type env struct {
	cfg   config.Config
	db    *db.DB
	repo  *db.Repository
	out   io.Writer
	media *media.FileStore
}

func (e *env) Close() {
	e.repo.Close()
	e.db.Close()
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("techniquebook", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	global.SetInterspersed(false)
	configPath := global.StringP("config", "c", "", "config file (default ./"+config.FileName+")")
	dataDir := global.String("data-dir", "", "override data_dir")
	logLevel := global.String("log-level", "", "override log_level (debug, info, warn, error)")

	printUsage := func(w io.Writer) {
		fmt.Fprint(w, usage)
		global.SetOutput(w)
		global.PrintDefaults()
		global.SetOutput(io.Discard)
	}

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		printUsage(stderr)
		return 2
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}
	cmd, cmdArgs := rest[0], rest[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "techniquebook core v%s\n", Version)
		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		ConfigPath:       *configPath,
		DataDirOverride:  *dataDir,
		LogLevelOverride: *logLevel,
	})
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	logging.Init(stderr, cfg.Level())

	var exec func(e *env, args []string) error
	switch cmd {
	case "migrate":
		exec = runMigrate
	case "seed":
		exec = runSeed
	case "export":
		exec = runExport
	case "import":
		exec = runImport
	case "stats":
		exec = runStats
	default:
		fmt.Fprintf(stderr, "error: unknown command %q\n", cmd)
		printUsage(stderr)
		return 2
	}

	e, err := open(cfg, stdout)
	if err != nil {
		logging.Error("open store failed", err, map[string]interface{}{"data_dir": cfg.DataDir})
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer e.Close()

	if err := exec(e, cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func open(cfg config.Config, out io.Writer) (*env, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	store, err := media.NewFileStore(cfg.MediaDir, cfg.ThumbnailSize)
	if err != nil {
		database.Close()
		return nil, err
	}
	return &env{
		cfg:   cfg,
		db:    database,
		repo:  db.NewRepository(database.DB),
		out:   out,
		media: store,
	}, nil
}

func parseFlags(fs *flag.FlagSet, args []string, out io.Writer) error {
	fs.SetOutput(out)
	return fs.Parse(args)
}

// runMigrate reports the schema version; db.Open has already applied migrations.
func runMigrate(e *env, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := parseFlags(fs, args, e.out); err != nil {
		return err
	}

	applied, err := db.NewMigrator(e.db.DB, db.Migrations()).GetAppliedMigrations()
	if err != nil {
		return err
	}
	for _, m := range applied {
		fmt.Fprintf(e.out, "V%d %s applied %s\n", m.Version, m.Description, m.AppliedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runSeed(e *env, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("file", "", "seed file (default seed_file from config)")
	if err := parseFlags(fs, args, e.out); err != nil {
		return err
	}

	path := *file
	if path == "" {
		path = e.cfg.SeedFile
	}
	if path == "" {
		return fmt.Errorf("no seed file: pass --file or set seed_file")
	}

	applied, err := export.NewExportService(e.repo).SeedFileIfEmpty(path, time.Now())
	if err != nil {
		return err
	}
	if applied {
		fmt.Fprintf(e.out, "seeded from %s\n", path)
	} else {
		fmt.Fprintln(e.out, "store not empty, seed skipped")
	}
	return nil
}

func runExport(e *env, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	outPath := fs.StringP("out", "o", "", "output file")
	indent := fs.Bool("indent", false, "pretty-print the JSON")
	if err := parseFlags(fs, args, e.out); err != nil {
		return err
	}
	if *outPath == "" {
		*outPath = filepath.Join(e.cfg.DataDir, "exports",
			fmt.Sprintf("techniques_%s.json", time.Now().Format("20060102_150405")))
	}

	result, err := export.NewExportService(e.repo).ExportFile(&export.ExportConfig{
		OutputPath: *outPath,
		Indent:     *indent,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "exported %d techniques to %s (sha256 %s)\n", result.ItemCount, result.FilePath, result.Checksum)
	return nil
}

func runImport(e *env, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	inPath := fs.StringP("in", "i", "", "export file to restore")
	if err := parseFlags(fs, args, e.out); err != nil {
		return err
	}
	if *inPath == "" {
		return fmt.Errorf("import needs --in")
	}

	result, err := export.NewExportService(e.repo).ImportFile(*inPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "imported %d techniques\n", result.ImportedCount)
	return nil
}

func runStats(e *env, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := parseFlags(fs, args, e.out); err != nil {
		return err
	}

	svc := services.NewTechniqueService(e.repo, &services.ServiceConfig{Media: e.media})
	var parts []string
	for _, m := range models.Modes {
		all, err := svc.All(m.View())
		if err != nil {
			return err
		}
		roots, err := svc.Roots(m)
		if err != nil {
			return err
		}
		parts = append(parts, fmt.Sprintf("%s: %d techniques, %d visible roots", m, len(all), len(roots)))
	}
	combined, err := svc.Combined()
	if err != nil {
		return err
	}
	shared := 0
	for _, c := range combined {
		if c.ExistsInBothModes() {
			shared++
		}
	}
	parts = append(parts, fmt.Sprintf("combined: %d records, %d in both modes", len(combined), shared))
	fmt.Fprintln(e.out, strings.Join(parts, "\n"))
	return nil
}
