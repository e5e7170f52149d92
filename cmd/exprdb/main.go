package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/genobase/exprdb/internal/config"
	"github.com/genobase/exprdb/internal/loader"
	"github.com/genobase/exprdb/internal/mcp"
	"github.com/genobase/exprdb/internal/store"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "load":
		err = runLoad(os.Args[2:])
	case "clusters":
		err = runClusters(os.Args[2:])
	case "scan":
		err = runScan(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("exprdb %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds the flags shared across subcommands.
type cliFlags struct {
	configPath  string
	dbPath      string
	batchSize   string
	emptyPolicy string
	limit       int
	replace     bool
	force       bool
	file        string
	table       string
}

// parseArgs splits args into positional arguments and flags. Flags
// may appear anywhere; unknown flags are an error.
func parseArgs(args []string) ([]string, cliFlags, error) {
	var positional []string
	var flags cliFlags

	expectValue := func(i int, name string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("flag %s requires a value", name)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--config":
			v, err := expectValue(i, arg)
			if err != nil {
				return nil, flags, err
			}
			flags.configPath = v
			i++
		case "--db":
			v, err := expectValue(i, arg)
			if err != nil {
				return nil, flags, err
			}
			flags.dbPath = v
			i++
		case "--batch-size":
			v, err := expectValue(i, arg)
			if err != nil {
				return nil, flags, err
			}
			flags.batchSize = v
			i++
		case "--empty-policy":
			v, err := expectValue(i, arg)
			if err != nil {
				return nil, flags, err
			}
			flags.emptyPolicy = v
			i++
		case "--file":
			v, err := expectValue(i, arg)
			if err != nil {
				return nil, flags, err
			}
			flags.file = v
			i++
		case "--limit":
			v, err := expectValue(i, arg)
			if err != nil {
				return nil, flags, err
			}
			if _, scanErr := fmt.Sscanf(v, "%d", &flags.limit); scanErr != nil {
				return nil, flags, fmt.Errorf("invalid --limit value %q", v)
			}
			i++
		case "--replace":
			flags.replace = true
		case "--force":
			flags.force = true
		default:
			if len(arg) > 0 && arg[0] == '-' {
				return nil, flags, fmt.Errorf("unknown flag: %s", arg)
			}
			positional = append(positional, arg)
		}
	}
	return positional, flags, nil
}

// openStore resolves configuration and opens the database.
func openStore(flags cliFlags) (store.Store, config.ResolvedConfig, error) {
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:     flags.configPath,
		CLIDBPath:      flags.dbPath,
		CLIBatchSize:   flags.batchSize,
		CLIEmptyPolicy: flags.emptyPolicy,
	})
	if err != nil {
		return nil, cfg, err
	}

	s, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, cfg, fmt.Errorf("opening store: %w", err)
	}
	return s, cfg, nil
}

func newLoader(s store.Store, cfg config.ResolvedConfig) (*loader.Loader, error) {
	batchSize, err := cfg.BatchSizeValue()
	if err != nil {
		return nil, err
	}
	policy, err := loader.ParsePolicy(cfg.EmptyGenePolicy.Value)
	if err != nil {
		return nil, err
	}
	return loader.New(s, loader.Options{BatchSize: batchSize, Policy: policy}), nil
}

func runInit(args []string) error {
	_, flags, err := parseArgs(args)
	if err != nil {
		return err
	}

	s, cfg, err := openStore(flags)
	if err != nil {
		return err
	}
	defer s.Close()

	if flags.replace {
		if err := s.Reset(context.Background()); err != nil {
			return err
		}
		fmt.Printf("Replaced schema in %s\n", cfg.DBPath.Value)
		return nil
	}
	fmt.Printf("Initialized %s\n", cfg.DBPath.Value)
	return nil
}

func runLoad(args []string) error {
	positional, flags, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(positional) != 2 {
		return fmt.Errorf("usage: exprdb load <dir> <base> [--db path] [--batch-size n] [--empty-policy warn|reject] [--force]")
	}
	dir, base := positional[0], positional[1]

	s, cfg, err := openStore(flags)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	if !flags.force {
		loaded, err := s.DatasetLoaded(ctx, base)
		if err != nil {
			return err
		}
		if loaded {
			return fmt.Errorf("dataset %q already loaded (re-loading would violate the primary key; use --force to try anyway)", base)
		}
	}

	l, err := newLoader(s, cfg)
	if err != nil {
		return err
	}

	run, err := l.LoadMatrix(ctx, dir, base)
	if err != nil {
		return err
	}

	fmt.Printf("Loaded %d expression records from %s (%s)\n",
		run.Records, base, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	return nil
}

func runClusters(args []string) error {
	positional, flags, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: exprdb clusters <dir> [--file name] [--db path]")
	}

	s, cfg, err := openStore(flags)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := newLoader(s, cfg)
	if err != nil {
		return err
	}

	run, err := l.LoadClusters(context.Background(), positional[0], flags.file)
	if err != nil {
		return err
	}

	fmt.Printf("Loaded %d cluster records for dataset %s\n", run.Records, run.DatasetName)
	return nil
}

func runScan(args []string) error {
	positional, flags, err := parseArgs(args)
	if err != nil {
		return err
	}
	table := "expr"
	if len(positional) > 0 {
		table = positional[0]
	}

	s, _, err := openStore(flags)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	switch table {
	case "expr":
		recs, err := s.ScanExpr(ctx, flags.limit)
		if err != nil {
			return err
		}
		for _, r := range recs {
			fmt.Printf("%s\t%s\t%g\n", r.GeneID, r.CellID, r.Expr)
		}
	case "clusters":
		recs, err := s.ScanClusters(ctx, flags.limit)
		if err != nil {
			return err
		}
		for _, r := range recs {
			fmt.Printf("%d\t%d\t%s\t%s\n", r.MetaclusterID, r.ClusterID, r.CellID, r.DatasetName)
		}
	default:
		return fmt.Errorf("unknown table %q (want expr or clusters)", table)
	}
	return nil
}

func runQuery(args []string) error {
	positional, flags, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: exprdb query <sql> [--db path]")
	}

	s, _, err := openStore(flags)
	if err != nil {
		return err
	}
	defer s.Close()

	cols, rows, err := s.Query(context.Background(), positional[0])
	if err != nil {
		return err
	}

	printRow(cols)
	for _, row := range rows {
		printRow(row)
	}
	return nil
}

func printRow(fields []string) {
	for i, f := range fields {
		if i > 0 {
			fmt.Print("\t")
		}
		fmt.Print(f)
	}
	fmt.Println()
}

func runStats(args []string) error {
	_, flags, err := parseArgs(args)
	if err != nil {
		return err
	}

	s, _, err := openStore(flags)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Expression records: %d\n", stats.ExpressionCount)
	fmt.Printf("Cluster records:    %d\n", stats.ClusterCount)
	fmt.Printf("Load runs:          %d\n", stats.LoadCount)
	fmt.Printf("Database size:      %s\n", humanize.Bytes(uint64(stats.DBSizeBytes)))

	runs, err := s.ListLoads(ctx, 10)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		fmt.Println("\nRecent loads:")
		for _, run := range runs {
			fmt.Printf("  %s  %-10s %8d records  %s\n",
				run.FinishedAt.Format("2006-01-02 15:04:05"), run.Kind, run.Records, run.DatasetName)
		}
	}
	return nil
}

func runMCP(args []string) error {
	_, flags, err := parseArgs(args)
	if err != nil {
		return err
	}

	s, cfg, err := openStore(flags)
	if err != nil {
		return err
	}
	defer s.Close()

	batchSize, err := cfg.BatchSizeValue()
	if err != nil {
		return err
	}
	policy, err := loader.ParsePolicy(cfg.EmptyGenePolicy.Value)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:     s,
		BatchSize: batchSize,
		Policy:    policy,
		Version:   version,
	})
	return mcp.ServeStdio(srv)
}

func printUsage() {
	fmt.Printf(`exprdb %s — gene-expression MTX ingestion into embedded SQLite

Usage:
  exprdb <command> [arguments]

Commands:
  init                Create (or with --replace, recreate) the schema
  load <dir> <base>   Load an MTX expression dataset
  clusters <dir>      Load a cluster assignment file (clusters.tsv)
  scan [table]        Print the first rows of expr or clusters
  query <sql>         Run an ad-hoc SQL query
  stats               Show record counts and database size
  mcp                 Serve the database over MCP on stdio
  version             Print version

Flags:
  --config <path>     Config file (default ~/.exprdb/config.yaml)
  --db <path>         Database file (default ~/.exprdb/expr.db)
  --batch-size <n>    Matrix insert batch size (default 1024)
  --empty-policy <p>  Empty gene id policy: warn or reject
  --file <name>       Cluster file name (default clusters.tsv)
  --limit <n>         Row limit for scan (default 20)
  --replace           With init: drop and recreate all tables
  --force             With load: skip the already-loaded check
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
