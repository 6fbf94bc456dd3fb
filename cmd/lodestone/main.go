package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/lodestone-kb/lodestone/internal/kb"
	"github.com/lodestone-kb/lodestone/internal/mcp"
	"github.com/lodestone-kb/lodestone/internal/store"
	"github.com/lodestone-kb/lodestone/pkg/types"
)

// EnvDBPath overrides the default database location.
const EnvDBPath = "LODESTONE_DB_PATH"

func main() {
	app := &cli.App{
		Name:  "lodestone",
		Usage: "Local-first knowledge base with hybrid keyword and semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the database file",
				EnvVars: []string{EnvDBPath},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
			},
			{
				Name:      "add",
				Usage:     "Add a resource from a file (or stdin with -) and index it",
				ArgsUsage: "<file>",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "Resource title (defaults to the file name)",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Resource type (note, document, page, transcript)",
						Value: string(types.ResourceNote),
					},
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Collection identifier",
						Value: "default",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a hybrid search",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum results per bucket",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Minimum relevance score (0.0-1.0)",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Reindex every resource, skipping unchanged content",
				Action: reindexCommand,
			},
			{
				Name:   "status",
				Usage:  "Print index statistics",
				Action: statusCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", c.String("log-level"))
	}

	// stdout belongs to the MCP transport; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// dbPath resolves the database location, defaulting to ~/.lodestone.
func dbPath(c *cli.Context) (string, error) {
	if path := c.String("db"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".lodestone")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return filepath.Join(dir, "lodestone.db"), nil
}

func openCore(c *cli.Context) (*kb.Core, error) {
	path, err := dbPath(c)
	if err != nil {
		return nil, err
	}
	return kb.Open(kb.Config{DBPath: path, Logger: slog.Default()})
}

func serveCommand(c *cli.Context) error {
	core, err := openCore(c)
	if err != nil {
		return err
	}

	slog.Info("starting MCP server",
		"version", mcp.ServerVersion, "build_mode", store.BuildMode)
	return mcp.NewServer(core, slog.Default()).Serve(context.Background())
}

func addCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument")
	}

	arg := c.Args().First()
	var content []byte
	var err error
	if arg == "-" {
		content, err = io.ReadAll(os.Stdin)
	} else {
		content, err = os.ReadFile(arg)
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	title := c.String("title")
	if title == "" {
		title = filepath.Base(arg)
	}

	core, err := openCore(c)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	ctx := context.Background()
	text := string(content)
	res := &types.Resource{
		ID:           uuid.NewString(),
		CollectionID: c.String("collection"),
		Type:         types.ResourceType(c.String("type")),
		Title:        title,
		Content:      &text,
	}
	res.ComputeContentHash()
	if err := core.Store().SaveResource(ctx, res); err != nil {
		return err
	}

	job, err := core.Index(ctx, res.ID)
	if err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := job.Wait(waitCtx); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println(res.ID)
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument")
	}

	core, err := openCore(c)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	resp, err := core.Search(context.Background(), c.Args().First(), types.SearchOptions{
		Limit:    c.Int("limit"),
		MinScore: c.Float64("min-score"),
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func reindexCommand(c *cli.Context) error {
	core, err := openCore(c)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	start := time.Now()
	if err := core.ReindexAll(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "reindex complete in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func statusCommand(c *cli.Context) error {
	core, err := openCore(c)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	ctx := context.Background()
	stats, err := core.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("resources:   %d\n", stats.Resources)
	fmt.Printf("annotations: %d\n", stats.Annotations)
	fmt.Printf("artifacts:   %d\n", stats.Artifacts)
	fmt.Printf("provider:    available=%v\n", core.ProviderAvailable(ctx))
	fmt.Printf("build mode:  %s\n", store.BuildMode)
	for class, info := range stats.VectorTables {
		fmt.Printf("vectors[%s]: dimension=%d rows=%d\n", class, info.Dimension, info.Rows)
	}
	return nil
}
