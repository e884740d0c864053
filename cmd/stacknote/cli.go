package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yujeong0411/stack-note/internal/agent"
	"github.com/yujeong0411/stack-note/internal/classify"
	"github.com/yujeong0411/stack-note/internal/config"
	"github.com/yujeong0411/stack-note/internal/db"
	"github.com/yujeong0411/stack-note/internal/extract"
	"github.com/yujeong0411/stack-note/internal/gate"
	"github.com/yujeong0411/stack-note/internal/llm"
	"github.com/yujeong0411/stack-note/internal/mcp"
	"github.com/yujeong0411/stack-note/internal/pipeline"
	"github.com/yujeong0411/stack-note/internal/sched"
	"github.com/yujeong0411/stack-note/internal/vector"
	"github.com/yujeong0411/stack-note/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "stacknote",
		Usage:   "Personal knowledge capture pipeline",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Data directory (default ~/.stacknote)",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			ingestCmd(),
			briefCmd(),
			mcpCmd(),
		},
	}
	return app
}

// runtime bundles everything a command needs after bootstrap.
type runtime struct {
	baseDir string
	cfg     *config.Config
	db      *sql.DB
	client  *llm.Client
	store   *vector.Store
	logger  *slog.Logger
}

func (rt *runtime) close() {
	rt.db.Close()
}

// bootstrap opens the data directory, database, model client and
// vector index shared by every command.
func bootstrap(c *cli.Context) (*runtime, error) {
	baseDir := c.String("data-dir")
	if baseDir == "" {
		var err error
		baseDir, err = config.DefaultBaseDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data directory: %w", err)
		}
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	client := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMEmbedModel,
		llm.WithTimeout(time.Duration(cfg.ModelTimeoutSecs)*time.Second))

	store := vector.NewStore(baseDir, client)
	if err := store.Load(); err != nil {
		database.Close()
		return nil, fmt.Errorf("load vector index: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	return &runtime{
		baseDir: baseDir,
		cfg:     cfg,
		db:      database,
		client:  client,
		store:   store,
		logger:  logger,
	}, nil
}

// newPipeline assembles the capture pipeline on top of a runtime.
func newPipeline(rt *runtime) *pipeline.Pipeline {
	extractor := extract.New(time.Duration(rt.cfg.FetchTimeoutSecs) * time.Second)
	g := gate.New(rt.client)
	cls := classify.New(rt.client, rt.logger)
	return pipeline.New(rt.db, g, extractor, cls, rt.store, rt.cfg.QueueSize, rt.logger)
}

// serveCmd runs the HTTP API, background pipeline and briefing scheduler.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server with the capture pipeline",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pipe := newPipeline(rt)
			go pipe.Run(ctx)

			ag := agent.New(agent.Deps{
				DB:            rt.db,
				Vector:        rt.store,
				Chatter:       rt.client,
				MaxIterations: rt.cfg.AgentMaxIterations,
				Logger:        rt.logger,
			})

			briefing := func(ctx context.Context, days int) (string, error) {
				return agent.GenerateBriefing(ctx, rt.db, rt.client, time.Now, days)
			}

			scheduler, err := sched.New(rt.cfg.BriefingHour, rt.cfg.BriefingDays, briefing, rt.logger)
			if err != nil {
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()

			h := web.NewHandlers(rt.db, pipe, rt.store, ag, briefing, rt.logger)
			srv := web.NewServer(rt.db, rt.cfg, h)
			return web.Run(srv, rt.logger)
		},
	}
}

// ingestCmd processes a single URL synchronously, bypassing the queue.
func ingestCmd() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Capture a single URL and print the outcome",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "Title hint for pages without one"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: stacknote ingest <url>")
			}

			rt, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer rt.close()

			pipe := newPipeline(rt)
			outcome := pipe.Process(c.Context, pipeline.Item{
				URL:   c.Args().First(),
				Title: c.String("title"),
			})

			switch outcome.Status {
			case pipeline.StatusStored:
				fmt.Printf("stored activity %d\n", outcome.ActivityID)
			default:
				fmt.Printf("skipped: %s\n", outcome.Reason)
			}
			return nil
		},
	}
}

// briefCmd generates a briefing on demand and prints it.
func briefCmd() *cli.Command {
	return &cli.Command{
		Name:  "brief",
		Usage: "Generate a briefing over recent activity",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 7, Usage: "Days of activity to cover"},
		},
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer rt.close()

			content, err := agent.GenerateBriefing(c.Context, rt.db, rt.client, time.Now, c.Int("days"))
			if err != nil {
				return err
			}
			fmt.Println(content)
			return nil
		},
	}
}

// mcpCmd serves the knowledge base over MCP stdio.
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer rt.close()

			return mcp.Run(rt.db, rt.store, rt.client, Version)
		},
	}
}
