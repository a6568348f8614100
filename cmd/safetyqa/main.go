package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"

	"safetyqa/internal/answer"
	"safetyqa/internal/chunker"
	"safetyqa/internal/config"
	"safetyqa/internal/domain"
	"safetyqa/internal/evaluate"
	"safetyqa/internal/extract"
	"safetyqa/internal/logging"
	"safetyqa/internal/server"
	"safetyqa/internal/service"
	"safetyqa/internal/store"
	"safetyqa/internal/tui"
)

const usage = `Usage: safetyqa [--config=config.yaml] <command> [flags]

Commands:
  ingest        extract PDFs from the archive into the chunk store
  build-index   embed stored chunks and write the index
  serve         run the HTTP query service
  ask           answer one question (-q, -k, -mode, -json)
  tui           interactive terminal client
  evaluate      run a question set in both modes (-questions, -out)
`

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML or TOML config file (optional; uses ./config.yaml or ~/.config/safetyqa/config.yaml if not provided)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Logging
	if args[0] == "tui" {
		// Console output would draw over the terminal UI.
		logCfg.Output = []string{"file"}
	}
	logger := logging.New(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ingest":
		err = runIngest(ctx, cfg, logger)
	case "build-index":
		err = runBuildIndex(ctx, cfg, logger)
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "ask":
		err = runAsk(ctx, cfg, logger, rest)
	case "tui":
		err = runTUI(ctx, cfg, logger)
	case "evaluate":
		err = runEvaluate(ctx, cfg, logger, rest)
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", cmd).Msg("Command failed")
	}
}

func runIngest(ctx context.Context, cfg *config.AppConfig, logger arbor.ILogger) error {
	sources, err := service.LoadSources(cfg.Ingest.SourcesPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path, store.Options{})
	if err != nil {
		return err
	}
	defer st.Close()

	ing := service.NewIngester(extract.PDF{}, chunker.NewWindow(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap), st, logger)
	summary, err := ing.IngestArchive(ctx, cfg.Ingest.ArchivePath, sources)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d chunks from %d PDFs (%d skipped) into %s\n", summary.Chunks, summary.Files, summary.Skipped, cfg.Store.Path)
	return nil
}

func runBuildIndex(ctx context.Context, cfg *config.AppConfig, logger arbor.ILogger) error {
	st, err := store.Open(cfg.Store.Path, store.Options{ReadOnly: true})
	if err != nil {
		return err
	}
	defer st.Close()

	emb, err := service.NewEmbedder(cfg.Embedder)
	if err != nil {
		return err
	}
	summary, err := service.BuildIndex(ctx, cfg, st, emb, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d vectors of dimension %d\n", summary.Vectors, summary.Dimension)
	return nil
}

func runServe(ctx context.Context, cfg *config.AppConfig, logger arbor.ILogger) error {
	rt, err := service.Load(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := server.New(rt, cfg.Server, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Printf("\nServer running on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAsk(ctx context.Context, cfg *config.AppConfig, logger arbor.ILogger, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	q := fs.String("q", "", "Question to answer")
	k := fs.Int("k", cfg.Retrieval.DefaultK, "Number of contexts to return")
	mode := fs.String("mode", cfg.Retrieval.DefaultMode, "Retrieval mode: baseline or hybrid")
	asJSON := fs.Bool("json", false, "Print the raw JSON response")
	fs.Parse(args)
	if *q == "" && fs.NArg() > 0 {
		*q = fs.Arg(0)
	}

	rt, err := service.Load(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	resp, err := rt.Ask(ctx, domain.AskRequest{Q: *q, K: *k, Mode: *mode})
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printAnswer(resp)
	return nil
}

func printAnswer(resp *domain.AnswerResponse) {
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldRed := color.New(color.FgRed, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	if resp.Abstained {
		line := "Abstained: " + resp.Reason
		if resp.Threshold != nil {
			line += " (threshold " + answer.FormatScore(*resp.Threshold) + ")"
		}
		fmt.Println(boldRed(line))
	} else if resp.Answer != nil {
		fmt.Printf("%s %s\n", boldGreen("Answer:"), *resp.Answer)
	}
	fmt.Printf("\n%s (%s)\n", boldCyan("Contexts"), resp.RerankerUsed)
	for i, c := range resp.Contexts {
		score := c.Score
		if c.FinalScore != nil {
			score = c.FinalScore
		}
		s := "-"
		if score != nil {
			s = answer.FormatScore(*score)
		}
		fmt.Printf("%d. [%s] %s (chunk %d)\n", i+1, s, c.SourceTitle, c.ChunkID)
		if c.SourceURL != nil {
			fmt.Printf("   %s\n", *c.SourceURL)
		}
	}
}

func runTUI(ctx context.Context, cfg *config.AppConfig, logger arbor.ILogger) error {
	rt, err := service.Load(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	st := rt.Stats()
	summary := fmt.Sprintf("%d chunks indexed with %s", st.Chunks, st.Embedder)
	m := tui.New(rt, summary, cfg.Retrieval.DefaultK, cfg.Retrieval.DefaultMode)
	_, err = tea.NewProgram(m, tea.WithContext(ctx)).Run()
	return err
}

func runEvaluate(ctx context.Context, cfg *config.AppConfig, logger arbor.ILogger, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	questionsPath := fs.String("questions", "questions.json", "JSON array of questions")
	out := fs.String("out", "evaluation_results.json", "Where to write the results")
	fs.Parse(args)

	questions, err := evaluate.LoadQuestions(*questionsPath)
	if err != nil {
		return err
	}
	rt, err := service.Load(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	rows, err := evaluate.New(rt, evaluate.DefaultK, logger).Run(ctx, questions)
	if err != nil {
		return err
	}
	fmt.Printf("\n## %d-Question Evaluation Results\n\n", len(rows))
	if err := evaluate.WriteMarkdown(os.Stdout, rows); err != nil {
		return err
	}
	if err := evaluate.Save(*out, rows); err != nil {
		return err
	}
	fmt.Printf("\nResults saved to %s\n", *out)
	return nil
}
