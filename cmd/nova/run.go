package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/nova/internal/agent"
	"github.com/szaher/nova/internal/config"
	"github.com/szaher/nova/internal/iteration"
	"github.com/szaher/nova/internal/llm"
	"github.com/szaher/nova/internal/nova"
	"github.com/szaher/nova/internal/session"
	"github.com/szaher/nova/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	var (
		model    string
		provider string
		stream   bool
		parallel bool
		asJSON   bool
		dump     bool
	)

	cmd := &cobra.Command{
		Use:   "run <problem>",
		Short: "Run a problem statement through all five stages",
		Long:  "One-shot iteration: create a session, run every stage in order, print the iteration record.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Provider.Model = model
			}
			if provider != "" {
				cfg.Provider.Kind = provider
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Engine.ParallelExperts = parallel
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level, err := telemetry.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			logger := telemetry.NewLogger(os.Stderr, level, cfg.Log.Format,
				cfg.Provider.APIKey, os.Getenv("OPENAI_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"))

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			ctx = telemetry.WithCorrelationID(ctx, correlationID)

			out := cmd.OutOrStdout()
			metrics := telemetry.NewMetrics()
			if dump {
				defer func() {
					if err := metrics.WriteText(cmd.ErrOrStderr()); err != nil {
						logger.Warn("writing metrics failed", "error", err)
					}
				}()
			}
			opts := []nova.Option{
				nova.WithAgentConfig(func(role agent.Role) agent.Config { return cfg.AgentConfig(role, nil) }),
				nova.WithParallelExperts(cfg.Engine.ParallelExperts),
				nova.WithMaxExperts(cfg.Engine.MaxExperts),
				nova.WithMaxTokens(cfg.Provider.MaxOutputTokens, cfg.Engine.SummaryMaxTokens),
				nova.WithLogger(logger),
				nova.WithMetrics(metrics),
				nova.WithTracer(telemetry.NewTracer(telemetry.LogExporter(logger))),
			}
			if cfg.Engine.ExpertFilter != "" {
				filter, err := nova.CompileExpertFilter(cfg.Engine.ExpertFilter)
				if err != nil {
					return err
				}
				opts = append(opts, nova.WithExpertFilter(filter))
			}
			if stream {
				opts = append(opts, nova.WithObserver(streamPrinter(out)))
			}

			store := session.NewMemoryStore(0)
			sess, err := store.CreateSession(ctx, "")
			if err != nil {
				return err
			}
			engine := nova.NewEngine(store, llm.New(cfg.ProviderSettings()), opts...)

			it, err := engine.Run(ctx, sess.ID, strings.Join(args, " "))
			if err != nil {
				if it != nil {
					fmt.Fprintf(os.Stderr, "iteration %s stopped after %d of %d stages\n",
						it.ID, len(it.Stages), len(iteration.Stages))
				}
				return fmt.Errorf("iteration failed: %w", err)
			}

			switch {
			case asJSON:
				data, err := json.MarshalIndent(it, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			case stream:
				fmt.Fprintln(out)
			default:
				renderIteration(out, it)
			}

			if verbose && it.Usage != nil {
				fmt.Fprintf(os.Stderr, "\ntokens: %d in, %d out\n", it.Usage.InputTokens, it.Usage.OutputTokens)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model, e.g. gpt-4o-mini, ollama/llama3.2, claude-sonnet-4-20250514")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider backend (openai, ollama, anthropic)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream agent output as it is generated")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Consult domain experts concurrently")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the iteration record as JSON")
	cmd.Flags().BoolVar(&dump, "metrics", false, "Write Prometheus metrics to stderr when the run ends")

	return cmd
}

// streamPrinter writes stage banners and agent deltas to w.
func streamPrinter(w io.Writer) nova.StageObserver {
	var mu sync.Mutex
	lastAgent := ""
	return func(ev nova.StageEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case nova.EventStageStarted:
			fmt.Fprintf(w, "\n== %s ==\n", ev.Stage)
			lastAgent = ""
		case nova.EventAgentDelta:
			if ev.Agent != lastAgent {
				fmt.Fprintf(w, "\n[%s]\n", ev.Agent)
				lastAgent = ev.Agent
			}
			fmt.Fprint(w, ev.Text)
		case nova.EventStageFailed:
			fmt.Fprintf(w, "\n!! %s failed: %v\n", ev.Stage, ev.Err)
		}
	}
}

// renderIteration prints a completed iteration as readable text.
func renderIteration(w io.Writer, it *iteration.Iteration) {
	fmt.Fprintf(w, "Problem: %s\n", it.ProblemStatement)
	for _, s := range it.Stages.Completed() {
		fmt.Fprintf(w, "\n== %s ==\n", s)
		switch s {
		case iteration.ExpertiseAssembly:
			fmt.Fprintf(w, "Required experts: %s\n", strings.Join(it.RequiredExperts, ", "))
		case iteration.CollaborativeIdeation:
			fmt.Fprintln(w, it.ExpertiseContributions.Render())
		case iteration.SummaryAndNextSteps:
			fmt.Fprintf(w, "%s\n\nNext steps:\n%s\n", deref(it.Summary), deref(it.NextSteps))
		default:
			fmt.Fprintln(w, it.Text(s))
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
