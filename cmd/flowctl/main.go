// Command flowctl loads a graph definition and runs it to completion,
// printing its verdict and, with --trace, the lifecycle events along the
// way. --metrics-addr serves Prometheus metrics for the duration of the run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/codec"
	"github.com/dshills/flowmesh/graph/emit"
	"github.com/dshills/flowmesh/graph/eval"
	"github.com/dshills/flowmesh/graph/store"
	"github.com/dshills/flowmesh/graph/vertex"
	"github.com/dshills/flowmesh/graph/vertex/httptask"
	"github.com/dshills/flowmesh/graph/vertex/llm"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowctl",
		Short: "Run and validate workflow graph definitions",
	}
	cmd.AddCommand(runCmd(), validateCmd())
	return cmd
}

func loadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c := codec.ForExtension(filepath.Ext(path))
	if c == nil {
		return nil, fmt.Errorf("no codec for extension of %q (want .json, .yaml, or .yml)", path)
	}
	g, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return g, nil
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph-file>",
		Short: "Parse and validate a graph definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: valid, %d vertices, %d edges, entry %v\n", g.ID, len(g.Vertices), len(g.Edges), g.EntryVertices())
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var (
		inputJSON   string
		trace       bool
		metricsAddr string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <graph-file>",
		Short: "Run a graph definition to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}

			initial := graph.Bag{}
			if inputJSON != "" {
				if err := json.Unmarshal([]byte(inputJSON), &initial); err != nil {
					return fmt.Errorf("parse --input: %w", err)
				}
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync()

			var emitter graph.Emitter = emit.NewLogEmitter(logger)
			if trace {
				emitter = emit.NewBroadcaster(emitter, &traceEmitter{})
			}

			var metrics *graph.PrometheusMetrics
			var httpSrv *http.Server
			if metricsAddr != "" {
				registry := prometheus.NewRegistry()
				metrics = graph.NewPrometheusMetrics(registry)
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				httpSrv = &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics server", zap.Error(err))
					}
				}()
				defer httpSrv.Shutdown(context.Background())
			}

			evaluator := eval.NewJQEvaluator()
			loader := vertex.NewGraphLoader()
			var eng *graph.Engine
			factory := vertex.NewBuiltinFactory(evaluator, func() *graph.Engine { return eng }, loader)
			factory.Register(graph.KindLLM, llm.NewFactory(evaluator, llm.NewResolver()))
			factory.Register(graph.KindHTTPTask, httptask.NewFactory(evaluator))

			opts := []graph.Option{
				graph.WithEvaluator(evaluator),
				graph.WithCheckpointStore(store.NewMemStore()),
				graph.WithFactory(factory),
				graph.WithEmitter(emitter),
			}
			if metrics != nil {
				opts = append(opts, graph.WithMetrics(metrics))
			}
			if timeout > 0 {
				opts = append(opts, graph.WithRunWallClockBudget(timeout))
			}

			e, err := graph.New(opts...)
			if err != nil {
				return fmt.Errorf("construct engine: %w", err)
			}
			eng = e

			handle, err := eng.Run(context.Background(), g, initial)
			if err != nil {
				return fmt.Errorf("start run: %w", err)
			}

			verdict := handle.Wait()

			fmt.Printf("status: %s\n", verdict.Status)
			if verdict.Err != nil {
				fmt.Printf("error: %v\n", verdict.Err)
			}
			out, _ := json.MarshalIndent(verdict.Global, "", "  ")
			fmt.Printf("globals:\n%s\n", out)
			if len(verdict.DeadLetters) > 0 {
				fmt.Printf("dead letters: %d\n", len(verdict.DeadLetters))
				for _, d := range verdict.DeadLetters {
					fmt.Printf("  %s: %s\n", d.VertexID, d.Reason)
				}
			}

			if verdict.Status == graph.StatusFailed {
				return fmt.Errorf("run failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputJSON, "input", "", "JSON object seeding the run's initial global bag")
	cmd.Flags().BoolVar(&trace, "trace", false, "print every lifecycle event to stdout as it happens")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics at this address for the run's duration (e.g. :9090)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wall-clock budget for the run (0 = engine default)")

	return cmd
}

// traceEmitter prints every event to stdout; used by --trace alongside the
// structured zap log.
type traceEmitter struct{}

func (traceEmitter) Emit(e emit.Event) {
	fmt.Printf("[%s] run=%s vertex=%s %v\n", e.Kind, e.RunID, e.VertexID, e.Meta)
}

func (traceEmitter) EmitBatch(_ context.Context, events []emit.Event) error {
	for _, e := range events {
		traceEmitter{}.Emit(e)
	}
	return nil
}

func (traceEmitter) Flush(context.Context) error { return nil }
