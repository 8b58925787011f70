package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/agenthands/argus/internal/config"
	"github.com/agenthands/argus/internal/core"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/ingest"
	"github.com/agenthands/argus/internal/llm"
	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/logger/console"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	snapshots  []string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "argusctl",
		Short:        "Query a knowledge graph snapshot from the command line",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(console.New(console.Params{Debug: opts.debug, Prefix: "argusctl", Output: cmd.ErrOrStderr()}))
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Path to the TOML configuration file")
	root.PersistentFlags().StringSliceVarP(&opts.snapshots, "snapshot", "s", nil, "JSONL batch file to load (repeatable)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	_ = root.MarkPersistentFlagRequired("snapshot")

	root.AddCommand(newQueryCmd(opts))
	root.AddCommand(newRecomputeCmd(opts))
	return root
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var asJSON, noEmbed bool
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a natural-language question with ranked, cited findings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := loadEngine(ctx, opts, !noEmbed)
			if err != nil {
				return err
			}
			if err := engine.Refresh(ctx); err != nil {
				return err
			}
			resp, err := engine.Answer(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "Skip the embedding provider and rank without the semantic signal")
	return cmd
}

func newRecomputeCmd(opts *rootOptions) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute importance and communities and print the most important entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := loadEngine(ctx, opts, false)
			if err != nil {
				return err
			}
			if err := engine.Refresh(ctx); err != nil {
				return err
			}
			printScores(cmd.OutOrStdout(), engine, top)
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 20, "Number of entities to print (0 prints all)")
	return cmd
}

func loadEngine(ctx context.Context, opts *rootOptions, withEmbedder bool) (*core.Engine, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var embedder llm.Embedder
	if withEmbedder {
		_, embedder, err = llm.NewClient(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
	}
	engine, err := core.NewEngine(cfg.EngineOptions(), embedder)
	if err != nil {
		return nil, err
	}

	for _, path := range opts.snapshots {
		if err := applySnapshot(ctx, engine, path); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func applySnapshot(ctx context.Context, engine *core.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	batch, err := ingest.DecodeLines(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	res, err := engine.Apply(ctx, batch)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("snapshot loaded", "path", path, "entities", res.Entities, "relationships", res.Relationships, "skipped", res.Skipped)
	return nil
}

func printResponse(w io.Writer, resp *model.QueryResponse) {
	fmt.Fprintf(w, "query %s (%s)\n", resp.ID, resp.Intent)
	if resp.Narrative != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Narrative)
	}
	fmt.Fprintln(w)
	for _, item := range resp.Items {
		fmt.Fprintf(w, "%2d. %.3f  %-28s %s\n", item.Rank, item.Score, item.Ref, item.Label)
		fmt.Fprintf(w, "      %s\n", item.Explanation)
		for _, ev := range item.Evidence {
			fmt.Fprintf(w, "      [%s %d-%d] %q\n", ev.DocumentID, ev.SpanStart, ev.SpanEnd, ev.Excerpt)
		}
	}
	if len(resp.Items) == 0 {
		fmt.Fprintln(w, "no findings")
	}
	for _, warn := range resp.Warnings {
		fmt.Fprintf(w, "warning %s: %s\n", warn.Code, warn.Message)
	}
}

func printScores(w io.Writer, engine *core.Engine, top int) {
	stats := engine.Stats()
	fmt.Fprintf(w, "graph version %d: %d entities, %d relationships\n",
		stats.Graph.Version, stats.Graph.Entities, stats.Graph.Relationships)

	scores, _, ok := engine.Scores.Snapshot()
	if !ok {
		fmt.Fprintln(w, "no scores")
		return
	}
	list := make([]model.StructuralScore, 0, len(scores))
	for _, s := range scores {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Importance != list[j].Importance {
			return list[i].Importance > list[j].Importance
		}
		return list[i].EntityID < list[j].EntityID
	})
	if top > 0 && len(list) > top {
		list = list[:top]
	}
	for i, s := range list {
		name := s.EntityID
		if ent, ok := engine.Index.Entity(s.EntityID); ok {
			name = ent.Name
		}
		fmt.Fprintf(w, "%3d. %.4f  community %-3d %s (%s)\n", i+1, s.Importance, s.Community, name, s.EntityID)
	}
}
