// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/healthrag"
	"github.com/poiesic/healthrag/ai"
	"github.com/poiesic/healthrag/ai/openai"
	"github.com/poiesic/healthrag/core"
	"github.com/poiesic/healthrag/embedding"
	"github.com/poiesic/healthrag/expand"
	"github.com/poiesic/healthrag/fusion"
	"github.com/poiesic/healthrag/index"
	"github.com/poiesic/healthrag/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "healthrag",
		Usage: "Medical retrieval and answer fusion over document chunks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Embed document chunks from a JSON file and persist the index",
				ArgsUsage: "<chunks.json>",
				Action:    indexCommand,
				Flags: append(embeddingFlags(),
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB index directory",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "dimension",
						Usage: "Embedding dimension for a new index",
						Value: index.DefaultDimension,
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Search the persisted index",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(embeddingFlags(),
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB index directory",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "top",
						Aliases: []string{"k"},
						Usage:   "Number of results to return",
						Value:   5,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score for retrieval",
						Value: 0.1,
					},
				),
			},
			{
				Name:      "expand",
				Usage:     "Show the expansion for a query without searching",
				ArgsUsage: "<query>",
				Action:    expandCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "age-group",
						Usage: "User age group for expansion (pediatric, adult, geriatric)",
					},
					&cli.IntFlag{
						Name:  "max-expansions",
						Usage: "Maximum number of expansion terms",
						Value: expand.DefaultMaxExpansions,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question using retrieval and model fusion",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: append(embeddingFlags(),
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB index directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "completion-host",
						Usage: "Completion service host URL",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringSliceFlag{
						Name:     "model",
						Aliases:  []string{"m"},
						Usage:    "Completion model name (repeat for an ensemble)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Fusion strategy (weighted_average, majority_vote, best_confidence)",
						Value: string(fusion.StrategyWeightedAverage),
					},
					&cli.DurationFlag{
						Name:  "model-timeout",
						Usage: "Per-model completion timeout",
						Value: fusion.DefaultTimeout,
					},
					&cli.IntFlag{
						Name:    "top",
						Aliases: []string{"k"},
						Usage:   "Number of context passages to retrieve",
						Value:   5,
					},
				),
			},
			{
				Name:   "stats",
				Usage:  "Print statistics for the persisted index",
				Action: statsCommand,
				Flags: append(embeddingFlags(),
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB index directory",
						Required: true,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// embeddingFlags are shared by every command that needs an embedder.
func embeddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringSliceFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name (repeat for a weighted ensemble)",
			Value: cli.NewStringSlice("embeddinggemma"),
		},
		&cli.Float64SliceFlag{
			Name:  "embedding-weight",
			Usage: "Ensemble weight per embedding model (must sum to 1; omit for equal weights)",
		},
	}
}

// chunkInput is the JSON shape accepted by the index command. Embeddings are
// computed at index time, never read from the file.
type chunkInput struct {
	Text       string            `json:"text"`
	Source     string            `json:"source"`
	ChunkIndex int               `json:"chunk_index"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func indexCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one chunks file argument")
	}
	chunks, err := readChunks(c.Args().First())
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks found in %s", c.Args().First())
	}

	svc, err := newService(c, nil, healthrag.WithDimension(c.Int("dimension")))
	if err != nil {
		return err
	}
	defer svc.Close()

	dataPath := c.String("data")
	if err := loadIfPresent(ctx, svc, dataPath); err != nil {
		return err
	}

	ids, err := svc.Index(ctx, chunks)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if err := svc.Save(ctx, dataPath); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %d of %d chunks into %s\n", len(ids), len(chunks), dataPath)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}

	svc, err := newService(c, nil, healthrag.WithThreshold(c.Float64("threshold")))
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Load(ctx, c.String("data")); err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	results, err := svc.Search(ctx, query, c.Int("top"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: '%s' (%d)[%0.3f]\n", i, hit.Content, hit.DocumentId, hit.CombinedScore)
		for _, match := range hit.SemanticMatches {
			fmt.Printf("   %s\n", match)
		}
	}
	return nil
}

func expandCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}

	expander, err := expand.NewExpander(expand.WithMaxExpansions(c.Int("max-expansions")))
	if err != nil {
		return err
	}

	var uctx *expand.Context
	if age := c.String("age-group"); age != "" {
		uctx = &expand.Context{AgeGroup: age}
	}

	expansion := expander.Expand(query, uctx)
	fmt.Printf("Original:  %s\n", expansion.OriginalQuery)
	fmt.Printf("Final:     %s\n", expansion.FinalQuery)
	fmt.Printf("Expanded:  %s\n", strings.Join(expansion.ExpandedTerms, ", "))
	fmt.Printf("Synonyms:  %s\n", strings.Join(expansion.MedicalSynonyms, ", "))
	fmt.Printf("Contextual: %s\n", strings.Join(expansion.ContextualTerms, ", "))
	return nil
}

func askCommand(c *cli.Context) error {
	ctx := context.Background()

	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("question is required")
	}

	models := c.StringSlice("model")
	completers := make([]ai.Completer, 0, len(models))
	for _, model := range models {
		cfg := ai.NewConfig(
			// Embedding settings are unused by completers but must validate.
			ai.WithEmbeddingHost(c.String("embedding-host")),
			ai.WithEmbeddingModel("unused"),
			ai.WithCompletionHost(c.String("completion-host")),
			ai.WithCompletionModel(model),
		)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid AI configuration for %s: %w", model, err)
		}
		completer, err := openai.NewCompleter(cfg)
		if err != nil {
			return fmt.Errorf("failed to create completer for %s: %w", model, err)
		}
		completers = append(completers, completer)
	}

	svc, err := newService(c, completers,
		healthrag.WithFusionStrategy(fusion.Strategy(c.String("strategy"))),
		healthrag.WithModelTimeout(c.Duration("model-timeout")),
	)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Load(ctx, c.String("data")); err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	started := time.Now()
	fused, results, err := svc.Answer(ctx, question, c.Int("top"))
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	fmt.Printf("%s\n\n", fused.FinalResponse)
	fmt.Printf("Confidence: %0.3f  Strategy: %s  Models: %d  Passages: %d  (%s)\n",
		fused.ConfidenceScore, fused.Strategy, len(fused.ModelResponses),
		len(results), time.Since(started).Round(time.Millisecond))
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()

	svc, err := newService(c, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Load(ctx, c.String("data")); err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	stats := svc.Stats()
	fmt.Printf("Documents:      %v\n", stats["total_documents"])
	fmt.Printf("Dimension:      %v\n", stats["dimension"])
	fmt.Printf("Variant:        %v\n", stats["variant"])
	fmt.Printf("Ranker trained: %v\n", stats["ranker_trained"])
	return nil
}

// newService builds a Service backed by an OpenAI-compatible embedder
// configured from the shared embedding flags. More than one embedding model
// yields a weighted fusion ensemble.
func newService(c *cli.Context, completers []ai.Completer, opts ...healthrag.Option) (*healthrag.Service, error) {
	embedder, err := newEmbedder(c)
	if err != nil {
		return nil, err
	}

	svc, err := healthrag.New(embedder, completers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}

func newEmbedder(c *cli.Context) (ai.Embedder, error) {
	models := c.StringSlice("embedding-model")
	providers := make([]ai.Embedder, 0, len(models))
	for _, model := range models {
		cfg := ai.NewConfig(
			ai.WithEmbeddingHost(c.String("embedding-host")),
			ai.WithEmbeddingModel(model),
		)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid AI configuration for %s: %w", model, err)
		}
		provider, err := openai.NewEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder for %s: %w", model, err)
		}
		providers = append(providers, provider)
	}
	if len(providers) == 1 {
		return providers[0], nil
	}

	var weights []float64
	if c.IsSet("embedding-weight") {
		weights = c.Float64Slice("embedding-weight")
	}
	fused, err := embedding.NewFusion(providers, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding ensemble: %w", err)
	}
	return fused, nil
}

// loadIfPresent loads an existing index so new chunks append to it. A store
// with no manifest is treated as a fresh index.
func loadIfPresent(ctx context.Context, svc *healthrag.Service, path string) error {
	err := svc.Load(ctx, path)
	if err == nil {
		return nil
	}
	var loadErr *core.LoadError
	if errors.As(err, &loadErr) && errors.Is(loadErr.Err, storage.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("failed to load existing index: %w", err)
}

func readChunks(path string) ([]core.DocumentChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks file: %w", err)
	}

	var inputs []chunkInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("failed to parse chunks file: %w", err)
	}

	chunks := make([]core.DocumentChunk, len(inputs))
	for i, in := range inputs {
		chunks[i] = core.DocumentChunk{
			Text:       in.Text,
			Source:     in.Source,
			ChunkIndex: in.ChunkIndex,
			Metadata:   in.Metadata,
		}
	}
	return chunks, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
