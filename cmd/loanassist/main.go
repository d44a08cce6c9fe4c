package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/tmc/langchaingo/llms"

	"github.com/abclabs/loanassist/internal/types"
	"github.com/abclabs/loanassist/pkg/chat"
	cfgPkg "github.com/abclabs/loanassist/pkg/config"
	"github.com/abclabs/loanassist/pkg/llm"
	"github.com/abclabs/loanassist/pkg/loader"
	"github.com/abclabs/loanassist/pkg/memory"
	"github.com/abclabs/loanassist/pkg/processor"
	"github.com/abclabs/loanassist/pkg/retriever"
	"github.com/abclabs/loanassist/pkg/scraper"
	"github.com/abclabs/loanassist/pkg/store"
	"github.com/abclabs/loanassist/server"
)

// Rough per-exchange token estimate used for the usage readout.
const (
	tokensPerTurn = 500
	tokenBudget   = 100000
)

type flags struct {
	configPath string
	scrape     bool
	ingest     bool
	serve      bool
}

func main() {
	_ = godotenv.Load()

	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.BoolVar(&f.scrape, "scrape", false, "Harvest loan aggregator sites into the data directory")
	flag.BoolVar(&f.ingest, "ingest", false, "Load, chunk, embed and index the data directory")
	flag.BoolVar(&f.serve, "serve", false, "Run the WebSocket chat server instead of the CLI loop")
	flag.Parse()

	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		log.Fatal(err)
	}

	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		os.Exit(1)
	}

	if err := run(f, config); err != nil {
		log.Fatal(err)
	}
}

func run(f flags, config *cfgPkg.Config) error {
	ctx := context.Background()

	if f.scrape {
		if err := runScrape(ctx, config); err != nil {
			return err
		}
		if !f.ingest {
			return nil
		}
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   config.Embedder.Model,
		BaseURL: config.Embedder.BaseURL,
		Timeout: time.Duration(config.Embedder.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	index, err := openIndex(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to open vector index: %v", err)
	}
	defer index.Close()

	if f.ingest {
		return runIngest(ctx, config, embedder, index)
	}

	model, err := llm.NewChatModel(llm.ModelConfig{
		BaseURL: config.LLM.BaseURL,
		Model:   config.LLM.Model,
		APIKey:  config.LLM.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat model: %v", err)
	}

	ret := retriever.NewWithConfig(embedder, index, retriever.Config{
		TopK: config.Retriever.TopK,
	})

	engineConfig := chat.EngineConfig{
		SystemTemplate:       config.Chat.SystemTemplate,
		ContextTemplate:      config.Chat.ContextTemplate,
		Temperature:          config.LLM.Temperature,
		MaxTokens:            config.LLM.MaxTokens,
		Timeout:              time.Duration(config.LLM.TimeoutSeconds) * time.Second,
		HistoryLimit:         config.Chat.HistoryLimit,
		AnswerWithoutContext: *config.Chat.AnswerWithoutContext,
	}

	if f.serve {
		return server.New(ret, model, engineConfig).Run(config.Server.Port)
	}

	return chatLoop(ctx, ret, model, engineConfig)
}

func openIndex(ctx context.Context, config *cfgPkg.Config) (types.VectorIndex, error) {
	switch config.Index.Backend {
	case "pgvector":
		return store.NewPGVectorIndex(ctx, store.PGVectorConfig{
			ConnString: config.Index.URL,
			TableName:  config.Index.TableName,
			VectorDim:  config.Embedder.VectorDim,
		})
	default:
		return store.NewLocalIndex(store.LocalIndexConfig{
			Dir:       config.Index.Dir,
			VectorDim: config.Embedder.VectorDim,
		})
	}
}

func runScrape(ctx context.Context, config *cfgPkg.Config) error {
	color.Blue("\nHarvesting %d loan aggregator sites\n", len(config.Scraper.Sources))

	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		Sources:    config.Scraper.Sources,
		Keywords:   config.Scraper.Keywords,
		RateLimit:  config.Scraper.RateLimit,
		MaxRetries: config.Scraper.MaxRetries,
		OnProgress: func(url string) {
			color.Blue("Scraping: %s", url)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %v", err)
	}

	docs, err := s.Harvest(ctx)
	if err != nil {
		return fmt.Errorf("failed to harvest sources: %v", err)
	}
	if len(docs) == 0 {
		color.Red("No data extracted from any source")
		return nil
	}

	if err := scraper.SaveDocuments(docs, config.Ingest.DataDir); err != nil {
		return err
	}

	color.Green("✓ Saved %d documents to %s\n", len(docs), config.Ingest.DataDir)
	return nil
}

func runIngest(ctx context.Context, config *cfgPkg.Config, embedder types.Embedder, index types.VectorIndex) error {
	color.Blue("\nIngesting %s/%s\n", config.Ingest.DataDir, config.Ingest.Glob)

	docs, warnings := loader.New().Load(config.Ingest.DataDir, config.Ingest.Glob)
	for _, w := range warnings {
		log.Printf("ingest: %v", w)
	}
	// The scraper writes plain text next to any hand-placed PDFs; pick
	// those up too when the glob only names PDFs.
	if config.Ingest.Glob == "*.pdf" {
		txtDocs, txtWarnings := loader.New().Load(config.Ingest.DataDir, "*.txt")
		for _, w := range txtWarnings {
			log.Printf("ingest: %v", w)
		}
		docs = append(docs, txtDocs...)
	}

	if len(docs) == 0 {
		color.Yellow("No documents found, nothing to ingest")
		return nil
	}
	color.Green("✓ Loaded %d documents\n", len(docs))

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    config.Ingest.ChunkSize,
		ChunkOverlap: config.Ingest.ChunkOverlap,
		Separators:   config.Ingest.Separators,
	})

	chunks, err := proc.Process(docs)
	if err != nil {
		return fmt.Errorf("failed to process documents: %v", err)
	}
	color.Green("✓ Split into %d chunks\n", len(chunks))

	bar := getProgressBar(len(chunks), "Embedding and indexing...")
	batchSize := config.Index.BatchSize

	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Text
		}

		vectors, err := embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch: %v", err)
		}
		if err := index.Upsert(ctx, batch, vectors); err != nil {
			return fmt.Errorf("failed to store batch: %v", err)
		}
		bar.Add(len(batch))
	}
	bar.Finish()

	color.Green("\n✓ Documents vectorized\n")
	return nil
}

func chatLoop(ctx context.Context, ret types.Retriever, model llms.Model, engineConfig chat.EngineConfig) error {
	engine, err := chat.NewEngine(ret, model, memory.NewBuffer(), engineConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	color.Cyan("\nPersonal Loan Assistant — ask away (type 'exit' to quit, 'clear' to reset)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "clear":
			engine.Memory().Clear()
			color.Yellow("History cleared")
			continue
		}

		spinner := getSpinner("Thinking...")
		result, err := engine.Answer(ctx, question)
		spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Sorry, I could not answer that: %v\n", err)
			continue
		}

		assistantPrompt("Assistant: %s\n", result.Text)

		if len(result.Chunks) > 0 {
			sources := make(map[string]bool)
			for _, chunk := range result.Chunks {
				sources[chunk.Source] = true
			}
			var list []string
			for src := range sources {
				list = append(list, src)
			}
			color.White("Sources: %s", strings.Join(list, ", "))
		}

		turns := engine.Memory().Len()
		used := turns * tokensPerTurn
		if used > tokenBudget {
			used = tokenBudget
		}
		color.White("Turns: %d | Estimated token usage: %d / %d", turns, used, tokenBudget)
	}

	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
