package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"tabletop-rules-rag/internal/config"
	"tabletop-rules-rag/internal/database"
	"tabletop-rules-rag/internal/embedding"
	"tabletop-rules-rag/internal/llm"
	applog "tabletop-rules-rag/internal/log"
	"tabletop-rules-rag/internal/models"
	"tabletop-rules-rag/internal/pipeline"
)

func main() {
	// Parse command line flags
	pgConnString := flag.String("pg", "", "PostgreSQL connection string (default uses DATABASE_URL)")
	ollamaHost := flag.String("ollama", "", "Ollama host (default uses OLLAMA_HOST env var)")
	model := flag.String("model", "", "Ollama model for answering (default uses COMPLETION_MODEL)")
	embeddingModel := flag.String("embedding-model", "", "Ollama model for embeddings (default uses EMBEDDING_MODEL)")
	gameFlag := flag.String("game", "", "Game title to answer questions about")
	queryFlag := flag.String("q", "", "Question to answer (non-interactive mode)")
	listGames := flag.Bool("list-games", false, "List the games in the library")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *pgConnString != "" {
		cfg.DatabaseURL = *pgConnString
	}
	if *ollamaHost != "" {
		cfg.OllamaHost = *ollamaHost
	}
	if *model != "" {
		cfg.CompletionModel = *model
	}
	if *embeddingModel != "" {
		cfg.EmbeddingModel = *embeddingModel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	// Connect to database
	db, err := database.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if *listGames {
		printGames(ctx, db)
		return
	}

	service, err := embedding.NewOllamaService(cfg.OllamaHost, cfg.EmbeddingModel, cfg.TaskPrefixes)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}
	embedder, err := embedding.NewAdapter(service, cfg.BatchSize, cfg.RateLimitDelay, applog.NewNop())
	if err != nil {
		log.Fatalf("Failed to create embedding adapter: %v", err)
	}

	completer, err := llm.NewOllamaCompleter(cfg.OllamaHost, cfg.CompletionModel)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	assistant := pipeline.NewAssistant(db, embedder, completer, cfg.TopK, cfg.MaxAnswerTokens, applog.NewNop())

	if *queryFlag != "" {
		if *gameFlag == "" {
			log.Fatal("A game is required in non-interactive mode. Use -game 'Catan' -q 'your question'")
		}

		answer, err := assistant.Ask(ctx, *gameFlag, *queryFlag)
		if err != nil {
			log.Fatalf("Failed to answer question: %v", err)
		}

		fmt.Println(formatAnswer(answer))
		return
	}

	runInteractiveMode(ctx, db, assistant, *gameFlag)
}

func runInteractiveMode(ctx context.Context, db *database.DB, assistant *pipeline.Assistant, game string) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Board Game Rules Assistant - Ask questions about a game's rules (type 'exit' to quit)")
	fmt.Println("Commands: /games, /game <title>, /stats")
	if game != "" {
		fmt.Printf("Answering questions about: %s\n", game)
	} else {
		fmt.Println("Pick a game first with /game <title>")
	}

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(input)
		if lower == "exit" || lower == "quit" {
			break
		}
		if input == "" {
			continue
		}

		switch {
		case lower == "/games":
			printGames(ctx, db)
			continue
		case strings.HasPrefix(lower, "/game "):
			game = strings.TrimSpace(input[len("/game "):])
			fmt.Printf("Answering questions about: %s\n", game)
			continue
		case lower == "/stats":
			stats, err := db.GetLibraryStats(ctx)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("Library: %d games, %d pages, %d chunks\n", stats.Games, stats.TotalPages, stats.TotalChunks)
			continue
		}

		if game == "" {
			fmt.Println("Pick a game first with /game <title>")
			continue
		}

		fmt.Print("Checking the rulebook... ")

		answer, err := assistant.Ask(ctx, game, input)
		if err != nil {
			fmt.Printf("\rSomething went wrong on my end: %v\n", err)
			continue
		}

		fmt.Println("\r" + formatAnswer(answer))
	}
}

func printGames(ctx context.Context, db *database.DB) {
	games, err := db.GetAllGames(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(games) == 0 {
		fmt.Println("The library is empty. Ingest some rulebooks first.")
		return
	}

	fmt.Println("Games in the library:")
	for _, game := range games {
		fmt.Printf("  %s (%d pages, %d chunks)\n", game.Title, game.TotalPages, game.TotalChunks)
	}
}

func formatAnswer(answer models.Answer) string {
	var sb strings.Builder

	sb.WriteString(answer.Text)

	if answer.Found && len(answer.SourcePages) > 0 {
		pages := make([]string, len(answer.SourcePages))
		for i, p := range answer.SourcePages {
			pages[i] = strconv.Itoa(p)
		}
		sb.WriteString("\n\nPages: " + strings.Join(pages, ", "))

		if len(answer.SourceTypes) > 0 {
			types := make([]string, len(answer.SourceTypes))
			for i, st := range answer.SourceTypes {
				types[i] = string(st)
			}
			sb.WriteString("\nSources: " + strings.Join(types, ", "))
		}
	}

	return sb.String()
}
