package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"uniconnect/internal/config"
	"uniconnect/internal/embedding"
	"uniconnect/internal/engine"
	"uniconnect/internal/helper"
	"uniconnect/internal/index"
	"uniconnect/internal/llmservice"
	"uniconnect/internal/models"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to a document file to ingest")
	dirPath := flag.String("dir", "", "Path to a folder of documents to ingest")
	query := flag.String("query", "", "Question to be answered")
	session := flag.String("session", "", "Conversation session id (new one generated if empty)")
	user := flag.String("user", "", "User name for the upload capability check")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *filePath == "" && *dirPath == "" && *query == "" {
		log.Fatal().Msg("Provide a document with -file or -dir, or a question with -query")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	ctx := context.Background()
	eng, auth := buildEngine(ctx, cfg)

	if *filePath != "" || *dirPath != "" {
		if !auth.CanUpload(*user) {
			log.Fatal().Err(models.ErrUploadNotAllowed).Str("user", *user).Msg("Upload refused")
		}
		ingest(ctx, eng, *filePath, *dirPath)
	}

	if *query != "" {
		ask(ctx, eng, *session, *query)
	}
}

func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, engine.Authorizer) {
	store, err := index.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating index")
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	embedClient := embedding.NewClient(embedder, cfg.Index.Dimension, cfg.Retry)

	completer, err := llmservice.NewClient(&cfg.CompleteLLM, cfg.Retry)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing completion client")
	}

	eng, err := engine.New(ctx, cfg, store, embedClient, completer)
	if err != nil {
		log.Fatal().Err(err).Msg("Error starting engine")
	}
	return eng, engine.NewAllowList(cfg.AllowedUploaders)
}

func ingest(ctx context.Context, eng *engine.Engine, filePath, dirPath string) {
	stats, err := func() (models.IndexStats, error) {
		if filePath != "" {
			return eng.Ingest(ctx, filePath)
		}
		return eng.IngestDir(ctx, dirPath)
	}()
	if err != nil {
		log.Fatal().Err(err).Msg("Error ingesting documents")
	}
	log.Info().Int("added", stats.ChunksAdded).Int("skipped", stats.ChunksSkipped).Msg("Ingest complete")
}

func ask(ctx context.Context, eng *engine.Engine, session, query string) {
	if session == "" {
		id, err := helper.NewSessionID()
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating session")
		}
		session = id
		log.Info().Str("session", session).Msg("Started new conversation session")
	}

	answer, err := eng.Ask(ctx, session, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering question")
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		helper.PrettyPrint(answer)
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for i, c := range answer.Citations {
		fmt.Printf("Source %d: %s (page %d)\n%s\n\n", i+1, c.SourceDocument, c.PageNumber, c.Snippet)
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", answer.Text)
}
