package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/llmservice"
	"docqa/internal/parser"
	"docqa/internal/rag"
)

const configFilePath = "./configs/config.yaml"

var (
	flagConfig string
	flagDocs   []string
	flagTopK   int
)

var rootCmd = &cobra.Command{
	Use:           "docqa",
	Short:         "Ask questions about your documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", configFilePath, "path to the YAML or TOML config file")
	rootCmd.PersistentFlags().StringSliceVarP(&flagDocs, "doc", "d", nil, "document to ingest before running (repeatable)")
	rootCmd.PersistentFlags().IntVarP(&flagTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")

	rootCmd.AddCommand(searchCmd, askCmd, chatCmd, statsCmd)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// session is the per-process wiring shared by every command.
type session struct {
	cfg   *config.Config
	index *rag.Index
	llm   *llmservice.Client
}

func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Log.Level)
	log.Debug().Str("backend", cfg.Backend.Type).Bool("embeddings", cfg.Embedding.Enabled).Msg("Loaded config")

	provider, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	index, err := rag.NewFromConfig(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, index: index}
	for _, path := range flagDocs {
		if err := s.ingestFile(ctx, path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) ingestFile(ctx context.Context, path string) error {
	text, err := parser.ExtractText(path)
	if err != nil {
		return err
	}
	res, err := s.index.Ingest(ctx, text, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("upload %s rejected: %w", filepath.Base(path), err)
	}
	log.Info().Str("file", path).Int("chunks", res.ChunkCount).Msg("Document loaded")
	return nil
}

func (s *session) answerer() (*llmservice.Client, error) {
	if s.llm != nil {
		return s.llm, nil
	}
	c, err := llmservice.New(s.cfg.InferenceLLM)
	if err != nil {
		return nil, err
	}
	s.llm = c
	return c, nil
}
