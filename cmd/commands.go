package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/server"
)

const shutdownTimeout = 10 * time.Second

func createServeCommand(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg)
			srv.Start(ctx, func(ctx context.Context) (server.Pipeline, func() error, error) {
				r, closer, err := rag.NewFromConfig(ctx, cfg)
				if err != nil {
					return nil, nil, err
				}
				return r, closer, nil
			})

			errc := make(chan error, 1)
			go func() { errc <- srv.Listen() }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func createIngestCommand(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Extract, embed and store one or more PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, closeRAG, err := rag.NewFromConfig(ctx, getConfig())
			if err != nil {
				return err
			}
			defer closeRAG()

			bar := getProgressBar(len(args), "Ingesting")
			var failed []string
			total := 0
			for _, path := range args {
				n, err := ingestFile(ctx, r, path)
				_ = bar.Add(1)
				if err != nil {
					log.Error().Err(err).Str("file", path).Msg("Error ingesting file")
					failed = append(failed, path)
					continue
				}
				total += n
			}
			_ = bar.Finish()

			color.Green("\nStored %d chunks from %d file(s)\n", total, len(args)-len(failed))
			if len(failed) > 0 {
				color.Red("Failed: %s\n", strings.Join(failed, ", "))
				return fmt.Errorf("%d of %d files failed", len(failed), len(args))
			}
			return nil
		},
	}
}

func ingestFile(ctx context.Context, r *rag.RAG, path string) (int, error) {
	name := filepath.Base(path)
	if !parser.IsPDFName(name) {
		return 0, errors.New("only PDF files are allowed")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	res, err := r.ProcessPDF(ctx, name, content)
	if err != nil {
		return 0, err
	}
	return res.ChunksCreated, nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func createAskCommand(getConfig func() *config.Config) *cobra.Command {
	var (
		maxChunks   int
		showSources bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the stored documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, closeRAG, err := rag.NewFromConfig(ctx, getConfig())
			if err != nil {
				return err
			}
			defer closeRAG()

			question := strings.Join(args, " ")
			answer, err := r.Query(ctx, question, rag.QueryOptions{MaxChunks: maxChunks})
			if err != nil {
				return err
			}

			color.Cyan("Question:")
			fmt.Printf("%s\n\n", question)
			color.Green("Answer:")
			fmt.Printf("%s\n\n", answer.Answer)

			if showSources {
				color.Yellow("Sources:")
				for _, src := range answer.Sources {
					fmt.Printf("- %s (chunk %d): %s\n", src.Source, src.ChunkID, src.ContentPreview)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxChunks, "max-chunks", "k", 3, "Number of chunks to retrieve")
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the retrieved sources")
	return cmd
}

func createDocumentsCommand(getConfig func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect or clear the stored documents",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested filenames and the collection size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, closeRAG, err := rag.NewFromConfig(ctx, getConfig())
			if err != nil {
				return err
			}
			defer closeRAG()

			info, err := r.Documents(ctx)
			if err != nil {
				return err
			}
			helper.PrettyPrint(os.Stdout, map[string]any{
				"documents":       info.Documents,
				"total_chunks":    info.TotalChunks,
				"collection_name": info.CollectionName,
				"from_cache":      info.FromCache,
			})
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every chunk and forget every filename",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			ctx := cmd.Context()
			r, closeRAG, err := rag.NewFromConfig(ctx, getConfig())
			if err != nil {
				return err
			}
			defer closeRAG()

			if err := r.Clear(ctx); err != nil {
				return err
			}
			color.Green("All documents cleared from %s\n", r.CollectionName())
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deleting all documents")

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}
