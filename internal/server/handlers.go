package server

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/parser"
	"pdf-rag/internal/rag"
)

const notReady = "Service not ready. Please wait for initialization."

func (s *Server) Register(router fiber.Router) {
	router.Get("/", s.Root)
	router.Get("/health", s.Health)
	router.Post("/upload-pdf", s.UploadPDF)
	router.Post("/query", s.Query)
	router.Get("/documents", s.ListDocuments)
	router.Delete("/documents", s.ClearDocuments)
}

func (s *Server) Root(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "RAG PDF Analyzer API",
		"version": Version,
		"endpoints": fiber.Map{
			"upload":    "/upload-pdf",
			"query":     "/query",
			"documents": "/documents",
			"health":    "/health",
		},
	})
}

func (s *Server) Health(c fiber.Ctx) error {
	st := s.state.Load()
	switch {
	case st == nil:
		return c.JSON(fiber.Map{"status": "initializing", "qdrant_connected": false, "documents_stored": 0})
	case st.err != nil:
		return c.JSON(fiber.Map{"status": "unhealthy", "qdrant_connected": false, "documents_stored": 0, "error": st.err.Error()})
	}

	health, err := st.pipeline.Health(c.Context())
	if err != nil {
		return c.JSON(fiber.Map{"status": "unhealthy", "qdrant_connected": false, "documents_stored": 0, "error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"status":           "healthy",
		"qdrant_connected": health.Connected,
		"documents_stored": health.DocumentsStored,
	})
}

// UploadPDF ingests the multipart field "file".
func (s *Server) UploadPDF(c fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "A PDF file must be sent in the 'file' field")
	}
	if !parser.IsPDFName(fh.Filename) {
		return fiber.NewError(fiber.StatusBadRequest, "Only PDF files are allowed")
	}

	p := s.pipeline()
	if p == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, notReady)
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	res, err := p.ProcessPDF(c.Context(), fh.Filename, content)
	switch {
	case errors.Is(err, parser.ErrEmptyText), errors.Is(err, parser.ErrUnreadablePDF):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case err != nil:
		log.Error().Err(err).Str("filename", fh.Filename).Msg("Error processing PDF")
		return fiber.NewError(fiber.StatusInternalServerError, "Error processing PDF")
	}

	return c.JSON(fiber.Map{
		"message":        "Successfully processed " + res.Filename,
		"filename":       res.Filename,
		"chunks_created": res.ChunksCreated,
		"success":        true,
	})
}

type queryRequest struct {
	Question  string `json:"question"`
	MaxChunks int    `json:"max_chunks"`
	Format    string `json:"format"`
}

func (s *Server) Query(c fiber.Ctx) error {
	p := s.pipeline()
	if p == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, notReady)
	}

	var body queryRequest
	if err := c.Bind().JSON(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	answer, err := p.Query(c.Context(), body.Question, rag.QueryOptions{
		MaxChunks: body.MaxChunks,
		HTML:      body.Format == "html",
	})
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		log.Error().Err(err).Msg("Error querying documents")
		return fiber.NewError(fiber.StatusInternalServerError, "Error querying documents")
	}
	return c.JSON(answer)
}

func (s *Server) ListDocuments(c fiber.Ctx) error {
	p := s.pipeline()
	if p == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, notReady)
	}

	info, err := p.Documents(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("Error listing documents")
		return fiber.NewError(fiber.StatusInternalServerError, "Error listing documents")
	}
	return c.JSON(fiber.Map{
		"documents":       info.Documents,
		"total_chunks":    info.TotalChunks,
		"collection_name": info.CollectionName,
	})
}

func (s *Server) ClearDocuments(c fiber.Ctx) error {
	p := s.pipeline()
	if p == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, notReady)
	}

	if err := p.Clear(c.Context()); err != nil {
		log.Error().Err(err).Msg("Error clearing documents")
		return fiber.NewError(fiber.StatusInternalServerError, "Error clearing documents")
	}
	return c.JSON(fiber.Map{
		"message":   "All documents cleared successfully",
		"documents": []string{},
	})
}
