package models

// Chunk is a slice of a document's extracted text plus the metadata stored with its vector.
type Chunk struct {
	Content     string
	Source      string
	ChunkID     int
	TotalChunks int
	DocumentID  string
}

// Source is a retrieved chunk as reported back to the caller.
type Source struct {
	Source         string `json:"source"`
	ChunkID        int    `json:"chunk_id"`
	ContentPreview string `json:"content_preview"`
	FullContent    string `json:"full_content"`
}

type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	AnswerHTML string   `json:"answer_html,omitempty"`
}

type UploadResult struct {
	Filename      string
	ChunksCreated int
}

type DocumentsInfo struct {
	Documents      []string
	TotalChunks    int
	CollectionName string
	// FromCache is set when the durable ledger could not be read.
	FromCache bool
}

type Health struct {
	Connected       bool
	DocumentsStored int
}
