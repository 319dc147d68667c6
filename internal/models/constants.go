package models

const (
	ContextSeparator = "\n\n---\n\n"
	PreviewEllipsis  = "..."

	// payload keys, shared with LangChain-written Qdrant collections
	PayloadContentKey  = "page_content"
	PayloadMetadataKey = "metadata"

	MetaSource      = "source"
	MetaChunkID     = "chunk_id"
	MetaTotalChunks = "total_chunks"
	MetaDocumentID  = "document_id"
)

var (
	SystemPrompt = `You are a helpful assistant that answers questions about uploaded PDF documents.
Use only the provided context to answer. If the context does not contain the answer, say that you don't know.`

	QueryPromptTemplate = `Use the following pieces of context to answer the question at the end.

<context>
%s
</context>

Question: %s
Helpful Answer:`
)
