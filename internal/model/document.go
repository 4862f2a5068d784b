package model

const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusIndexed    = "indexed"
	DocumentStatusFailed     = "failed"
)

const (
	FormatPDF      = "pdf"
	FormatDocx     = "docx"
	FormatText     = "txt"
	FormatMarkdown = "md"
)

func IsValidFormat(format string) bool {
	switch format {
	case FormatPDF, FormatDocx, FormatText, FormatMarkdown:
		return true
	}
	return false
}

type Document struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Filename    string `json:"filename"`
	Format      string `json:"format"`
	Status      string `json:"status"`
	ErrorDetail string `json:"error_detail,omitempty"`
	ChunkCount  int    `json:"chunk_count"`
	// Generation identifies the chunk/index-entry set produced by the last
	// successful ingestion. Rows from other generations are superseded.
	Generation int64 `json:"-"`
	FileKey    string `json:"-"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}

type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Owner       string `json:"owner"`
	Ordinal     int    `json:"ordinal"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Generation  int64  `json:"-"`
	Ctime       int64  `json:"-"`
}
