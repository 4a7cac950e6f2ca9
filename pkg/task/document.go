package task

// DocumentType names the file family a Document holds. Decoding Content into
// extracted text is the job of an external TaskExecutor, never this package.
type DocumentType string

const (
	DocumentPDF      DocumentType = "pdf"
	DocumentWord     DocumentType = "word"
	DocumentHTML     DocumentType = "html"
	DocumentMarkdown DocumentType = "markdown"
	DocumentText     DocumentType = "text"
)

// Document is the inline-payload variant of Task.Payload for
// DocumentProcessing tasks (spec §3's "opaque bytes + format tag, or inline
// Document").
type Document struct {
	ID        string       `json:"id"`
	Path      string       `json:"path,omitempty"`
	DocType   DocumentType `json:"doc_type"`
	SizeBytes int64        `json:"size_bytes"`
	Content   []byte       `json:"content,omitempty"`
}
