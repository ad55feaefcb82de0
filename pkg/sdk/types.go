package archiquery

// Document is raw text to index. An empty ID gets a generated one; reusing an ID
// replaces the previous chunks of that document.
type Document struct {
	ID       string
	Name     string
	FolderID string
	Text     string
}

// IngestResult summarizes one indexed document.
type IngestResult struct {
	DocumentID string
	Chunks     int
}

// Query is one question. Zero TopK and nil Threshold use the client defaults;
// an empty Provider uses the current one.
type Query struct {
	Text      string
	Folders   []string
	TopK      int
	Threshold *float64
	Provider  string
}

// Source is a chunk the answer was built from. Index matches the [n] markers
// of the prompt context.
type Source struct {
	Index        int
	DocumentID   string
	DocumentName string
	Content      string
	Similarity   float64
}

// Answer is the outcome of a question.
type Answer struct {
	Answer     string
	Sources    []Source
	Provider   string
	Model      string
	TokensUsed int
	Duration   int64 // milliseconds
}
