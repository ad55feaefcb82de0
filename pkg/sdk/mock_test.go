package archiquery

import (
	"context"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	healthuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/health"
	ingestuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/ingest"
)

// --- ragUseCase mock ---

type mockRAG struct {
	queryFn  func(ctx context.Context, q domain.Query) domain.Response
	streamFn func(ctx context.Context, q domain.Query, onChunk func(domain.StreamChunk)) domain.Response
}

func (m *mockRAG) Query(ctx context.Context, q domain.Query) domain.Response {
	return m.queryFn(ctx, q)
}

func (m *mockRAG) QueryStream(
	ctx context.Context, q domain.Query, onChunk func(domain.StreamChunk),
) domain.Response {
	return m.streamFn(ctx, q, onChunk)
}

// --- ingestUseCase mock ---

type mockIngest struct {
	ingestFn       func(ctx context.Context, doc domain.Document) (ingestuc.Result, error)
	ingestFileFn   func(ctx context.Context, path, folderID string) (ingestuc.Result, error)
	deleteDocFn    func(ctx context.Context, id string) error
	deleteFolderFn func(ctx context.Context, id string) error
}

func (m *mockIngest) Ingest(ctx context.Context, doc domain.Document) (ingestuc.Result, error) {
	return m.ingestFn(ctx, doc)
}

func (m *mockIngest) IngestFile(ctx context.Context, path, folderID string) (ingestuc.Result, error) {
	return m.ingestFileFn(ctx, path, folderID)
}

func (m *mockIngest) DeleteDocument(ctx context.Context, id string) error {
	return m.deleteDocFn(ctx, id)
}

func (m *mockIngest) DeleteFolder(ctx context.Context, id string) error {
	return m.deleteFolderFn(ctx, id)
}

// --- healthUseCase mock ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- Embedder mocks ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockBatchEmbedder struct {
	mockEmbedder
	batchFn func(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

func (m *mockBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	return m.batchFn(ctx, texts)
}

// --- helpers ---

func testClient(rag ragUseCase, ingest ingestUseCase, health healthUseCase) *Client {
	return &Client{
		ragSvc:    rag,
		ingestSvc: ingest,
		healthSvc: health,
	}
}
