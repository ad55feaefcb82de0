// Package chunk persists chunks with their embeddings in Redis/Valkey hashes,
// indexed by folder and document through sets.
package chunk

import (
	"context"
	"fmt"

	"github.com/Khogao/archi-query-master-sub000/internal/db"
	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// store is the consumer interface for chunks (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
}

// Repo is the persistent chunk store.
type Repo struct {
	store  store
	prefix string
}

// New creates a chunk repository. An empty prefix falls back to domain.KeyPrefix.
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = domain.KeyPrefix
	}
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) chunkKey(id string) string { return r.prefix + "chunk:" + id }
func (r *Repo) allKey() string { return r.prefix + "chunks" }
func (r *Repo) folderKey(id string) string { return r.prefix + "folder:" + id }
func (r *Repo) documentKey(id string) string { return r.prefix + "doc:" + id }

// SaveBulk writes chunks and their index memberships. Existing chunks with the same ID are overwritten.
func (r *Repo) SaveBulk(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(chunks))
	ids := make([]string, len(chunks))
	byFolder := make(map[string][]string)
	byDoc := make(map[string][]string)

	for i, c := range chunks {
		items[i] = db.HashSetItem{Key: r.chunkKey(c.ID), Fields: toFields(c)}
		ids[i] = c.ID
		byFolder[c.FolderID] = append(byFolder[c.FolderID], c.ID)
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c.ID)
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	if err := r.store.SAdd(ctx, r.allKey(), ids...); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	for folderID, members := range byFolder {
		if err := r.store.SAdd(ctx, r.folderKey(folderID), members...); err != nil {
			return fmt.Errorf("index folder %s: %w", folderID, err)
		}
	}
	for docID, members := range byDoc {
		if err := r.store.SAdd(ctx, r.documentKey(docID), members...); err != nil {
			return fmt.Errorf("index document %s: %w", docID, err)
		}
	}
	return nil
}

// GetAll loads every stored chunk.
func (r *Repo) GetAll(ctx context.Context) ([]domain.Chunk, error) {
	ids, err := r.store.SMembers(ctx, r.allKey())
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return r.load(ctx, ids)
}

// GetByFolder loads chunks belonging to any of folderIDs. No folders means all chunks.
func (r *Repo) GetByFolder(ctx context.Context, folderIDs []string) ([]domain.Chunk, error) {
	if len(folderIDs) == 0 {
		return r.GetAll(ctx)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, folderID := range folderIDs {
		members, err := r.store.SMembers(ctx, r.folderKey(folderID))
		if err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folderID, err)
		}
		for _, id := range members {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return r.load(ctx, ids)
}

// DeleteByDocument removes all chunks of a document. Unknown documents are a no-op.
func (r *Repo) DeleteByDocument(ctx context.Context, documentID string) error {
	ids, err := r.store.SMembers(ctx, r.documentKey(documentID))
	if err != nil {
		return fmt.Errorf("list document %s: %w", documentID, err)
	}
	chunks, err := r.load(ctx, ids)
	if err != nil {
		return err
	}

	byFolder := make(map[string][]string)
	for _, c := range chunks {
		byFolder[c.FolderID] = append(byFolder[c.FolderID], c.ID)
	}
	for folderID, members := range byFolder {
		if err := r.store.SRem(ctx, r.folderKey(folderID), members...); err != nil {
			return fmt.Errorf("unindex folder %s: %w", folderID, err)
		}
	}

	return r.drop(ctx, ids, r.documentKey(documentID))
}

// DeleteByFolder removes all chunks of a folder. Unknown folders are a no-op.
func (r *Repo) DeleteByFolder(ctx context.Context, folderID string) error {
	ids, err := r.store.SMembers(ctx, r.folderKey(folderID))
	if err != nil {
		return fmt.Errorf("list folder %s: %w", folderID, err)
	}
	chunks, err := r.load(ctx, ids)
	if err != nil {
		return err
	}

	byDoc := make(map[string][]string)
	for _, c := range chunks {
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c.ID)
	}
	for docID, members := range byDoc {
		if err := r.store.SRem(ctx, r.documentKey(docID), members...); err != nil {
			return fmt.Errorf("unindex document %s: %w", docID, err)
		}
	}

	return r.drop(ctx, ids, r.folderKey(folderID))
}

// drop deletes chunk hashes, removes them from the global set and deletes the owning index set.
func (r *Repo) drop(ctx context.Context, ids []string, indexKey string) error {
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.chunkKey(id))
	}
	keys = append(keys, indexKey)

	if err := r.store.SRem(ctx, r.allKey(), ids...); err != nil {
		return fmt.Errorf("unindex chunks: %w", err)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// load fetches chunk hashes in one round-trip. IDs whose hash is gone are skipped.
func (r *Repo) load(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.chunkKey(id)
	}

	records, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	out := make([]domain.Chunk, 0, len(records))
	for i, m := range records {
		if len(m) == 0 {
			continue
		}
		c, err := fromFields(ids[i], m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
