// Package index stores searchable user documents.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	searchDto "anoa.com/drawsocial/internal/modules/search/dto"
	"github.com/meilisearch/meilisearch-go"
)

const UsersIndex = "users"

type UserIndex interface {
	Upsert(ctx context.Context, docs []searchDto.UserDoc) error
	Search(ctx context.Context, query string, limit int) ([]searchDto.UserDoc, error)
}

type meiliIndex struct {
	client meilisearch.ServiceManager
}

// NewMeiliIndex configures the users index. Settings failures are returned
// but leave a usable index.
func NewMeiliIndex(client meilisearch.ServiceManager) (UserIndex, error) {
	idx := &meiliIndex{client: client}

	searchable := []string{"handle", "display_name", "full_name"}
	if _, err := client.Index(UsersIndex).UpdateSearchableAttributes(&searchable); err != nil {
		return idx, fmt.Errorf("update users searchable attributes: %w", err)
	}
	return idx, nil
}

func (m *meiliIndex) Upsert(ctx context.Context, docs []searchDto.UserDoc) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := m.client.Index(UsersIndex).AddDocumentsWithContext(ctx, docs, strPtr("id")); err != nil {
		return fmt.Errorf("index users: %w", err)
	}
	return nil
}

func (m *meiliIndex) Search(ctx context.Context, query string, limit int) ([]searchDto.UserDoc, error) {
	resp, err := m.client.Index(UsersIndex).SearchWithContext(ctx, query, &meilisearch.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	raw, err := json.Marshal(resp.Hits)
	if err != nil {
		return nil, err
	}
	var docs []searchDto.UserDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode user hits: %w", err)
	}
	return docs, nil
}

func strPtr(s string) *string {
	return &s
}

// MemoryIndex matches case-insensitive substrings of handle and names. Used
// when no search host is configured.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]searchDto.UserDoc
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]searchDto.UserDoc)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, docs []searchDto.UserDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.docs[doc.ID] = doc
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, query string, limit int) ([]searchDto.UserDoc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))

	m.mu.RLock()
	var hits []searchDto.UserDoc
	for _, doc := range m.docs {
		text := strings.ToLower(doc.Handle + " " + doc.DisplayName + " " + doc.FullName)
		if strings.Contains(text, q) {
			hits = append(hits, doc)
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
