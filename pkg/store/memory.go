package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// MemoryComicStore はプロセス内に漫画を保持する ComicRepository の実装です。
// 保存・取得のたびにディープコピーするため、呼び出し側の変更は保存済みデータに影響しません。
type MemoryComicStore struct {
	mu     sync.RWMutex
	comics map[string]*domain.Comic
}

func NewMemoryComicStore() *MemoryComicStore {
	return &MemoryComicStore{comics: make(map[string]*domain.Comic)}
}

func (s *MemoryComicStore) Save(ctx context.Context, comic *domain.Comic) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if comic == nil || comic.ID == "" {
		return "", errors.New("保存する漫画に ID がありません")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comics[comic.ID] = comic.Clone()
	return comic.ID, nil
}

func (s *MemoryComicStore) List(ctx context.Context) ([]domain.ComicSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.ComicSummary, 0, len(s.comics))
	for _, c := range s.comics {
		summaries = append(summaries, c.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	if len(summaries) > DefaultListLimit {
		summaries = summaries[:DefaultListLimit]
	}
	return summaries, nil
}

func (s *MemoryComicStore) Get(ctx context.Context, id string) (*domain.Comic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comics[id]
	if !ok {
		return nil, domain.ErrComicNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryComicStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comics[id]; !ok {
		return domain.ErrComicNotFound
	}
	delete(s.comics, id)
	return nil
}
