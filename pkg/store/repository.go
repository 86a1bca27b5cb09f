package store

import (
	"context"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// DefaultListLimit は一覧で返す漫画の最大件数です。
const DefaultListLimit = 100

// ComicRepository は完成した漫画の永続化を担うゲートウェイです。
// Save はコマを含めた漫画全体を1つの単位として保存し、部分的な書き込みを残しません。
type ComicRepository interface {
	Save(ctx context.Context, comic *domain.Comic) (string, error)
	List(ctx context.Context) ([]domain.ComicSummary, error)
	Get(ctx context.Context, id string) (*domain.Comic, error)
	Delete(ctx context.Context, id string) error
}

// CharacterRepository は名前からキャラクターを解決します。
// 未登録の名前は nil を返し、エラーにはしません。
type CharacterRepository interface {
	Lookup(ctx context.Context, name string) (*domain.Character, error)
	Names() []string
}

// ReferenceLoader は参照画像のパスまたは URL から画像データを取得します。
type ReferenceLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}
