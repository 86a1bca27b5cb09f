package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// FileCharacterRepository は JSON ファイルで定義されたキャラクターを提供します。
// 参照画像は Lookup 時に遅延ロードされます。
type FileCharacterRepository struct {
	chars   domain.CharactersMap
	baseDir string
	loader  ReferenceLoader
}

// NewCharacterRepository は定義済みのキャラクターマップからリポジトリを生成します。
func NewCharacterRepository(chars domain.CharactersMap, loader ReferenceLoader) *FileCharacterRepository {
	if chars == nil {
		chars = domain.CharactersMap{}
	}
	return &FileCharacterRepository{chars: chars, loader: loader}
}

// LoadCharacterFile はキャラクター定義ファイルを読み込みます。
// 相対パスの reference_url はファイルの置かれたディレクトリを基準に解決されます。
func LoadCharacterFile(path string, loader ReferenceLoader) (*FileCharacterRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("キャラクター定義ファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	chars, err := domain.GetCharacters(data)
	if err != nil {
		return nil, err
	}
	repo := NewCharacterRepository(chars, loader)
	repo.baseDir = filepath.Dir(path)
	return repo, nil
}

// Lookup は名前の大文字小文字を区別せずにキャラクターを返します。
// 参照画像の取得に失敗した場合は警告を記録し、画像なしのキャラクターを返します。
func (r *FileCharacterRepository) Lookup(ctx context.Context, name string) (*domain.Character, error) {
	char := r.chars.Find(name)
	if char == nil {
		return nil, nil
	}
	if char.ReferenceURL == "" || r.loader == nil || char.HasReference() {
		return char, nil
	}

	data, err := r.loader.Load(ctx, r.resolveRef(char.ReferenceURL))
	if err != nil {
		slog.WarnContext(ctx, "参照画像を読み込めなかったため、参照なしで続行します",
			"character", char.Name, "reference_url", char.ReferenceURL, "error", err)
		return char, nil
	}
	char.ReferenceImage = data
	return char, nil
}

// Names は登録済みキャラクター名を昇順で返します。
func (r *FileCharacterRepository) Names() []string {
	names := r.chars.Names()
	sort.Strings(names)
	return names
}

func (r *FileCharacterRepository) resolveRef(ref string) string {
	if r.baseDir == "" || strings.Contains(ref, "://") || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(r.baseDir, ref)
}
