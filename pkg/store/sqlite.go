package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// SQLiteComicStore は SQLite に漫画を保存する ComicRepository の実装です。
type SQLiteComicStore struct {
	db *sql.DB
}

// OpenSQLite はデータベースファイルを開き、スキーマを最新化します。
func OpenSQLite(path string) (*SQLiteComicStore, error) {
	if path == "" {
		return nil, errors.New("データベースのパスが指定されていません")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("データベースのディレクトリ作成に失敗しました: %w", err)
		}
	}

	migrationDB, err := openSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(migrationDB); err != nil {
		migrationDB.Close()
		return nil, err
	}

	db, err := openSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("SQLite ストアを開きました", "path", path)
	return &SQLiteComicStore{db: db}, nil
}

func openSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗しました: %w", err)
	}
	// 書き込みは単一接続に直列化する
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s の設定に失敗しました: %w", pragma, err)
		}
	}
	return db, nil
}

// Close はデータベース接続を閉じます。
func (s *SQLiteComicStore) Close() error {
	return s.db.Close()
}

// Save は漫画とすべてのコマを1つのトランザクションで書き込みます。同じ ID の既存データは置き換えます。
func (s *SQLiteComicStore) Save(ctx context.Context, comic *domain.Comic) (string, error) {
	if comic == nil || comic.ID == "" {
		return "", errors.New("保存する漫画に ID がありません")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comic_panels WHERE comic_id = ?`, comic.ID); err != nil {
		return "", fmt.Errorf("既存コマの削除に失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO comics (id, title, style, aspect_ratio, story_text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		comic.ID, comic.Title, comic.Style, comic.AspectRatio, comic.StoryText, comic.CreatedAt.UnixNano(),
	); err != nil {
		return "", fmt.Errorf("漫画の書き込みに失敗しました: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO comic_panels (comic_id, panel_index, scene, dialogue, character_actions, mood, image, image_mime_type, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("コマ書き込み文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, p := range comic.Panels {
		if _, err := stmt.ExecContext(ctx,
			comic.ID, p.Index, p.Scene, p.Dialogue, nullString(p.CharacterActions), nullString(p.Mood),
			nullBytes(p.Image), p.ImageMimeType, p.Error,
		); err != nil {
			return "", fmt.Errorf("コマ %d の書き込みに失敗しました: %w", p.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return comic.ID, nil
}

// List は新しい順に最大 DefaultListLimit 件の要約を返します。
func (s *SQLiteComicStore) List(ctx context.Context) ([]domain.ComicSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.style, c.aspect_ratio, c.created_at,
		       COUNT(p.panel_index),
		       COALESCE(SUM(CASE WHEN p.image IS NOT NULL AND length(p.image) > 0 THEN 1 ELSE 0 END), 0)
		FROM comics c
		LEFT JOIN comic_panels p ON p.comic_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at DESC, c.id
		LIMIT ?`, DefaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("漫画一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	summaries := []domain.ComicSummary{}
	for rows.Next() {
		var (
			s       domain.ComicSummary
			created int64
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.Style, &s.AspectRatio, &created, &s.PanelCount, &s.ImageCount); err != nil {
			return nil, fmt.Errorf("漫画一覧の読み取りに失敗しました: %w", err)
		}
		s.CreatedAt = time.Unix(0, created).UTC()
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Get は ID に対応する漫画をすべてのコマとともに返します。
func (s *SQLiteComicStore) Get(ctx context.Context, id string) (*domain.Comic, error) {
	var (
		c       domain.Comic
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, style, aspect_ratio, story_text, created_at FROM comics WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Style, &c.AspectRatio, &c.StoryText, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrComicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("漫画 %s の取得に失敗しました: %w", id, err)
	}
	c.CreatedAt = time.Unix(0, created).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT panel_index, scene, dialogue, character_actions, mood, image, image_mime_type, error
		 FROM comic_panels WHERE comic_id = ? ORDER BY panel_index`, id)
	if err != nil {
		return nil, fmt.Errorf("漫画 %s のコマ取得に失敗しました: %w", id, err)
	}
	defer rows.Close()

	c.Panels = []domain.ComicPanel{}
	for rows.Next() {
		var (
			p       domain.ComicPanel
			actions sql.NullString
			mood    sql.NullString
		)
		if err := rows.Scan(&p.Index, &p.Scene, &p.Dialogue, &actions, &mood, &p.Image, &p.ImageMimeType, &p.Error); err != nil {
			return nil, fmt.Errorf("コマの読み取りに失敗しました: %w", err)
		}
		if actions.Valid {
			p.CharacterActions = domain.Ptr(actions.String)
		}
		if mood.Valid {
			p.Mood = domain.Ptr(mood.String)
		}
		if len(p.Image) == 0 {
			p.Image = nil
		}
		c.Panels = append(c.Panels, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete は漫画とそのコマを削除します。
func (s *SQLiteComicStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comic_panels WHERE comic_id = ?`, id); err != nil {
		return fmt.Errorf("コマの削除に失敗しました: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM comics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("漫画の削除に失敗しました: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrComicNotFound
	}
	return tx.Commit()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
