package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyStory は物語テキストが空、または空白のみの場合に返されます。
	ErrEmptyStory = errors.New("物語テキストが空です")
	// ErrComicNotFound は指定IDの漫画が存在しない場合に返されます。
	ErrComicNotFound = errors.New("漫画が見つかりません")
)

// GenerationErrorKind はコマ単位の画像生成失敗の種別です。
type GenerationErrorKind string

const (
	ModerationRejected GenerationErrorKind = "moderation_rejected"
	QuotaExceeded      GenerationErrorKind = "quota_exceeded"
	Timeout            GenerationErrorKind = "timeout"
	NetworkError       GenerationErrorKind = "network_error"
	MalformedResponse  GenerationErrorKind = "malformed_response"
	// CompressionFailed は正規化で容量上限に収まらなかったことを表し、生成失敗と同等に扱います。
	CompressionFailed GenerationErrorKind = "compression_failed"
)

// Retryable は同一パラメータでの再試行が許される種別かを返します。
// 一時的な通信障害とタイムアウトのみが対象です。
func (k GenerationErrorKind) Retryable() bool {
	return k == Timeout || k == NetworkError
}

// GenerationError はコマ単位に閉じた画像生成エラーです。兄弟コマの処理を中断させません。
type GenerationError struct {
	Kind  GenerationErrorKind
	Cause error
}

// NewGenerationError は GenerationError を生成します。
func NewGenerationError(kind GenerationErrorKind, cause error) *GenerationError {
	return &GenerationError{Kind: kind, Cause: cause}
}

func (e *GenerationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("画像生成に失敗しました (%s)", e.Kind)
	}
	return fmt.Sprintf("画像生成に失敗しました (%s): %v", e.Kind, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Is は種別が一致する GenerationError を同一とみなします。
func (e *GenerationError) Is(target error) bool {
	t, ok := target.(*GenerationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// CompressionError は正規化後も容量上限を満たせなかったことを表します。
type CompressionError struct {
	Size    int // 最小品質での最終サイズ（デコード失敗時は入力サイズ）
	Ceiling int
	Cause   error
}

func (e *CompressionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("画像の正規化に失敗しました: %v", e.Cause)
	}
	return fmt.Sprintf("画像を上限 %d バイト以下に圧縮できませんでした (最小 %d バイト)", e.Ceiling, e.Size)
}

func (e *CompressionError) Unwrap() error {
	return e.Cause
}

// PersistenceError は組み立て済みの漫画を保存できなかったことを表します。
// 作成処理全体を失敗させる唯一のエラーです。
type PersistenceError struct {
	ComicID string
	Cause   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("漫画 %s の保存に失敗しました: %v", e.ComicID, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
