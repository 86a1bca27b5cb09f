package domain

// GenerationRequest は1コマ分の画像生成要求です。パネルの試行ごとに生成され、使い捨てです。
type GenerationRequest struct {
	PanelIndex     int
	PositivePrompt string
	NegativePrompt string
	Width          int
	Height         int
	// AspectRatio は Width/Height の元になった比率で、比率指定型のモデル向けです。
	AspectRatio   string
	GuidanceScale float32
	Steps         int
	Seed          int64

	// ReferenceImage が nil の場合、ReferenceStrength も nil です。
	ReferenceImage    []byte
	ReferenceStrength *float32
}

// HasReference は参照画像付きの要求かを返します。
func (r GenerationRequest) HasReference() bool {
	return len(r.ReferenceImage) > 0
}

// PanelResult は1コマ分の生成結果です。
// 成功時は Image、失敗時は Err のどちらか一方だけが設定されます。
// 画像生成自体を要求されなかったコマは Skipped が true で、どちらも設定されません。
type PanelResult struct {
	Index    int
	Image    []byte
	MimeType string
	Err      *GenerationError
	Skipped  bool
}

// Succeeded は画像の取得に成功したかを返します。
func (r PanelResult) Succeeded() bool {
	return r.Err == nil && !r.Skipped && len(r.Image) > 0
}

// FailedResult は失敗結果を生成します。
func FailedResult(index int, err *GenerationError) PanelResult {
	return PanelResult{Index: index, Err: err}
}

// SkippedResult は画像生成を行わなかったコマの結果を生成します。
func SkippedResult(index int) PanelResult {
	return PanelResult{Index: index, Skipped: true}
}
