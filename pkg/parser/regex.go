package parser

import "regexp"

var (
	// ParagraphRegex は空行で区切られた段落の境界にマッチします。
	ParagraphRegex = regexp.MustCompile(`\n\s*\n`)

	// QuoteRegex はストレート・カーリー両方の引用符で囲まれたセリフをキャプチャします。
	QuoteRegex = regexp.MustCompile(`"([^"]*)"|“([^”]*)”`)

	// SpaceRegex は連続する空白文字にマッチします。
	SpaceRegex = regexp.MustCompile(`\s+`)
)

// nameRegex は単語境界を考慮して名前に大文字小文字を区別せずマッチする正規表現を生成します。
// \b は ASCII 前提のため、Unicode の文字・数字以外を境界として扱います。
func nameRegex(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(name) + `(?:$|[^\p{L}\p{N}])`)
}
