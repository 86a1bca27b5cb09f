package prompts

import "strings"

// DefaultAspectRatio は未知の比率が指定された場合に使われる縦長の比率です。
const DefaultAspectRatio = "4:5"

// Geometry は生成画像のピクセル寸法です。
type Geometry struct {
	Width       int
	Height      int
	AspectRatio string
}

// 64 の倍数で、1メガピクセル前後に収まる寸法です。
var geometries = map[string]Geometry{
	"1:1":  {Width: 1024, Height: 1024, AspectRatio: "1:1"},
	"4:5":  {Width: 896, Height: 1152, AspectRatio: "4:5"},
	"3:4":  {Width: 896, Height: 1152, AspectRatio: "3:4"},
	"2:3":  {Width: 832, Height: 1216, AspectRatio: "2:3"},
	"5:4":  {Width: 1152, Height: 896, AspectRatio: "5:4"},
	"4:3":  {Width: 1152, Height: 896, AspectRatio: "4:3"},
	"3:2":  {Width: 1216, Height: 832, AspectRatio: "3:2"},
	"16:9": {Width: 1344, Height: 768, AspectRatio: "16:9"},
	"9:16": {Width: 768, Height: 1344, AspectRatio: "9:16"},
}

// ResolveGeometry はアスペクト比の文字列から寸法を決定します。
// "4x5" や前後の空白も受け付け、未知の比率は DefaultAspectRatio として扱います。
func ResolveGeometry(aspectRatio string) Geometry {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(aspectRatio)), "x", ":")
	key = strings.ReplaceAll(key, " ", "")
	if g, ok := geometries[key]; ok {
		return g
	}
	return geometries[DefaultAspectRatio]
}
