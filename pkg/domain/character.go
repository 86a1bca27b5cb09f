package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Character は物語に登場するキャラクターの定義を保持します。
// ReferenceImage は参照画像の実データで、ReferenceURL から遅延ロードされます。
type Character struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	VisualCues     []string `json:"visual_cues"`   // 生成プロンプトに注入する外見上の特徴
	ReferenceURL   string   `json:"reference_url"` // 参照写真のパスまたはURL
	ReferenceImage []byte   `json:"-"`
}

// CharactersMap は小文字化した名前をキーとしたキャラクターの検索用マップです。
type CharactersMap map[string]Character

// String はキャラクターの情報を文字列で返すのだ。
func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}

// HasReference は参照画像のバイト列を保持しているかを返します。
func (c Character) HasReference() bool {
	return len(c.ReferenceImage) > 0
}

// NormalizeName は名前検索用のキーを生成します。
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// BuildCharactersMap はスライス形式のデータを名前で引けるマップに変換するのだ。
// Name が空の場合は ID をキーにします。
func BuildCharactersMap(chars []Character) CharactersMap {
	m := make(CharactersMap, len(chars))
	for _, c := range chars {
		key := c.Name
		if key == "" {
			key = c.ID
		}
		m[NormalizeName(key)] = c
	}
	return m
}

// Find は名前の大文字小文字を区別せずにキャラクターを検索します。
// 見つからない場合は nil を返し、エラーにはしません。
func (m CharactersMap) Find(name string) *Character {
	if m == nil {
		return nil
	}
	if char, ok := m[NormalizeName(name)]; ok {
		res := char
		return &res
	}
	return nil
}

// Names は登録済みキャラクターの表示名を返します。順序は呼び出し側でソートしてください。
func (m CharactersMap) Names() []string {
	names := make([]string, 0, len(m))
	for key, c := range m {
		if c.Name != "" {
			names = append(names, c.Name)
			continue
		}
		names = append(names, key)
	}
	return names
}

// GetCharacters はJSONバイト列からキャラクターマップをパースして返します。
// 配列形式とオブジェクト形式（キーは任意）の両方を受け付けます。
func GetCharacters(charactersJSON []byte) (CharactersMap, error) {
	var list []Character
	if err := json.Unmarshal(charactersJSON, &list); err == nil {
		return BuildCharactersMap(list), nil
	}

	var keyed map[string]Character
	if err := json.Unmarshal(charactersJSON, &keyed); err != nil {
		return nil, fmt.Errorf("キャラクター情報のJSONパースに失敗しました: %w", err)
	}
	list = make([]Character, 0, len(keyed))
	for key, c := range keyed {
		if c.Name == "" && c.ID == "" {
			c.ID = key
		}
		list = append(list, c)
	}
	return BuildCharactersMap(list), nil
}
