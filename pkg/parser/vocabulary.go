package parser

// DefaultMood は感情語が見つからなかったコマのムードです。
const DefaultMood = "neutral"

// moodStem は感情語の語幹とムードラベルの対応です。
type moodStem struct {
	stem  string
	label string
}

// moodVocabulary は出現順に照合される感情語の一覧です。
// 4文字以上の語幹は前方一致、それ未満は完全一致で照合します。
var moodVocabulary = []moodStem{
	{"happ", "joyful"}, {"joy", "joyful"}, {"joyful", "joyful"}, {"laugh", "joyful"}, {"smil", "joyful"}, {"delight", "joyful"},
	{"sad", "melancholic"}, {"sadly", "melancholic"}, {"sadness", "melancholic"}, {"cry", "melancholic"}, {"cried", "melancholic"},
	{"crying", "melancholic"}, {"tears", "melancholic"}, {"tearful", "melancholic"}, {"sorrow", "melancholic"}, {"lonel", "melancholic"},
	{"afraid", "tense"}, {"fear", "tense"}, {"feared", "tense"}, {"fearful", "tense"}, {"scared", "tense"}, {"trembl", "tense"},
	{"terrif", "tense"}, {"frighten", "tense"}, {"nervous", "tense"},
	{"angry", "angry"}, {"anger", "angry"}, {"furious", "angry"}, {"rage", "angry"},
	{"wonder", "wondrous"}, {"amaz", "wondrous"}, {"marvel", "wondrous"}, {"awe", "wondrous"}, {"glow", "wondrous"}, {"magic", "wondrous"},
	{"calm", "serene"}, {"peace", "serene"}, {"quiet", "serene"}, {"gentle", "serene"},
	{"myster", "mysterious"}, {"secret", "mysterious"}, {"strange", "mysterious"}, {"shadow", "mysterious"}, {"whisper", "mysterious"},
	{"love", "tender"}, {"hug", "tender"}, {"hugged", "tender"}, {"embrac", "tender"},
	{"excit", "excited"}, {"thrill", "excited"},
}

// matches は語が語幹に一致するかを判定します。
func (m moodStem) matches(word string) bool {
	if len(m.stem) >= 4 {
		return len(word) >= len(m.stem) && word[:len(m.stem)] == m.stem
	}
	return word == m.stem
}

// actionVerbs は動作・発話を表す動詞です。キャラクター名または代名詞の直後に現れると動作句とみなします。
var actionVerbs = map[string]struct{}{
	"found": {}, "finds": {}, "find": {}, "ran": {}, "runs": {}, "run": {}, "walked": {}, "walks": {},
	"held": {}, "holds": {}, "reached": {}, "reaches": {}, "turned": {}, "turns": {}, "looked": {},
	"looks": {}, "stood": {}, "stands": {}, "sat": {}, "sits": {}, "jumped": {}, "jumps": {},
	"grabbed": {}, "grabs": {}, "opened": {}, "opens": {}, "raised": {}, "raises": {}, "lifted": {},
	"lifts": {}, "pointed": {}, "points": {}, "knelt": {}, "kneels": {}, "danced": {}, "dances": {},
	"climbed": {}, "climbs": {}, "fell": {}, "falls": {}, "threw": {}, "throws": {}, "caught": {},
	"catches": {}, "took": {}, "takes": {}, "gave": {}, "gives": {}, "lit": {}, "lights": {},
	"drew": {}, "draws": {}, "hugged": {}, "hugs": {}, "smiled": {}, "smiles": {}, "laughed": {},
	"laughs": {}, "cried": {}, "cries": {}, "gasped": {}, "gasps": {}, "whispered": {}, "whispers": {},
	"said": {}, "says": {}, "asked": {}, "asks": {}, "shouted": {}, "shouts": {}, "called": {},
	"calls": {}, "replied": {}, "replies": {}, "exclaimed": {}, "murmured": {}, "discovered": {},
	"discovers": {}, "unlocked": {}, "unlocks": {}, "touched": {}, "touches": {}, "carried": {},
	"carries": {}, "followed": {}, "follows": {}, "entered": {}, "enters": {}, "spun": {}, "spins": {},
	"waved": {}, "waves": {}, "nodded": {}, "nods": {},
}

// speechVerbs は発話の帰属（"she said" など）を表す動詞です。
var speechVerbs = map[string]struct{}{
	"said": {}, "says": {}, "asked": {}, "asks": {}, "shouted": {}, "shouts": {}, "whispered": {},
	"whispers": {}, "replied": {}, "replies": {}, "called": {}, "calls": {}, "exclaimed": {},
	"murmured": {}, "cried": {}, "cries": {},
}

// pronouns は直前に言及されたキャラクターへ解決される主語代名詞です。
var pronouns = map[string]struct{}{
	"she": {}, "he": {}, "they": {},
}

// clauseConjunctions は節の区切りとして分割に使う接続詞です。
var clauseConjunctions = map[string]struct{}{
	"and": {}, "but": {}, "then": {}, "while": {}, "as": {}, "so": {},
}

// abbreviations は文末判定から除外する略語です。
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "st": {}, "prof": {}, "mt": {},
}

// maxActionWords は1つの動作句に含める最大語数です。
const maxActionWords = 8
