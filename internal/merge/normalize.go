// Package merge reconciles per-chunk entity records into one canonical
// entity set, using normalized name similarity with alias tracking and
// field-level merge rules.
package merge

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// variantFold maps common traditional Chinese characters to their simplified
// forms so variant spellings of one name land on the same canonical key.
var variantFold = map[rune]rune{
	'張': '张', '劉': '刘', '陳': '陈', '楊': '杨', '黃': '黄', '趙': '赵',
	'吳': '吴', '孫': '孙', '許': '许', '鄧': '邓', '馮': '冯', '韓': '韩',
	'蕭': '萧', '錢': '钱', '葉': '叶', '蘇': '苏', '盧': '卢', '羅': '罗',
	'鄭': '郑', '謝': '谢', '賴': '赖', '藍': '蓝', '馬': '马', '龍': '龙',
	'鳳': '凤', '靈': '灵', '國': '国', '豐': '丰', '傑': '杰', '雲': '云',
	'風': '风', '無': '无', '緣': '缘', '寶': '宝', '劍': '剑', '書': '书',
	'門': '门', '閣': '阁', '島': '岛', '魚': '鱼', '鳥': '鸟', '會': '会',
	'東': '东', '華': '华', '萬': '万', '億': '亿', '幾': '几', '機': '机',
	'氣': '气', '兒': '儿', '爾': '尔', '麗': '丽', '紅': '红', '綠': '绿',
	'藥': '药', '醫': '医', '學': '学', '戰': '战', '鬥': '斗', '殺': '杀',
	'聽': '听', '觀': '观', '覺': '觉', '夢': '梦', '淚': '泪', '歡': '欢',
	'樂': '乐', '愛': '爱', '憶': '忆', '懷': '怀', '舊': '旧', '歲': '岁',
	'時': '时', '間': '间', '裡': '里', '裏': '里', '後': '后', '來': '来',
	'過': '过', '還': '还', '這': '这', '說': '说', '話': '话', '習': '习',
	'慣': '惯', '師': '师', '隊': '队', '長': '长', '聖': '圣', '術': '术',
	'讓': '让', '頭': '头', '體': '体', '發': '发', '髮': '发',
}

var (
	namePrefixes = []string{"老", "小", "阿"}
	nameSuffixes = []string{"队长", "先生", "小姐", "法师", "大人", "陛下"}

	// realNameBracket captures "(本名: X)" style annotations; X is the
	// canonical name when present.
	realNameBracket = regexp.MustCompile(`[（(](?:本名|真名|原名)[:：]?\s*(.*?)[)）]`)
	anyBracket      = regexp.MustCompile(`[（(][^（()）]*[)）]`)
)

// Normalizer folds a raw name to the canonical key used for similarity
// scoring: Unicode NFKC + width folding, lower case, traditional→simplified
// variants, honorific prefix/suffix stripping, bracket resolution, and
// whitespace/punctuation removal.
type Normalizer struct {
	// mappings force specific normalized names onto a canonical key
	// (configured per book for irregular aliases).
	mappings map[string]string
}

// NewNormalizer creates a Normalizer with optional per-book name mappings.
func NewNormalizer(mappings map[string]string) *Normalizer {
	folded := make(map[string]string, len(mappings))
	for from, to := range mappings {
		folded[foldRunes(from)] = foldRunes(to)
	}
	return &Normalizer{mappings: folded}
}

// foldRunes applies NFKC, width folding, lower casing and variant folding.
func foldRunes(s string) string {
	s = norm.NFKC.String(width.Fold.String(s))
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if folded, ok := variantFold[r]; ok {
			r = folded
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Name normalizes a raw entity name to its canonical comparison key.
func (n *Normalizer) Name(raw string) string {
	s := foldRunes(raw)

	if mapped, ok := n.mappings[s]; ok {
		return mapped
	}

	// "某某（本名：X）" resolves to X.
	if m := realNameBracket.FindStringSubmatch(s); m != nil && strings.TrimSpace(m[1]) != "" {
		s = foldRunes(m[1])
	} else {
		s = anyBracket.ReplaceAllString(s, "")
	}

	for _, p := range namePrefixes {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			s = s[len(p):]
			break
		}
	}
	for _, suf := range nameSuffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			s = s[:len(s)-len(suf)]
			break
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	if out := b.String(); out != "" {
		return out
	}
	// Names made entirely of stripped characters keep their folded form.
	return s
}

var keywordSplit = regexp.MustCompile(`[\s，；、,;。.!！?？]+`)

// FeatureSet extracts a normalized keyword set from descriptive text, used
// for content similarity between records.
func (n *Normalizer) FeatureSet(texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range texts {
		for _, kw := range keywordSplit.Split(t, -1) {
			if kw = foldRunes(kw); kw != "" {
				set[kw] = struct{}{}
			}
		}
	}
	return set
}
