package memory

import (
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// DatePolicy infers a day offset relative to today from free text.
// A return of (-1, true) means "yesterday".
type DatePolicy interface {
	Resolve(text string) (offsetDays int, ok bool)
}

// DatePolicyFunc adapts a plain function to DatePolicy.
type DatePolicyFunc func(text string) (int, bool)

func (f DatePolicyFunc) Resolve(text string) (int, bool) { return f(text) }

// NoDatePolicy never infers a date.
var NoDatePolicy = DatePolicyFunc(func(string) (int, bool) { return 0, false })

// DefaultKeywords lists the relative-day words recognized out of the box:
// English, romanized Hindi and Devanagari. The table is inherently
// incomplete; load a replacement with LoadKeywords.
func DefaultKeywords() map[int][]string {
	return map[int][]string{
		0:  {"today", "aaj", "आज"},
		-1: {"yesterday", "kal", "कल"},
		-2: {"day before yesterday", "parso", "parson", "परसों"},
	}
}

type phrase struct {
	tokens []string
	offset int
}

// KeywordPolicy matches whole words and multi-word phrases, ignoring case.
// When several phrases match, the one with the most words wins, and among
// equally long phrases the one appearing first in the text.
type KeywordPolicy struct {
	phrases []phrase
}

// NewKeywordPolicy builds a policy from an offset -> phrases table.
func NewKeywordPolicy(keywords map[int][]string) *KeywordPolicy {
	p := &KeywordPolicy{}
	for offset, words := range keywords {
		for _, w := range words {
			tokens := tokenize(w)
			if len(tokens) == 0 {
				continue
			}
			p.phrases = append(p.phrases, phrase{tokens: tokens, offset: offset})
		}
	}
	// Longest phrases first so "day before yesterday" is tried before "yesterday".
	sort.SliceStable(p.phrases, func(i, j int) bool {
		return len(p.phrases[i].tokens) > len(p.phrases[j].tokens)
	})
	return p
}

// DefaultDatePolicy returns a KeywordPolicy over DefaultKeywords.
func DefaultDatePolicy() *KeywordPolicy {
	return NewKeywordPolicy(DefaultKeywords())
}

// Resolve implements DatePolicy.
func (p *KeywordPolicy) Resolve(text string) (int, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, false
	}

	bestLen, bestPos, bestOffset := 0, len(tokens), 0
	for _, ph := range p.phrases {
		if len(ph.tokens) < bestLen {
			break
		}
		pos := indexTokens(tokens, ph.tokens)
		if pos < 0 {
			continue
		}
		if len(ph.tokens) > bestLen || pos < bestPos {
			bestLen, bestPos, bestOffset = len(ph.tokens), pos, ph.offset
		}
	}
	if bestLen == 0 {
		return 0, false
	}
	return bestOffset, true
}

type keywordFile struct {
	Keywords map[int][]string `yaml:"keywords"`
}

// LoadKeywords reads an offset -> phrases table from a YAML file:
//
//	keywords:
//	  0: [today, aaj]
//	  -1: [yesterday, kal]
//	  -2: ["day before yesterday", parso]
func LoadKeywords(path string) (map[int][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read date keyword file", goerr.V("path", path))
	}

	var file keywordFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse date keyword file", goerr.V("path", path))
	}
	if len(file.Keywords) == 0 {
		return nil, goerr.New("date keyword file has no keywords", goerr.V("path", path))
	}
	return file.Keywords, nil
}

// tokenize lowercases text and splits it into words. Letters, combining
// marks and digits belong to words, so Devanagari vowel signs stay attached.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	})
}

func indexTokens(haystack, needle []string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
