package lexicon

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
)

// Lexicon stores the cell's keyword vocabulary:
// - Synonyms: different words with the same meaning (torque ↔ moment)
// - Patterns: keywords that name a canonical pattern id (crash → PAT_COLLISION)
// - Temporal: words that ask about the past (recently, yesterday, how often)
// - Categories: keyword groups for error categories (safety ↔ protective stop)
//
// Matching is case-insensitive and phrase-aware: "protective stop" matches
// only as two consecutive words. A phrase also matches when text and phrase
// agree after synonyms are reduced to their canonical form, so "moment
// limit" matches "torque limit".
type Lexicon struct {
	// canonical -> all variants (including canonical itself)
	synonyms map[string][]string

	// variant -> canonical
	reverseIndex map[string]string

	// longest variant, in words
	maxVariant int

	// pattern id -> keywords
	patterns map[string][]string

	// error category -> variants (including the category name)
	categories map[string][]string

	temporal []string
}

// New creates an empty lexicon.
func New() *Lexicon {
	return &Lexicon{
		synonyms:     make(map[string][]string),
		reverseIndex: make(map[string]string),
		patterns:     make(map[string][]string),
		categories:   make(map[string][]string),
	}
}

type document struct {
	Synonyms []struct {
		Canonical string   `yaml:"canonical"`
		Variants  []string `yaml:"variants"`
	} `yaml:"synonyms"`
	Patterns []struct {
		ID       string   `yaml:"id"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"patterns"`
	Temporal   []string `yaml:"temporal"`
	Categories []struct {
		Name     string   `yaml:"name"`
		Variants []string `yaml:"variants"`
	} `yaml:"categories"`
}

// LoadFromYAML loads a lexicon from a YAML file.
//
// Expected format:
//
//	synonyms:
//	  - canonical: torque
//	    variants: [moment, twisting force]
//	patterns:
//	  - id: PAT_COLLISION
//	    keywords: [collision, crash, impact]
//	temporal: [recently, yesterday, how often]
//	categories:
//	  - name: safety
//	    variants: [protective stop, e-stop]
func LoadFromYAML(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load lexicon %s: %w", path, err)
	}
	lex, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lex, nil
}

// Parse builds a lexicon from a YAML document.
func Parse(data []byte) (*Lexicon, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w: %w", internalerr.ErrInvalidConfig, err)
	}

	lex := New()
	for _, entry := range doc.Synonyms {
		lex.AddSynonymGroup(entry.Canonical, entry.Variants)
	}
	for _, p := range doc.Patterns {
		if p.ID == "" {
			return nil, fmt.Errorf("parse lexicon: pattern entry without id: %w", internalerr.ErrInvalidConfig)
		}
		lex.AddPattern(p.ID, p.Keywords)
	}
	lex.AddTemporal(doc.Temporal...)
	for _, c := range doc.Categories {
		lex.AddCategory(c.Name, c.Variants)
	}
	return lex, nil
}

// Default returns the built-in vocabulary used when no lexicon file is
// configured.
func Default() *Lexicon {
	lex := New()
	lex.AddPattern("PAT_COLLISION", []string{"collision", "collisions", "crash", "crashed", "impact", "bump", "hit", "struck"})
	lex.AddPattern("PAT_OVERLOAD", []string{"overload", "overloads", "overloaded", "overloading", "excessive load", "too heavy"})
	lex.AddPattern("PAT_DRIFT", []string{"drift", "drifts", "drifting", "zero shift", "offset creep"})
	lex.AddPattern("PAT_VIBRATION", []string{"vibration", "vibrations", "vibrating", "oscillation", "shaking", "chatter"})
	lex.AddTemporal(
		"recent", "recently", "lately", "today", "yesterday", "this week", "last week",
		"this month", "last month", "past", "history", "ago", "how often", "how many times", "so far",
	)
	lex.AddCategory("safety", []string{"safety", "protective stop", "e-stop", "emergency stop"})
	lex.AddCategory("force", []string{"force", "overload", "torque limit", "payload"})
	lex.AddCategory("sensor", []string{"sensor", "calibration", "drift", "signal"})
	lex.AddCategory("communication", []string{"communication", "network", "timeout", "fieldbus", "connection"})
	lex.AddSynonymGroup("torque", []string{"moment", "twisting force"})
	lex.AddSynonymGroup("force", []string{"load", "pressure"})
	return lex
}

// AddSynonymGroup adds a synonym group with a canonical form and its variants.
// The canonical form is always included as the first entry in the variants list.
// If the group already exists, old reverse index entries are cleaned up first.
func (l *Lexicon) AddSynonymGroup(canonical string, variants []string) {
	canonical = strings.ToLower(canonical)

	if oldVariants, exists := l.synonyms[canonical]; exists {
		for _, oldV := range oldVariants {
			delete(l.reverseIndex, strings.Join(Tokenize(oldV), " "))
		}
	}

	normalized := dedupeLower(canonical, variants)
	l.synonyms[canonical] = normalized
	for _, v := range normalized {
		key := strings.Join(Tokenize(v), " ")
		l.reverseIndex[key] = canonical
		l.maxVariant = max(l.maxVariant, len(Tokenize(v)))
	}
}

// canonicalTokens rewrites every synonym variant in tokens to its canonical
// form, longest variant first.
func (l *Lexicon) canonicalTokens(tokens []string) []string {
	if len(l.reverseIndex) == 0 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		n := min(l.maxVariant, len(tokens)-i)
		for ; n > 0; n-- {
			if c, ok := l.reverseIndex[strings.Join(tokens[i:i+n], " ")]; ok {
				out = append(out, Tokenize(c)...)
				break
			}
		}
		if n == 0 {
			out = append(out, tokens[i])
			n = 1
		}
		i += n
	}
	return out
}

// tokenized is an input kept in both verbatim and canonical form.
type tokenized struct {
	tokens, canon []string
}

func (l *Lexicon) prepare(s string) tokenized {
	tokens := Tokenize(s)
	return tokenized{tokens: tokens, canon: l.canonicalTokens(tokens)}
}

// contains reports whether phrase occurs in t verbatim or by synonym.
func (l *Lexicon) contains(t tokenized, phrase []string) bool {
	return containsPhrase(t.tokens, phrase) || containsPhrase(t.canon, l.canonicalTokens(phrase))
}

// AddPattern registers keywords for a pattern id. The id keeps its case.
func (l *Lexicon) AddPattern(id string, keywords []string) {
	l.patterns[id] = dedupeLower("", keywords)
}

// PatternKeywords returns the keywords registered for id.
func (l *Lexicon) PatternKeywords(id string) []string {
	return l.patterns[id]
}

// ResolvePattern maps free text or an id to a canonical pattern id. An
// exact id match wins; otherwise the longest keyword found in the text
// decides, so "excessive load" beats "load".
func (l *Lexicon) ResolvePattern(text string) (string, bool) {
	if _, ok := l.patterns[text]; ok {
		return text, true
	}
	for id := range l.patterns {
		if strings.EqualFold(id, text) {
			return id, true
		}
	}

	t := l.prepare(text)
	best, bestLen := "", 0
	for _, id := range l.sortedPatternIDs() {
		for _, kw := range l.patterns[id] {
			kt := Tokenize(kw)
			if len(kt) > bestLen && l.contains(t, kt) {
				best, bestLen = id, len(kt)
			}
		}
	}
	return best, best != ""
}

// AddTemporal registers words that ask about the past.
func (l *Lexicon) AddTemporal(words ...string) {
	l.temporal = dedupeLower("", append(l.temporal, words...))
}

// HasTemporal reports whether text contains any temporal qualifier.
func (l *Lexicon) HasTemporal(text string) bool {
	tokens := Tokenize(text)
	for _, w := range l.temporal {
		if containsPhrase(tokens, Tokenize(w)) {
			return true
		}
	}
	return false
}

// AddCategory registers an error category and its variants.
func (l *Lexicon) AddCategory(name string, variants []string) {
	name = strings.ToLower(name)
	l.categories[name] = dedupeLower(name, variants)
}

// CategoryVariants returns the variants for a category, or just the name
// when the category is unknown.
func (l *Lexicon) CategoryVariants(name string) []string {
	name = strings.ToLower(name)
	if v, ok := l.categories[name]; ok {
		return v
	}
	return []string{name}
}

// ResolveCategory finds the category whose variant appears in text.
func (l *Lexicon) ResolveCategory(text string) (string, bool) {
	t := l.prepare(text)
	names := make([]string, 0, len(l.categories))
	for n := range l.categories {
		names = append(names, n)
	}
	sort.Strings(names)
	best, bestLen := "", 0
	for _, n := range names {
		for _, v := range l.categories[n] {
			vt := Tokenize(v)
			if len(vt) > bestLen && l.contains(t, vt) {
				best, bestLen = n, len(vt)
			}
		}
	}
	return best, best != ""
}

// MatchesAny reports whether any of the phrases occurs in text, verbatim or
// by synonym.
func (l *Lexicon) MatchesAny(text string, phrases []string) bool {
	t := l.prepare(text)
	for _, p := range phrases {
		if l.contains(t, Tokenize(p)) {
			return true
		}
	}
	return false
}

// Stats returns statistics about the lexicon contents.
func (l *Lexicon) Stats() LexiconStats {
	totalVariants := 0
	for _, variants := range l.synonyms {
		totalVariants += len(variants)
	}
	keywords := 0
	for _, kws := range l.patterns {
		keywords += len(kws)
	}
	return LexiconStats{
		SynonymGroups:   len(l.synonyms),
		TotalVariants:   totalVariants,
		Patterns:        len(l.patterns),
		PatternKeywords: keywords,
		TemporalWords:   len(l.temporal),
		Categories:      len(l.categories),
	}
}

// LexiconStats holds statistics about lexicon contents.
type LexiconStats struct {
	SynonymGroups   int // Number of canonical forms (synonym groups)
	TotalVariants   int // Total number of variants across all groups
	Patterns        int
	PatternKeywords int
	TemporalWords   int
	Categories      int
}

// Tokenize lower-cases text and splits it into words. Hyphens and
// underscores stay inside words so "e-stop" and "PAT_DRIFT" survive.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
}

func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}

func (l *Lexicon) sortedPatternIDs() []string {
	ids := make([]string, 0, len(l.patterns))
	for id := range l.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// dedupeLower lower-cases and de-duplicates words, keeping first first when
// it is set.
func dedupeLower(first string, words []string) []string {
	out := make([]string, 0, len(words)+1)
	seen := make(map[string]bool)
	if first != "" {
		out = append(out, first)
		seen[first] = true
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
