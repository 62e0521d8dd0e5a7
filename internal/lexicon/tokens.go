// Package lexicon holds the text primitives shared by indexing and query
// analysis: tokenization, stopwords, keyword sets and synonym expansion.
package lexicon

import (
	"regexp"
	"strings"
)

var (
	tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)
	doseUnit     = regexp.MustCompile(`^(\d+)([a-z]+)$`)
)

// Tokenize lower-cases text and returns its word tokens, stopwords included.
// Single-character tokens are dropped.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if len([]rune(t)) < 2 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Terms returns the distinct non-stopword tokens of a query in order of first appearance.
func Terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range Tokenize(text) {
		if IsStopword(t) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Keywords builds the keyword set of a chunk. Besides every non-stopword token it
// contains singular forms and the parts of dose tokens such as "500mg".
func Keywords(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(text) {
		if IsStopword(t) {
			continue
		}
		set[t] = struct{}{}
		if s := Singular(t); s != t {
			set[s] = struct{}{}
		}
		if m := doseUnit.FindStringSubmatch(t); m != nil {
			set[m[1]] = struct{}{}
			set[m[2]] = struct{}{}
		}
	}
	return set
}

// Singular strips a plural "s" from words long enough to carry one.
func Singular(word string) string {
	if len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") {
		return word[:len(word)-1]
	}
	return word
}

// Contains reports whether term occurs in a keyword set, allowing for
// singular/plural variation. Multi-word terms match when every word does.
func Contains(keywords map[string]struct{}, term string) bool {
	if strings.Contains(term, " ") {
		for _, part := range strings.Fields(term) {
			if !Contains(keywords, part) {
				return false
			}
		}
		return true
	}
	if _, ok := keywords[term]; ok {
		return true
	}
	if _, ok := keywords[Singular(term)]; ok {
		return true
	}
	_, ok := keywords[term+"s"]
	return ok
}

// Phrase lower-cases text and collapses every run of non-alphanumerics to a
// single space, padding both ends. Single-letter words such as "i" are kept.
func Phrase(text string) string {
	return " " + strings.Join(tokenPattern.FindAllString(strings.ToLower(text), -1), " ") + " "
}

// SingularPhrase is Phrase with every word reduced by Singular.
func SingularPhrase(text string) string {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		words[i] = Singular(w)
	}
	return " " + strings.Join(words, " ") + " "
}

// HasPhrase reports whether a padded phrase text contains p on word boundaries.
func HasPhrase(padded, p string) bool {
	return strings.Contains(padded, " "+p+" ")
}

// HasPrefixWord reports whether some word of padded text starts with p, so
// "poison" also finds "poisoning".
func HasPrefixWord(padded, p string) bool {
	return strings.Contains(padded, " "+p)
}

// IsStopword reports whether a lower-cased token carries no retrieval signal.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "them", "they", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "whats", "which", "who", "when", "where", "why", "how", "much", "many", "tell", "me", "please", "provide", "give", "take", "my", "does", "do", "did", "have", "has", "any", "list", "show", "details", "information", "regarding", "suggest", "describe", "explain", "check", "mentioned", "mention", "guidance", "guide", "label", "discussed", "discuss", "reference", "notes", "note", "described", "finding", "findings", "there", "their", "you", "your", "we", "our", "us", "would", "could", "also", "referring",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
