// Package search is a BM25 index over file paths, symbol names and doc comments.
package search

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/skelly-dev/distill/internal/record"
)

var (
	tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)
	identPattern = regexp.MustCompile(`[A-Za-z0-9]+`)
)

// Document is one file in the index.
type Document struct {
	ID     string         `json:"id"` // relative path
	Name   string         `json:"name"`
	Length int            `json:"length"`
	Terms  map[string]int `json:"terms"`
}

type Index struct {
	DocumentCount int            `json:"document_count"`
	AvgDocLength  float64        `json:"avg_doc_length"`
	DocFreq       map[string]int `json:"doc_freq"`
	Documents     []Document     `json:"documents"`
}

type Result struct {
	ID    string
	Score float64
}

// Build indexes every record that has a path, symbols or docs worth matching.
func Build(records []record.FileRecord) *Index {
	documents := make([]Document, 0, len(records))
	docFreq := make(map[string]int)
	totalLength := 0

	for _, rec := range records {
		terms := buildTerms(rec)
		length := 0
		for _, count := range terms {
			length += count
		}
		if length == 0 {
			continue
		}

		documents = append(documents, Document{
			ID:     rec.Path,
			Name:   rec.Base(),
			Length: length,
			Terms:  terms,
		})
		totalLength += length

		for term := range terms {
			docFreq[term]++
		}
	}

	sort.Slice(documents, func(i, j int) bool {
		return documents[i].ID < documents[j].ID
	})

	avgDocLength := 0.0
	if len(documents) > 0 {
		avgDocLength = float64(totalLength) / float64(len(documents))
	}

	return &Index{
		DocumentCount: len(documents),
		AvgDocLength:  avgDocLength,
		DocFreq:       docFreq,
		Documents:     documents,
	}
}

// SearchPaths returns the paths of the best matches for query.
func (index *Index) SearchPaths(ctx context.Context, query string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := Search(index, query, limit)
	paths := make([]string, 0, len(results))
	for _, result := range results {
		paths = append(paths, result.ID)
	}
	return paths, nil
}

func Search(index *Index, query string, limit int) []Result {
	if index == nil || len(index.Documents) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	seenTerms := make(map[string]bool, len(queryTerms))
	uniqueTerms := make([]string, 0, len(queryTerms))
	for _, term := range queryTerms {
		if seenTerms[term] || stopWords[term] {
			continue
		}
		seenTerms[term] = true
		uniqueTerms = append(uniqueTerms, term)
	}

	k1 := 1.2
	b := 0.75
	n := float64(index.DocumentCount)
	avgLen := index.AvgDocLength
	if avgLen <= 0 {
		avgLen = 1
	}

	results := make([]Result, 0)
	for _, doc := range index.Documents {
		score := 0.0
		docLen := float64(doc.Length)
		for _, term := range uniqueTerms {
			tf := float64(doc.Terms[term])
			if tf <= 0 {
				continue
			}
			df := float64(index.DocFreq[term])
			if df <= 0 {
				continue
			}
			idf := math.Log(1.0 + ((n - df + 0.5) / (df + 0.5)))
			numerator := tf * (k1 + 1.0)
			denominator := tf + k1*(1.0-b+b*(docLen/avgLen))
			score += idf * (numerator / denominator)
		}
		if score > 0 {
			results = append(results, Result{ID: doc.ID, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	if len(results) == 0 {
		fallback := fuzzyNameFallback(index.Documents, query, limit)
		if len(fallback) > 0 {
			return fallback
		}
	}
	return results
}

func buildTerms(rec record.FileRecord) map[string]int {
	terms := make(map[string]int)
	addWeighted(terms, rec.Path, 2)
	if rec.Facts != nil {
		addWeighted(terms, rec.Facts.Doc, 1)
		for _, sym := range rec.Facts.Symbols {
			addWeighted(terms, sym.Name, 4)
			addWeighted(terms, sym.Doc, 1)
		}
	}
	return terms
}

func addWeighted(terms map[string]int, value string, weight int) {
	if weight <= 0 {
		return
	}
	for _, token := range tokenize(value) {
		terms[token] += weight
	}
}

// tokenize lowercases value and splits it into words. CamelCase and
// snake_case identifiers also yield their parts.
func tokenize(value string) []string {
	if value == "" {
		return nil
	}
	out := make([]string, 0)
	for _, word := range tokenPattern.FindAllString(strings.ToLower(value), -1) {
		out = append(out, word)
		if strings.Contains(word, "_") {
			for _, part := range strings.Split(word, "_") {
				if part != "" {
					out = append(out, part)
				}
			}
		}
	}
	for _, word := range identPattern.FindAllString(value, -1) {
		parts := splitCamel(word)
		if len(parts) < 2 {
			continue
		}
		for _, part := range parts {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func splitCamel(word string) []string {
	parts := make([]string, 0)
	start := 0
	runes := []rune(word)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "to": true, "of": true,
	"in": true, "on": true, "for": true, "is": true, "it": true, "with": true,
}

func fuzzyNameFallback(documents []Document, query string, limit int) []Result {
	needle := normalizeForFuzzy(query)
	if needle == "" {
		return nil
	}

	results := make([]Result, 0)
	for _, doc := range documents {
		name := doc.Name
		if idx := strings.LastIndex(name, "."); idx > 0 {
			name = name[:idx]
		}
		candidate := normalizeForFuzzy(name)
		if candidate == "" {
			continue
		}
		distance := levenshteinDistance(needle, candidate)
		threshold := len(candidate) / 3
		if threshold < 2 {
			threshold = 2
		}
		if distance > threshold {
			continue
		}
		results = append(results, Result{ID: doc.ID, Score: 1.0 / float64(1+distance)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func normalizeForFuzzy(value string) string {
	tokens := tokenPattern.FindAllString(strings.ToLower(value), -1)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, "")
}

func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current := make([]int, len(b)+1)
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			current[j] = min(current[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = current
	}

	return prev[len(b)]
}
