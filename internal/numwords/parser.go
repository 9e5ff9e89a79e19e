// Package numwords turns free-form speech transcripts into a single integer.
//
// Parsing is layered: a run of decimal digits anywhere in the transcript wins,
// otherwise the first number word is used, with a tens word followed by a ones
// word read as one compound ("twenty one" → 21).
package numwords

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var digitRun = regexp.MustCompile(`-?\d+`)

// Parser extracts integers from transcripts using a lexicon.
// A Parser is immutable and safe for concurrent use.
type Parser struct {
	lex Lexicon
}

// NewParser returns a parser backed by lex.
func NewParser(lex Lexicon) *Parser {
	return &Parser{lex: Lexicon{Words: cloneTable(lex.Words), Tens: cloneTable(lex.Tens)}}
}

var defaultParser = NewParser(DefaultLexicon())

// Parse extracts an integer from raw using the default lexicon.
func Parse(raw string) (int, bool) {
	return defaultParser.Parse(raw)
}

// Parse returns the integer spoken in raw, or false when none is recognized.
func (p *Parser) Parse(raw string) (int, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return 0, false
	}
	if n, ok := parseDigits(text); ok {
		return n, true
	}
	return p.parseWords(tokenize(text))
}

// parseDigits returns the first digit run, optionally signed.
func parseDigits(text string) (int, bool) {
	match := digitRun.FindString(text)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseWords scans tokens left to right. The first number word decides the
// result; when it is a tens word followed by another number word, the pair
// must form a compound with a ones value in [1, 9] or nothing is recognized.
func (p *Parser) parseWords(tokens []string) (int, bool) {
	for i, tok := range tokens {
		v, ok := p.lex.Lookup(tok)
		if !ok {
			continue
		}
		if i+1 < len(tokens) {
			if n, matched, ok := p.compound(tok, tokens[i+1]); matched {
				return n, ok
			}
		}
		return v, true
	}
	return 0, false
}

// compound reports whether head and next read as a two-token number.
// matched is true when head is a tens word and next is any number word;
// ok is true only when the pair is a valid compound.
func (p *Parser) compound(head, next string) (n int, matched, ok bool) {
	tens, isTens := p.lex.tens(head)
	if !isTens {
		return 0, false, false
	}
	ones, isWord := p.lex.Lookup(next)
	if !isWord {
		return 0, false, false
	}
	if ones < 1 || ones > 9 {
		return 0, true, false
	}
	return tens + ones, true, true
}

// tokenize splits on whitespace and hyphens and strips surrounding punctuation.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	})
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
