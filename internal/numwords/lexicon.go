package numwords

// Lexicon maps spoken tokens to the integers they stand for.
//
// Words holds standalone number words and their homophones. Tens holds the
// words that may head a two-token compound ("twenty one"); a tens word is
// also accepted on its own.
type Lexicon struct {
	Words map[string]int
	Tens  map[string]int
}

var defaultWords = map[string]int{
	"zero":      0,
	"one":       1,
	"won":       1,
	"two":       2,
	"too":       2,
	"three":     3,
	"four":      4,
	"for":       4,
	"fore":      4,
	"five":      5,
	"six":       6,
	"seven":     7,
	"eight":     8,
	"ate":       8,
	"nine":      9,
	"ten":       10,
	"eleven":    11,
	"twelve":    12,
	"thirteen":  13,
	"fourteen":  14,
	"fifteen":   15,
	"sixteen":   16,
	"seventeen": 17,
	"eighteen":  18,
	"nineteen":  19,
}

var defaultTens = map[string]int{
	"twenty": 20,
}

// DefaultLexicon returns a fresh copy of the built-in English lexicon
// covering 0 through 20 and the 21..29 compounds.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Words: cloneTable(defaultWords),
		Tens:  cloneTable(defaultTens),
	}
}

// DefaultTable returns every single token the default lexicon recognizes.
func DefaultTable() map[string]int {
	return DefaultLexicon().Table()
}

// Table flattens the lexicon into one token → value map.
func (l Lexicon) Table() map[string]int {
	out := make(map[string]int, len(l.Words)+len(l.Tens))
	for k, v := range l.Words {
		out[k] = v
	}
	for k, v := range l.Tens {
		out[k] = v
	}
	return out
}

// Lookup reports the value of a single token.
func (l Lexicon) Lookup(token string) (int, bool) {
	if v, ok := l.Words[token]; ok {
		return v, true
	}
	v, ok := l.Tens[token]
	return v, ok
}

func (l Lexicon) tens(token string) (int, bool) {
	v, ok := l.Tens[token]
	return v, ok
}

func cloneTable(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
