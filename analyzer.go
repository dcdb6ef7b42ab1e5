// ═══════════════════════════════════════════════════════════════════════════════
// DOCUMENT ANALYSIS
// ═══════════════════════════════════════════════════════════════════════════════
// The index itself never sees raw text: it ingests AnalyzedDocuments,
// sequences of term sets with implicit positions. This file is the bridge
// from words to those documents.
//
// WORD PIPELINE:
// --------------
//  1. Unicode normalization (NFC)  → "café" composes to one form
//  2. Lowercasing                  → "Quick" → "quick"
//  3. Stop word removal (optional) → "the", "a", ... dropped
//  4. Length filtering             → tokens under MinTokenLength bytes dropped
//  5. Stemming (optional)          → "running" → "run"
//
// The same pipeline runs on both sides: document words at analysis time
// and query words at lookup time, so "Running" finds documents that said
// "runs".
//
// STRUCTURE:
// ----------
// Documents may carry structure: a tree of named nodes over the token
// stream. A structural node contributes its own term at the position
// where its subtree starts, with an extent covering the subtree's
// positions; Scope queries evaluate against exactly those extents. When a
// node's first child is a token, the node's term shares its position with
// that token, which is why a position holds a SET of (termId, extent)
// pairs.
// ═══════════════════════════════════════════════════════════════════════════════

package leif

import (
	"encoding/gob"
	"fmt"
	"os"
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// AnalyzedTermEntry is one (termId, extent) pair emitted for a position.
type AnalyzedTermEntry struct {
	TermID uint32
	Extent uint32
}

// AnalyzedTerm is the set of entries emitted for one position of a
// document. Leaf tokens contribute one entry; structural nodes may share
// the position and add more.
type AnalyzedTerm []AnalyzedTermEntry

// AnalyzedDocument is what the reverse index ingests: a docId and an
// ordered term sequence. The position of each term is its index in the
// sequence.
type AnalyzedDocument struct {
	DocID uint32
	Terms []AnalyzedTerm
}

// AppendTerm adds the next position's term set.
func (d *AnalyzedDocument) AppendTerm(term AnalyzedTerm) {
	d.Terms = append(d.Terms, term)
}

// ═══════════════════════════════════════════════════════════════════════════════
// ALPHABET
// ═══════════════════════════════════════════════════════════════════════════════

// Alphabet assigns dense external termIds to words and remembers the
// assignment. It is the producer-side companion of the index's lexicon
// and persists independently of it.
type Alphabet struct {
	TermWords  map[string]uint32
	NextTermID uint32
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{TermWords: make(map[string]uint32)}
}

// TermID returns the word's termId, assigning the next free id on first
// sight.
func (a *Alphabet) TermID(word string) uint32 {
	if termID, ok := a.TermWords[word]; ok {
		return termID
	}
	termID := a.NextTermID
	a.TermWords[word] = termID
	a.NextTermID++
	return termID
}

// Lookup returns the word's termId without assigning one.
func (a *Alphabet) Lookup(word string) (uint32, bool) {
	termID, ok := a.TermWords[word]
	return termID, ok
}

// Save persists the alphabet.
func (a *Alphabet) Save(path string) error {
	fp, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("leif: create alphabet %s: %w", path, err)
	}
	defer fp.Close()
	if err := gob.NewEncoder(fp).Encode(a); err != nil {
		return fmt.Errorf("leif: write alphabet %s: %w", path, err)
	}
	return nil
}

// LoadAlphabet reads an alphabet back.
func LoadAlphabet(path string) (*Alphabet, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("leif: open alphabet %s: %w", path, err)
	}
	defer fp.Close()
	a := NewAlphabet()
	if err := gob.NewDecoder(fp).Decode(a); err != nil {
		return nil, fmt.Errorf("leif: read alphabet %s: %w", path, err)
	}
	if a.TermWords == nil {
		a.TermWords = make(map[string]uint32)
	}
	return a, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// WORD PIPELINE
// ═══════════════════════════════════════════════════════════════════════════════

// AnalyzerConfig holds the knobs of the word pipeline.
type AnalyzerConfig struct {
	MinTokenLength  int  `yaml:"minTokenLength"`
	EnableStemming  bool `yaml:"enableStemming"`
	EnableStopwords bool `yaml:"enableStopwords"`
}

// DefaultAnalyzerConfig returns the standard configuration.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MinTokenLength:  2,
		EnableStemming:  true,
		EnableStopwords: true,
	}
}

// Analyze transforms raw text into index words using the default
// configuration.
//
// Example:
//
//	Analyze("The quick brown foxes!")  →  ["quick", "brown", "fox"]
func Analyze(text string) []string {
	return AnalyzeWithConfig(text, DefaultAnalyzerConfig())
}

// AnalyzeWithConfig transforms raw text using a custom configuration.
func AnalyzeWithConfig(text string, config AnalyzerConfig) []string {
	tokens := tokenize(norm.NFC.String(text))
	words := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.ToLower(token)
		if config.EnableStopwords && isStopword(token) {
			continue
		}
		if len(token) < config.MinTokenLength {
			continue
		}
		if config.EnableStemming {
			token = snowballeng.Stem(token, false)
		}
		words = append(words, token)
	}
	return words
}

// NormalizeWord runs a single word through the non-dropping stages of the
// pipeline: NFC, lowercase, stem. Structural analysis and query-side Term
// words use it so positions survive while spellings converge.
func NormalizeWord(word string, config AnalyzerConfig) string {
	word = strings.ToLower(norm.NFC.String(word))
	if config.EnableStemming {
		word = snowballeng.Stem(word, false)
	}
	return word
}

// tokenize splits on anything that is not a letter or a number, which
// handles punctuation and Unicode in one stroke.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func isStopword(token string) bool {
	_, exists := englishStopwords[token]
	return exists
}

// englishStopwords is the usual list of English function words: articles,
// prepositions, conjunctions, pronouns and auxiliaries that carry no
// search value on their own.
var englishStopwords = makeStopwordSet(`
	a about above after again against all am an and any are as at be because
	been before being below between both but by can cannot could did do does
	down during each few for from further had has have having he her here
	hers herself him himself his how i if in into is it its itself just me
	more most my myself no nor not now of off on once only or other our ours
	ourselves out over own same she should so some such than that the their
	theirs them themselves then there these they this those through to too
	under until up upon very was we were what when where which while who whom
	why will with would you your yours yourself yourselves`)

func makeStopwordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(words) {
		set[word] = struct{}{}
	}
	return set
}

// ═══════════════════════════════════════════════════════════════════════════════
// STRUCTURAL ANALYSIS
// ═══════════════════════════════════════════════════════════════════════════════

// TermNode is one node of a structural document tree: either a leaf token
// or a named node over children.
type TermNode struct {
	Name     string // structural node name, "" for a leaf
	Token    string // leaf token text
	Children []*TermNode
}

// IsLeaf reports whether the node is a bare token.
func (n *TermNode) IsLeaf() bool { return n.Name == "" }

// Analyzer turns raw or structured input into AnalyzedDocuments, assigning
// termIds through its alphabet.
type Analyzer struct {
	Config   AnalyzerConfig
	Alphabet *Alphabet
}

// NewAnalyzer builds an analyzer around an alphabet.
func NewAnalyzer(alphabet *Alphabet, config AnalyzerConfig) *Analyzer {
	return &Analyzer{Config: config, Alphabet: alphabet}
}

// AnalyzeText produces a flat document: one leaf term per surviving word,
// extents all zero.
func (a *Analyzer) AnalyzeText(docID uint32, text string) *AnalyzedDocument {
	doc := &AnalyzedDocument{DocID: docID}
	for _, word := range AnalyzeWithConfig(text, a.Config) {
		doc.AppendTerm(AnalyzedTerm{{TermID: a.Alphabet.TermID(word)}})
	}
	return doc
}

// AnalyzeTermTree produces a structured document from a tree of named
// nodes and tokens.
//
// Each structural node emits its name as a term at the position where its
// subtree begins; the extent is fixed up afterwards to span every
// position the subtree emitted. When a node's first child is a token, the
// token joins the node's term set instead of taking a position of its
// own, so the node and its leading token are indistinguishable by
// position, which is exactly what Scope queries want.
func (a *Analyzer) AnalyzeTermTree(docID uint32, roots []*TermNode) *AnalyzedDocument {
	doc := &AnalyzedDocument{DocID: docID}
	for _, root := range roots {
		a.walkTermTree(doc, root)
	}
	return doc
}

func (a *Analyzer) walkTermTree(doc *AnalyzedDocument, node *TermNode) {
	if node.IsLeaf() {
		word := NormalizeWord(node.Token, a.Config)
		doc.AppendTerm(AnalyzedTerm{{TermID: a.Alphabet.TermID(word)}})
		return
	}

	start := len(doc.Terms)
	term := AnalyzedTerm{{TermID: a.Alphabet.TermID(node.Name)}}

	children := node.Children
	if len(children) > 0 && children[0].IsLeaf() {
		word := NormalizeWord(children[0].Token, a.Config)
		term = append(term, AnalyzedTermEntry{TermID: a.Alphabet.TermID(word)})
		children = children[1:]
	}
	doc.AppendTerm(term)

	for _, child := range children {
		a.walkTermTree(doc, child)
	}

	// The subtree emitted positions start..len-1; the structural entry
	// covers all of them.
	doc.Terms[start][0].Extent = uint32(len(doc.Terms) - 1 - start)
}
