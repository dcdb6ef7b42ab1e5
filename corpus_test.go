package leif

import (
	"strings"
	"testing"
)

func TestParseCorpusDocument(t *testing.T) {
	const source = `<newsitem itemid="2286">
<title>Cats sleep, anywhere.</title>
<text>
<p>Any table; any chair!</p>
</text>
</newsitem>`

	doc, err := ParseCorpusDocument(strings.NewReader(source))
	if err != nil {
		t.Fatal(err)
	}
	if doc.DocID != 2286 {
		t.Fatalf("DocID = %d, want 2286", doc.DocID)
	}
	if len(doc.Roots) != 1 || doc.Roots[0].Name != "newsitem" {
		t.Fatalf("roots = %v, want single newsitem", doc.Roots)
	}

	newsitem := doc.Roots[0]
	if len(newsitem.Children) != 2 {
		t.Fatalf("newsitem has %d children, want title and text", len(newsitem.Children))
	}

	title := newsitem.Children[0]
	if title.Name != "title" {
		t.Fatalf("first child = %q, want title", title.Name)
	}
	var titleTokens []string
	for _, child := range title.Children {
		if !child.IsLeaf() {
			t.Fatalf("title child %v is not a leaf", child)
		}
		titleTokens = append(titleTokens, child.Token)
	}
	// Trailing punctuation strips at parse time.
	want := []string{"Cats", "sleep", "anywhere"}
	if len(titleTokens) != len(want) {
		t.Fatalf("title tokens = %v, want %v", titleTokens, want)
	}
	for i, token := range titleTokens {
		if token != want[i] {
			t.Errorf("title token %d = %q, want %q", i, token, want[i])
		}
	}
}

func TestParseCorpusDocument_FeedsAnalyzer(t *testing.T) {
	const source = `<newsitem itemid="7"><title>big cats</title></newsitem>`

	parsed, err := ParseCorpusDocument(strings.NewReader(source))
	if err != nil {
		t.Fatal(err)
	}

	alphabet := NewAlphabet()
	analyzer := NewAnalyzer(alphabet, AnalyzerConfig{MinTokenLength: 2})
	doc := analyzer.AnalyzeTermTree(parsed.DocID, parsed.Roots)

	if doc.DocID != 7 {
		t.Fatalf("DocID = %d, want 7", doc.DocID)
	}
	// newsitem's first child is the title node, not a token, so newsitem
	// sits alone at 0; title merges with "big" at 1; "cats" closes at 2.
	if len(doc.Terms) != 3 {
		t.Fatalf("emitted %d positions, want 3", len(doc.Terms))
	}
	newsitemID, _ := alphabet.Lookup("newsitem")
	if doc.Terms[0][0].TermID != newsitemID || doc.Terms[0][0].Extent != 2 {
		t.Fatalf("position 0 = %v, want newsitem spanning the document", doc.Terms[0])
	}
}
