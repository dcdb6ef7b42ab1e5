// Unindexing: regenerate an approximation of the source documents from
// the index alone. Every term is looked up, its postings are scattered
// back to per-document token lists, and each document is written out as
// its tokens sorted by position. Structural terms reappear inline, and
// the word pipeline is lossy, so the result is an approximation. That is
// the point: it is a diagnostic for what the index actually holds.

package leif

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
)

type positionedWord struct {
	position uint32
	word     string
}

// Unindex writes one "<docId>.fwd" file per indexed document under dir,
// each holding the document's words in position order. Progress is
// reported per term on stdout.
func Unindex(alphabet *Alphabet, ri *ReverseIndex, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("leif: create unindex directory %s: %w", dir, err)
	}

	termLabel := color.New(color.FgCyan)
	counter := color.New(color.FgYellow)
	done := color.New(color.FgGreen)

	words := make([]string, 0, len(alphabet.TermWords))
	for word := range alphabet.TermWords {
		words = append(words, word)
	}
	sort.Strings(words)

	documents := make(map[uint32][]positionedWord)
	for _, word := range words {
		termID := alphabet.TermWords[word]

		display := word
		if len(display) > 14 {
			display = "<" + display[:12] + ">"
		}
		termLabel.Printf("Unindexing term %14s ", display)

		docCount, instanceCount := 0, 0
		reader := ri.LookupTermID(termID)
		for {
			postings, ok := reader.Next()
			if !ok {
				break
			}
			docCount++
			for {
				instance, ok := postings.Instances.Next()
				if !ok {
					break
				}
				instanceCount++
				documents[postings.DocID] = append(documents[postings.DocID],
					positionedWord{position: instance.Position, word: word})
			}
		}
		counter.Printf("[documents %8d instances %8d] ", docCount, instanceCount)
		done.Println("DONE")
	}

	for docID, tokens := range documents {
		sort.Slice(tokens, func(i, j int) bool { return tokens[i].position < tokens[j].position })
		out := make([]byte, 0, len(tokens)*8)
		for _, token := range tokens {
			out = append(out, token.word...)
			out = append(out, ' ')
		}
		path := filepath.Join(dir, fmt.Sprintf("%d.fwd", docID))
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("leif: write unindexed document %s: %w", path, err)
		}
	}
	return nil
}
