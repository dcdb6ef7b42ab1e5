// Command leif drives a reverse index from the shell: update it from a
// stream of analyzed documents, query it interactively, or unindex it
// back into approximate source documents.
package main

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hellertime/leif"
)

var (
	optionsFile  string
	indexPath    string
	indexPrefix  string
	indexKey     string
	alphabetFile string
)

func main() {
	root := &cobra.Command{
		Use:           "leif",
		Short:         "Positional inverted index with geometric partitioning",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&optionsFile, "options", "", "YAML options file")
	root.PersistentFlags().StringVar(&indexPath, "path", "", "index directory")
	root.PersistentFlags().StringVar(&indexPrefix, "prefix", "", "index file prefix")
	root.PersistentFlags().StringVar(&indexKey, "key", "", "index key guard")
	root.PersistentFlags().StringVar(&alphabetFile, "alphabet", "", "alphabet file (word to termId)")

	root.AddCommand(updateCommand(), queryCommand(), unindexCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadOptions merges the options file, if any, with the command-line
// flags; flags win.
func loadOptions() (leif.IndexOptions, error) {
	options := leif.DefaultIndexOptions()
	if optionsFile != "" {
		loaded, err := leif.LoadIndexOptions(optionsFile)
		if err != nil {
			return leif.IndexOptions{}, err
		}
		options = loaded
	}
	if indexPath != "" {
		options.Path = indexPath
	}
	if indexPrefix != "" {
		options.Prefix = indexPrefix
	}
	if indexKey != "" {
		options.IndexKey = indexKey
	}
	return options, nil
}

func loadAlphabet() (*leif.Alphabet, error) {
	if alphabetFile == "" {
		return nil, errors.New("an --alphabet file is required")
	}
	return leif.LoadAlphabet(alphabetFile)
}

func updateCommand() *cobra.Command {
	var dataFile string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Read analyzed documents and update the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataFile == "" {
				return errors.New("a --data file is required")
			}
			options, err := loadOptions()
			if err != nil {
				return err
			}

			ri, err := leif.NewReverseIndex(options)
			if err != nil {
				return err
			}

			fp, err := os.Open(dataFile)
			if err != nil {
				return err
			}
			defer fp.Close()

			decoder := gob.NewDecoder(fp)
			posted := 0
			for {
				var doc leif.AnalyzedDocument
				if err := decoder.Decode(&doc); err == io.EOF {
					break
				} else if err != nil {
					return fmt.Errorf("read analyzed document: %w", err)
				}
				if err := ri.Post(&doc); err != nil {
					return err
				}
				posted++
			}
			fmt.Fprintf(os.Stderr, "posted %d documents\n", posted)
			return ri.Close()
		},
	}
	cmd.Flags().StringVar(&dataFile, "data", "", "gob stream of analyzed documents")
	return cmd
}

func queryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Query the index interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := loadOptions()
			if err != nil {
				return err
			}
			alphabet, err := loadAlphabet()
			if err != nil {
				return err
			}

			ri, err := leif.NewReverseIndex(options)
			if err != nil {
				return err
			}
			defer ri.Close()

			env := leif.NewEnvironment(func(word string) *leif.ComputedMatchVector {
				word = leif.NormalizeWord(word, options.Analyzer)
				termID, ok := alphabet.Lookup(word)
				if !ok {
					return leif.EmptyComputedMatchVector()
				}
				return leif.ComputedMatchesFromDocReader(ri.LookupTermID(termID))
			})

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("query> ")
				if !scanner.Scan() {
					break
				}
				line := scanner.Text()
				if line == "" {
					continue
				}

				expr, err := leif.ParseQuery(line)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				result, err := leif.ReduceQuery(expr, env)
				if err != nil {
					if leif.IsSoftQueryError(err) {
						fmt.Fprintln(os.Stderr, err)
						continue
					}
					return err
				}

				it := result.Iterator()
				count := 0
				for {
					match, ok := it.Next()
					if !ok {
						break
					}
					count++
					fmt.Printf("doc %d: ", match.DocID)
					for _, vector := range match.Vectors {
						fmt.Print("[")
						for i, instance := range vector {
							if i > 0 {
								fmt.Print(" ")
							}
							fmt.Printf("%d", instance.Position)
						}
						fmt.Print("] ")
					}
					fmt.Println()
				}
				if count == 0 {
					fmt.Println("no matches")
				}
			}
			return scanner.Err()
		},
	}
}

func unindexCommand() *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "unindex",
		Short: "Regenerate approximate source documents from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if where == "" {
				return errors.New("a --where directory is required")
			}
			options, err := loadOptions()
			if err != nil {
				return err
			}
			alphabet, err := loadAlphabet()
			if err != nil {
				return err
			}

			ri, err := leif.NewReverseIndex(options)
			if err != nil {
				return err
			}
			defer ri.Close()

			return leif.Unindex(alphabet, ri, where)
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "output directory")
	return cmd
}
