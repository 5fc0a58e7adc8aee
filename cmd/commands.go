package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"docqa/internal/helper"
	"docqa/internal/rag"
)

const previewRunes = 160

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the chunks most relevant to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		out := s.index.SearchDetailed(cmd.Context(), strings.Join(args, " "), flagTopK)
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the loaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		return s.ask(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), flagRender)
	},
}

var (
	flagNoLLM  bool
	flagRender bool
	flagWrap   int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question answering over the loaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		return s.chat(cmd.Context(), os.Stdin, cmd.OutOrStdout(), !flagNoLLM)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index statistics after loading documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		return helper.PrettyPrint(cmd.OutOrStdout(), s.index.Stats())
	},
}

func init() {
	chatCmd.Flags().BoolVar(&flagNoLLM, "no-llm", false, "print retrieved chunks instead of generating answers")
	askCmd.Flags().BoolVar(&flagRender, "render", false, "render the answer as markdown once it is complete")
	askCmd.Flags().IntVar(&flagWrap, "wrap", 100, "word wrap width for --render")
}

func printOutcome(w io.Writer, out rag.Outcome) {
	if out.Reason != "" {
		fmt.Fprintf(w, "(%s search: %s)\n", out.Mode, out.Reason)
	}
	if len(out.Hits) == 0 {
		fmt.Fprintln(w, "No relevant passages found.")
		return
	}
	for i, h := range out.Hits {
		fmt.Fprintf(w, "%d. [%s | %.1f%%] %s\n", i+1, h.SourceName, h.Score*100, helper.Truncate(h.Text, previewRunes))
	}
}

// ask streams the answer to w token by token. With render set the answer is
// buffered and printed once through the markdown renderer.
func (s *session) ask(ctx context.Context, w io.Writer, question string, render bool) error {
	c, err := s.answerer()
	if err != nil {
		return err
	}
	hits := s.index.Search(ctx, question, flagTopK)
	hasDocs := s.index.Stats().TotalChunks > 0

	var onToken func(string)
	if !render {
		onToken = func(tok string) { fmt.Fprint(w, tok) }
	}
	resp, err := c.Answer(ctx, question, hits, hasDocs, onToken)
	if err != nil {
		return err
	}
	if render {
		out, err := renderMarkdown(resp.Content, flagWrap)
		if err != nil {
			return err
		}
		fmt.Fprint(w, out)
	} else {
		fmt.Fprintln(w)
	}
	if resp.Source != "" {
		fmt.Fprintf(w, "\nSources: %s\n", resp.Source)
	}
	return nil
}

const chatHelp = `Commands:
  :load <file>  ingest a document
  :stats        show index statistics
  :reset        clear the index
  :quit         exit`

// chat runs the REPL until :quit or end of input. With generate false the
// retrieved passages are printed instead of an answer.
func (s *session) chat(ctx context.Context, in io.Reader, w io.Writer, generate bool) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(w, "docqa chat (:help for commands)")

	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case ":quit", ":exit":
			return nil
		case ":help":
			fmt.Fprintln(w, chatHelp)
		case ":stats":
			if err := helper.PrettyPrint(w, s.index.Stats()); err != nil {
				return err
			}
		case ":reset":
			s.index.Reset(ctx)
			fmt.Fprintln(w, "Index cleared.")
		case ":load":
			if err := s.ingestFile(ctx, strings.TrimSpace(arg)); err != nil {
				fmt.Fprintf(w, "Error: %v\n", err)
				continue
			}
			st := s.index.Stats()
			fmt.Fprintf(w, "Loaded. %d chunks from %d sources.\n", st.TotalChunks, len(st.Sources))
		default:
			if !generate {
				printOutcome(w, s.index.SearchDetailed(ctx, line, flagTopK))
				continue
			}
			if err := s.ask(ctx, w, line, false); err != nil {
				fmt.Fprintf(w, "Error: %v\n", err)
			}
		}
	}
	return scanner.Err()
}

func renderMarkdown(md string, wrap int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(wrap, 20)),
	)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return r.Render(md)
}
