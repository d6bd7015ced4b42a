package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/becomeliminal/nim-recall/memory"
)

func replCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "repl",
		Usage: "Interactive add/ask loop",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			mgr, _, cleanup, err := cfg.newManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          actionPrompt,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			return runREPL(ctx, rl, c.Root().Writer, mgr)
		},
	}
}

const actionPrompt = "Action (add/ask/list/exit): "

// lineReader is the part of *readline.Instance the loop needs.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// runREPL reads actions until "exit", EOF or interrupt.
func runREPL(ctx context.Context, in lineReader, w io.Writer, mgr *memory.Manager) error {
	fmt.Fprintln(w, "Memory Recall Assistant")
	fmt.Fprintln(w, "Type 'add' to store a memory, 'ask' to query, 'list' to show memories, or 'exit' to quit.")
	fmt.Fprintln(w)

	store := mgr.Store()

	for {
		in.SetPrompt(actionPrompt)
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				fmt.Fprintln(w, "Goodbye!")
				return nil
			}
			return goerr.Wrap(err, "failed to read input")
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "add":
			text, ok := prompt(in, "Enter memory: ")
			if !ok {
				continue
			}
			emotion, _ := prompt(in, "How did it feel? (optional): ")
			if err := store.AddMemory(ctx, text, emotion, ""); err != nil {
				fmt.Fprintf(w, "Could not add memory: %v\n", err)
				continue
			}
			fmt.Fprintln(w, "Memory added.")

		case "ask":
			question, ok := prompt(in, "Ask a question: ")
			if !ok {
				continue
			}
			answer, err := mgr.Ask(ctx, question, 0)
			if err != nil {
				fmt.Fprintf(w, "Could not answer: %v\n", err)
				continue
			}
			if !answer.Found() {
				fmt.Fprintln(w, "No memories stored yet.")
				continue
			}
			fmt.Fprintf(w, "\nAssistant: %s\n\n", answer.Text)

		case "list":
			records, err := store.ListMemories(ctx)
			if err != nil {
				fmt.Fprintf(w, "Could not list memories: %v\n", err)
				continue
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "No memories stored yet.")
				continue
			}
			for _, r := range records {
				line := fmt.Sprintf("%s  %s", r.Timestamp.Format("2006-01-02 15:04"), r.Text)
				if r.Emotion != "" {
					line += fmt.Sprintf(" (feeling: %s)", r.Emotion)
				}
				fmt.Fprintln(w, line)
			}

		case "exit", "quit":
			fmt.Fprintln(w, "Goodbye!")
			return nil

		case "":
			continue

		default:
			fmt.Fprintln(w, "Invalid choice. Use 'add', 'ask', 'list' or 'exit'.")
		}
	}
}

// prompt asks for one line. It reports false on blank input or read error.
func prompt(in lineReader, p string) (string, bool) {
	in.SetPrompt(p)
	line, err := in.Readline()
	if err != nil {
		return "", false
	}
	line = strings.TrimSpace(line)
	return line, line != ""
}
