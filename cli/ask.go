package cli

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/memory"
)

func askCommand() *cli.Command {
	var (
		cfg          config
		memoriesFile string
		topK         int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "memories",
			Aliases:     []string{"m"},
			Usage:       "YAML file with a list of {text, emotion, timestamp} to load first",
			Sources:     cli.EnvVars("NIM_RECALL_MEMORIES"),
			Destination: &memoriesFile,
		},
		&cli.IntFlag{
			Name:        "k",
			Usage:       "Memories to retrieve for this question, 0 uses --top-k",
			Destination: &topK,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Load memories from a file and answer one question as JSON",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return goerr.New("question is required")
			}

			mgr, _, cleanup, err := cfg.newManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if memoriesFile != "" {
				if err := loadMemories(ctx, mgr.Store(), memoriesFile); err != nil {
					return err
				}
			}

			answer, err := mgr.Ask(ctx, question, int(topK))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.Root().Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(core.NewAskResponse(answer)); err != nil {
				return goerr.Wrap(err, "failed to write answer")
			}
			return nil
		},
	}
}

// loadMemories adds each entry of a YAML list to store, in file order.
func loadMemories(ctx context.Context, store *memory.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return goerr.Wrap(err, "failed to read memories file", goerr.V("path", path))
	}

	var entries []core.AddMemoryInput
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return goerr.Wrap(err, "failed to parse memories file", goerr.V("path", path))
	}

	for i, e := range entries {
		if err := store.AddMemory(ctx, e.Text, e.Emotion, e.Timestamp); err != nil {
			return goerr.Wrap(err, "failed to add memory", goerr.V("path", path), goerr.V("index", i))
		}
	}
	return nil
}
