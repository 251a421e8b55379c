package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhaoo/catgpt/internal/config"
	"github.com/zhaoo/catgpt/internal/llm"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question grounded in your ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		showSources, _ := cmd.Flags().GetBool("sources")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/ask", map[string]string{"question": question})
		if err != nil {
			return err
		}

		var result struct {
			Answer string `json:"answer"`
			Chunks []struct {
				ID    string  `json:"id"`
				Text  string  `json:"text"`
				Score float32 `json:"score"`
			} `json:"chunks"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if showSources && len(result.Chunks) > 0 {
			fmt.Fprintln(os.Stderr)
			for _, c := range result.Chunks {
				printStatus("Source", "%.3f %s", c.Score, firstLine(c.Text))
			}
		}
		return nil
	},
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > 80 {
		return string(runes[:80]) + "..."
	}
	return s
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the upstream model (streaming)",
	Long: `Interactive chat with the upstream model.

Responses stream token by token. The conversation history is kept for the
session; retrieval is not involved, use "ask" for grounded answers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := llm.NewClient(cfg.Upstream.APIKey, cfg.Upstream.BaseURL)
		opts := llm.Options{Model: cfg.Upstream.Model}

		var history []llm.Message
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for {
			fmt.Fprint(os.Stderr, colorize(colorBold, "> "))
			if !scanner.Scan() {
				fmt.Fprintln(os.Stderr)
				return scanner.Err()
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
			if input == "/quit" || input == "/exit" {
				return nil
			}

			history = append(history, llm.Message{Role: llm.RoleUser, Content: input})

			stream := client.Stream(cmd.Context(), history, opts)
			var final string
			failed := false
			for ev := range stream.Events() {
				if ev.Done {
					if ev.Err != nil {
						printError("stream failed: %v", ev.Err)
						failed = true
					}
					final = ev.Content
					break
				}
				fmt.Print(ev.Delta)
			}
			fmt.Println()

			if failed {
				// Drop the failed turn so a retry starts clean.
				history = history[:len(history)-1]
				continue
			}
			history = append(history, llm.Message{Role: llm.RoleAssistant, Content: final})
		}
	},
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest content into the document index",
	Long: `Ingest content into the document index.

Examples:
  catgpt ingest --file ./notes.md
  catgpt ingest --dir ./docs
  catgpt ingest --url https://example.com/article
  catgpt ingest --text "deploys happen from the release branch"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		dir, _ := cmd.Flags().GetString("dir")
		url, _ := cmd.Flags().GetString("url")
		text, _ := cmd.Flags().GetString("text")

		var kind, location string
		set := 0
		for _, pair := range []struct{ k, v string }{
			{"file", file}, {"directory", dir}, {"webpage", url}, {"rawtext", text},
		} {
			if pair.v != "" {
				kind, location = pair.k, pair.v
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("exactly one of --file, --dir, --url, or --text is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/ingest", map[string]string{
			"kind":     kind,
			"location": location,
		})
		if err != nil {
			return err
		}

		var result struct {
			SourceID  string `json:"source_id"`
			Documents int    `json:"documents"`
			Chunks    int    `json:"chunks"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %d chunks from %d documents (source %s)",
			result.Chunks, result.Documents, result.SourceID)
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("sources", false, "print the retrieved chunks after the answer")

	ingestCmd.Flags().String("file", "", "file path to ingest")
	ingestCmd.Flags().String("dir", "", "directory to ingest recursively")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest")
	ingestCmd.Flags().String("text", "", "raw text to ingest")
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sources")
		if err != nil {
			return err
		}

		var sources []struct {
			ID        string `json:"id"`
			Kind      string `json:"kind"`
			Location  string `json:"location"`
			Chunks    int    `json:"chunks"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &sources); err != nil {
			return err
		}

		if len(sources) == 0 {
			fmt.Println("no sources ingested yet")
			return nil
		}
		for _, s := range sources {
			fmt.Printf("%s  %-9s  %4d chunks  %s\n", s.CreatedAt, s.Kind, s.Chunks, s.Location)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
