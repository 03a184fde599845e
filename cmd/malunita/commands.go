package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jay-Tejada/malunita/internal/config"
	"github.com/Jay-Tejada/malunita/internal/task"
)

// --- capture ---

var captureCmd = &cobra.Command{
	Use:   "capture <text>",
	Short: "Run a thought through the capture pipeline",
	Long: `Run a free-form thought through the capture pipeline.

Examples:
  malunita capture "email Sarah about the quarterly report tomorrow"
  malunita capture --bucket someday "learn woodworking"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		bucketHint, _ := cmd.Flags().GetString("bucket")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"text": text}
		if bucketHint != "" {
			req["bucket_hint"] = bucketHint
		}

		resp, err := client.post(cmd.Context(), "/captures", req)
		if err != nil {
			return err
		}

		var result struct {
			CaptureID      string           `json:"capture_id"`
			Candidates     []task.Candidate `json:"candidates"`
			Scores         []task.Score     `json:"scores"`
			Routing        task.Routing     `json:"routing"`
			OneThing       string           `json:"one_thing"`
			Clarifications []task.Question  `json:"clarifications"`
			UsedInference  bool             `json:"used_inference"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		scoreByID := make(map[string]task.Score, len(result.Scores))
		for _, s := range result.Scores {
			scoreByID[s.CandidateID] = s
		}

		for _, c := range result.Candidates {
			s := scoreByID[c.ID]
			line := fmt.Sprintf("%s  [%s / %s]  → %s", c.Title, s.Priority, s.Effort, result.Routing[c.ID])
			if c.ID == result.OneThing {
				fmt.Printf("%s %s\n", colorize(colorBold, "★"), line)
			} else {
				fmt.Printf("  %s\n", line)
			}
		}

		if len(result.Clarifications) > 0 {
			fmt.Println()
			for i, q := range result.Clarifications {
				fmt.Printf("%s %s\n", colorize(colorCyan, fmt.Sprintf("%d.", i+1)), q.Text)
			}
		}

		printSuccess("Captured %s", result.CaptureID)
		return nil
	},
}

func init() {
	captureCmd.Flags().String("bucket", "", "agenda bucket hint (today, tomorrow, this_week, upcoming, someday)")
}

// --- agenda ---

var agendaCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Show stored tasks grouped by bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/agenda")
		if err != nil {
			return err
		}

		var agenda map[string][]struct {
			ID       string
			Title    string
			Priority string
			Effort   string
			Score    float64
		}
		if err := decodeJSON(resp, &agenda); err != nil {
			return err
		}

		labels := []struct{ bucket, label string }{
			{"today", "Today"},
			{"tomorrow", "Tomorrow"},
			{"this_week", "This Week"},
			{"upcoming", "Upcoming"},
			{"someday", "Someday"},
		}
		empty := true
		for _, l := range labels {
			tasks := agenda[l.bucket]
			if len(tasks) == 0 {
				continue
			}
			empty = false
			fmt.Printf("\n%s\n", colorize(colorBold, l.label))
			for _, t := range tasks {
				fmt.Printf("  %s  %s [%s / %s] (%.1f)\n",
					colorize(colorCyan, t.ID[:8]), t.Title, t.Priority, t.Effort, t.Score)
			}
		}
		if empty {
			fmt.Println("Agenda is empty. Capture something first.")
		}
		return nil
	},
}

// --- focus ---

var focusCmd = &cobra.Command{
	Use:   "focus <task-id>",
	Short: "Record a task as today's ONE thing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/focus", map[string]string{"task_id": args[0]})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Focus recorded")
		return nil
	},
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary <capture-id>",
	Short: "Show the markdown summary of a capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		html, _ := cmd.Flags().GetBool("html")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/captures/" + args[0] + "/summary"
		if html {
			path += "?format=html"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		body, err := readBody(resp)
		if err != nil {
			return err
		}
		fmt.Println(body)
		return nil
	},
}

func init() {
	summaryCmd.Flags().Bool("html", false, "render the summary as HTML")
}

// --- learn ---

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Recompute learned preferences from recent feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/preferences/recompute", map[string]any{"force": force})
		if err != nil {
			return err
		}

		var result struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Status == "skipped" {
			printWarning("Recompute skipped: %s", result.Reason)
			return nil
		}
		printSuccess("Preferences recomputed")
		return nil
	},
}

func init() {
	learnCmd.Flags().Bool("force", false, "recompute even with few signals")
}

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show learned preferences as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/preferences")
		if err != nil {
			return err
		}

		var prefs any
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prefs)
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a document and queue it for capture processing",
	Long: `Import a document and queue it for capture processing.

Examples:
  malunita import --text "notes from the planning meeting"
  malunita import --url https://example.com/article
  malunita import --file ./notes.md --title "My notes"
  malunita import --pdf ./contract.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		pdfPath, _ := cmd.Flags().GetString("pdf")
		title, _ := cmd.Flags().GetString("title")

		if text == "" && url == "" && file == "" && pdfPath == "" {
			return fmt.Errorf("one of --text, --url, --file, or --pdf is required")
		}

		req := map[string]any{}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case url != "":
			req["type"] = "url"
			req["url"] = url
		case pdfPath != "":
			data, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("reading pdf: %w", err)
			}
			req["type"] = "pdf"
			req["content"] = base64.StdEncoding.EncodeToString(data)
			if title == "" {
				req["title"] = pdfPath
			}
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			req["type"] = "text"
			req["content"] = string(data)
			if title == "" {
				req["title"] = file
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/import", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued import %s", result["id"])
		return nil
	},
}

func init() {
	importCmd.Flags().String("text", "", "text content to import")
	importCmd.Flags().String("url", "", "URL to fetch and import")
	importCmd.Flags().String("file", "", "text file path to import")
	importCmd.Flags().String("pdf", "", "PDF file path to import")
	importCmd.Flags().String("title", "", "title for the document")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
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
