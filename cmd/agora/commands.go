package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/agora/internal/api"
	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/config"
	"github.com/kalambet/agora/internal/recommend"
)

// splitLabels flattens repeated, comma-separated flag values.
func splitLabels(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// --- assistants ---

type assistantsQuery struct {
	tags    []string
	roles   []string
	search  string
	id      string
	refresh bool
	asJSON  bool
}

func (q assistantsQuery) path() string {
	v := url.Values{}
	for _, t := range q.tags {
		v.Add("tag", t)
	}
	for _, r := range q.roles {
		v.Add("role", r)
	}
	if q.search != "" {
		v.Set("q", q.search)
	}
	if q.id != "" {
		v.Set("id", q.id)
	}
	if q.refresh {
		v.Set("refresh", "true")
	}
	if len(v) == 0 {
		return "/assistants"
	}
	return "/assistants?" + v.Encode()
}

var assistantsCmd = &cobra.Command{
	Use:   "assistants",
	Short: "List catalog assistants matching filters",
	Long: `List catalog assistants matching filters.

Tags and roles match any of the given values; tags, roles and --search are
combined with AND. --id returns a single assistant and ignores other filters.

Examples:
  agora assistants --tag developer --tag data
  agora assistants --role engineer --search postgres
  agora assistants --id 42 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetStringSlice("tag")
		roles, _ := cmd.Flags().GetStringSlice("role")
		q := assistantsQuery{tags: splitLabels(tags), roles: splitLabels(roles)}
		q.search, _ = cmd.Flags().GetString("search")
		q.id, _ = cmd.Flags().GetString("id")
		q.refresh, _ = cmd.Flags().GetBool("refresh")
		q.asJSON, _ = cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runAssistants(cmd.Context(), client, os.Stdout, q)
	},
}

func runAssistants(ctx context.Context, client *apiClient, w io.Writer, q assistantsQuery) error {
	resp, err := client.get(ctx, q.path())
	if err != nil {
		return err
	}
	var as []catalog.Assistant
	if err := decodeJSON(resp, &as); err != nil {
		return err
	}
	if q.asJSON {
		return writeIndented(w, as)
	}
	writeAssistants(w, as)
	if v, ok := catalogVersion(resp); ok {
		fmt.Fprintf(w, "(catalog version %d)\n", v)
	}
	return nil
}

func init() {
	assistantsCmd.Flags().StringSlice("tag", nil, "match assistants with any of these tags")
	assistantsCmd.Flags().StringSlice("role", nil, "match assistants with any of these roles")
	assistantsCmd.Flags().String("search", "", "case-insensitive text in title or description")
	assistantsCmd.Flags().String("id", "", "show only this assistant")
	assistantsCmd.Flags().Bool("refresh", false, "reload the catalog first")
	assistantsCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- recommend ---

type recommendOptions struct {
	req    recommend.Request
	brief  string
	asJSON bool
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <description>",
	Short: "Recommend assistants for a description of what you need",
	Long: `Recommend assistants for a description of what you need.

Examples:
  agora recommend "I need help writing Python code"
  agora recommend "review our data model" --tag data --top-k 3
  agora recommend "help with this project" --brief ./brief.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts recommendOptions
		opts.req.Description = strings.Join(args, " ")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		roles, _ := cmd.Flags().GetStringSlice("role")
		opts.req.Tags = splitLabels(tags)
		opts.req.Roles = splitLabels(roles)
		opts.req.TopK, _ = cmd.Flags().GetInt("top-k")
		opts.brief, _ = cmd.Flags().GetString("brief")
		opts.asJSON, _ = cmd.Flags().GetBool("json")

		if strings.TrimSpace(opts.req.Description) == "" && opts.brief == "" {
			return fmt.Errorf("a description or --brief is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runRecommend(cmd.Context(), client, os.Stdout, opts)
	},
}

func runRecommend(ctx context.Context, client *apiClient, w io.Writer, opts recommendOptions) error {
	const path = "/assistants/recommend"

	var (
		resp *http.Response
		err  error
	)
	if opts.brief != "" {
		fields := map[string][]string{
			"description": {opts.req.Description},
			"tags":        opts.req.Tags,
			"roles":       opts.req.Roles,
		}
		if opts.req.TopK > 0 {
			fields["top_k"] = []string{strconv.Itoa(opts.req.TopK)}
		}
		resp, err = client.postBrief(ctx, path, fields, opts.brief)
	} else {
		resp, err = client.post(ctx, path, opts.req)
	}
	if err != nil {
		return err
	}

	var res recommend.Result
	if err := decodeJSON(resp, &res); err != nil {
		return err
	}
	if opts.asJSON {
		return writeIndented(w, res)
	}
	writeResult(w, res)
	return nil
}

func init() {
	recommendCmd.Flags().StringSlice("tag", nil, "restrict candidates to any of these tags")
	recommendCmd.Flags().StringSlice("role", nil, "restrict candidates to any of these roles")
	recommendCmd.Flags().Int("top-k", 0, "shortlist size (server default when 0)")
	recommendCmd.Flags().String("brief", "", "PDF, HTML or text file describing the need")
	recommendCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- catalog ---

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect or reload the assistant catalog",
}

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog version, size and facets",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runCatalogStatus(cmd.Context(), client, os.Stdout)
	},
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the catalog from upstream",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := runCatalogRefresh(cmd.Context(), client)
		if err != nil {
			return err
		}
		printSuccess("Catalog version %d loaded with %d assistants", st.Version, st.Count)
		return nil
	},
}

func runCatalogStatus(ctx context.Context, client *apiClient, w io.Writer) error {
	resp, err := client.get(ctx, "/catalog")
	if err != nil {
		return err
	}
	var st api.CatalogStatus
	if err := decodeJSON(resp, &st); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Version:"), st.Version)
	fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Assistants:"), st.Count)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Fetched:"), st.FetchedAt.Format("2006-01-02 15:04:05 MST"))
	writeFacets(w, "Tags", st.Tags)
	writeFacets(w, "Roles", st.Roles)
	return nil
}

func writeFacets(w io.Writer, label string, facets []catalog.Facet) {
	if len(facets) == 0 {
		return
	}
	parts := make([]string, len(facets))
	for i, f := range facets {
		parts[i] = fmt.Sprintf("%s (%d)", f.Name, f.Count)
	}
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, label+":"), strings.Join(parts, ", "))
}

func runCatalogRefresh(ctx context.Context, client *apiClient) (api.CatalogStatus, error) {
	var st api.CatalogStatus
	resp, err := client.post(ctx, "/catalog/refresh", nil)
	if err != nil {
		return st, err
	}
	err = decodeJSON(resp, &st)
	return st, err
}

func init() {
	catalogCmd.AddCommand(catalogStatusCmd)
	catalogCmd.AddCommand(catalogRefreshCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage recommendation history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runHistoryList(cmd.Context(), client, os.Stdout, limit)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored recommendation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/recommendations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var entry recommend.HistoryEntry
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}
		return writeIndented(os.Stdout, entry)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored recommendation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/recommendations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted recommendation %s", args[0])
		return nil
	},
}

func runHistoryList(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	resp, err := client.get(ctx, fmt.Sprintf("/recommendations?limit=%d", limit))
	if err != nil {
		return err
	}

	var entries []recommend.HistoryEntry
	if err := decodeJSON(resp, &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No recommendations found.")
		return nil
	}

	for _, e := range entries {
		id := e.Result.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s  %s  %-15s  %s\n",
			colorize(colorCyan, id),
			e.Result.CreatedAt.Format("2006-01-02 15:04"),
			e.Result.Mode,
			ellipsize(e.Request.Description, 80),
		)
	}
	return nil
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of recommendations to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
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
		writeConfig(os.Stdout, config.ShowAll(cfg))
		return nil
	},
}

func writeConfig(w io.Writer, keys []config.KeyInfo) {
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
	}
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
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

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
