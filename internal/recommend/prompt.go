package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/agora/internal/engine"
	"github.com/kalambet/agora/internal/similarity"
)

// SystemPrompt is sent ahead of every recommendation prompt.
const SystemPrompt = "You help people choose among conversational assistants. " +
	"Only recommend assistants from the provided shortlist and refer to them by title. " +
	`Reply with a JSON object: {"recommended_ids": [<ids>], "message": "<short explanation>"}.`

const maxEntryDescription = 400 // characters per shortlisted description

// ReplySchema constrains structured replies from local models.
func ReplySchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"recommended_ids": {
				Type:        "array",
				Description: "ids of the best fitting shortlisted assistants, best first",
				Items:       &engine.SchemaProperty{Type: "string"},
			},
			"message": {Type: "string", Description: "explanation addressed to the user"},
		},
		Required: []string{"recommended_ids", "message"},
	}
}

// EstimateTokens approximates a token count at four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// buildPrompt lists the shortlist, best first, under the user's need.
// Entries that would exceed maxTokens are dropped from the tail; the
// description is truncated when it alone would take more than half. The
// top entry is always listed, reduced to id and title when its full form
// does not fit.
func buildPrompt(description string, shortlist []similarity.Scored, maxTokens int) string {
	description = truncate(description, maxTokens*4/2)

	var sb strings.Builder
	sb.WriteString("A user is looking for an assistant.\n\n[Need]\n")
	sb.WriteString(description)
	sb.WriteString("\n\n[Shortlist]\n")
	footer := "\nPick the assistants that best fit the need and explain why in two or three sentences.\n"

	remaining := maxTokens - EstimateTokens(sb.String()) - EstimateTokens(footer)
	for i, s := range shortlist {
		entry := formatEntry(s)
		tokens := EstimateTokens(entry)
		if tokens > remaining && i == 0 {
			entry = compactEntry(s)
			tokens = EstimateTokens(entry)
		} else if tokens > remaining {
			break
		}
		sb.WriteString(entry)
		remaining -= tokens
	}
	sb.WriteString(footer)
	return sb.String()
}

func formatEntry(s similarity.Scored) string {
	a := s.Assistant
	var sb strings.Builder
	fmt.Fprintf(&sb, "- id: %s\n  title: %s\n  score: %.3f\n", a.ID, a.Title, s.Score)
	if d := truncate(a.Description, maxEntryDescription); d != "" {
		fmt.Fprintf(&sb, "  description: %s\n", d)
	}
	if len(a.Tags) > 0 {
		fmt.Fprintf(&sb, "  tags: %s\n", strings.Join(a.Tags, ", "))
	}
	return sb.String()
}

func compactEntry(s similarity.Scored) string {
	return fmt.Sprintf("- id: %s\n  title: %s\n", s.Assistant.ID, truncate(s.Assistant.Title, 80))
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "..."
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

type reply struct {
	RecommendedIDs []string `json:"recommended_ids"`
	Message        string   `json:"message"`
}

// parseReply extracts the message and picks from a model reply. Small
// models often wrap JSON in code fences or surround it with prose, so the
// first {...} span is decoded; a reply with no JSON is taken as the
// message itself. Picks not on the shortlist are dropped.
func parseReply(text string, shortlist []similarity.Scored) (message string, picks []string) {
	s := strings.TrimSpace(text)
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	var r reply
	if start == -1 || end <= start || json.Unmarshal([]byte(s[start:end+1]), &r) != nil {
		return strings.TrimSpace(text), nil
	}

	allowed := make(map[string]bool, len(shortlist))
	for _, sc := range shortlist {
		allowed[sc.Assistant.ID] = true
	}
	seen := make(map[string]bool)
	for _, id := range r.RecommendedIDs {
		id = strings.TrimSpace(id)
		if allowed[id] && !seen[id] {
			seen[id] = true
			picks = append(picks, id)
		}
	}
	return strings.TrimSpace(r.Message), picks
}
