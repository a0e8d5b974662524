package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/recommend"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// ellipsize shortens s to n runes.
func ellipsize(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func writeAssistants(w io.Writer, as []catalog.Assistant) {
	if len(as) == 0 {
		fmt.Fprintln(w, "No assistants found.")
		return
	}
	for _, a := range as {
		fmt.Fprintf(w, "%s  %s\n", colorize(colorCyan, a.ID), colorize(colorBold, a.Title))
		if len(a.Tags) > 0 {
			fmt.Fprintf(w, "  Tags: %s\n", strings.Join(a.Tags, ", "))
		}
		if len(a.Roles) > 0 {
			fmt.Fprintf(w, "  Roles: %s\n", strings.Join(a.Roles, ", "))
		}
		if a.Description != "" {
			fmt.Fprintf(w, "  %s\n", ellipsize(a.Description, 160))
		}
	}
}

func writeResult(w io.Writer, res recommend.Result) {
	fmt.Fprintln(w, res.Message)
	if res.Reason != "" {
		fmt.Fprintf(w, "(%s)\n", res.Reason)
	}
	picked := make(map[string]bool, len(res.Picks))
	for _, id := range res.Picks {
		picked[id] = true
	}
	for i, s := range res.Ranked {
		mark := " "
		if picked[s.Assistant.ID] {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %d. %s  %s [score: %.3f]\n", mark, i+1,
			colorize(colorCyan, s.Assistant.ID), s.Assistant.Title, s.Score)
	}
}
