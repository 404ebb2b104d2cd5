package application

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smckay/releasedigest/internal/domain/model"
)

// systemPrompt is the persona under which all digest completions run.
const systemPrompt = "You are a seasoned software engineer."

// maxResponseTokens caps completion length per provider call.
const maxResponseTokens = 4096

// TokenEstimator estimates the token count of a text for prompt budgeting.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// releaseNote is the JSON shape of a single release inside a prompt.
type releaseNote struct {
	Time        string `json:"time"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// buildPrompt renders the summarization prompt for a batch of releases: the
// instruction followed by the releases serialized as JSON.
func buildPrompt(releases []model.Release, windowDays int, language string) (string, error) {
	notes := make([]releaseNote, 0, len(releases))
	for _, rel := range releases {
		notes = append(notes, releaseNote{
			Time:        rel.PublishedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Version:     rel.TagName,
			Description: rel.Body,
		})
	}

	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal release notes: %w", err)
	}

	return fmt.Sprintf(
		"Please extract and summarize the important revision content, version number, "+
			"and release time from the following GitHub releases JSON data for the past %d days. "+
			"Provide a concise summary in %s.\n\nData:\n%s",
		windowDays, language, data,
	), nil
}

// combinePrompt renders the merge prompt used when a window was summarized
// in multiple batches.
func combinePrompt(partials []string, windowDays int, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"The release history of a repository over the past %d days was summarized in %d parts. "+
			"Merge the partial summaries below into one concise summary in %s, "+
			"keeping version numbers and release times.\n",
		windowDays, len(partials), language,
	)

	for i, partial := range partials {
		fmt.Fprintf(&b, "\nPart %d:\n%s\n", i+1, partial)
	}

	return b.String()
}

// promptBudget returns the token budget for release data in a single request,
// leaving room for the instruction, the system prompt, and the response.
func promptBudget(contextTokens int) int {
	budget := contextTokens - 2*maxResponseTokens
	if budget < 1024 {
		budget = 1024
	}
	return budget
}

// batchReleases splits releases into consecutive batches whose estimated
// token counts each fit within budget. A single release larger than the
// budget has its body truncated so every release appears in some batch.
func batchReleases(releases []model.Release, budget int, est TokenEstimator) [][]model.Release {
	if len(releases) == 0 {
		return nil
	}

	var batches [][]model.Release
	var current []model.Release
	var currentTokens int

	for _, rel := range releases {
		tokens := est.EstimateTokens(rel.Body) + est.EstimateTokens(rel.TagName) + 32

		if tokens > budget {
			rel.Body = truncateToTokens(rel.Body, budget-64, est)
			tokens = est.EstimateTokens(rel.Body) + est.EstimateTokens(rel.TagName) + 32
		}

		if currentTokens+tokens > budget && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}

		current = append(current, rel)
		currentTokens += tokens
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// truncateToTokens trims text so its estimated token count fits the budget.
// Estimation is approximate, so the text is halved until it fits.
func truncateToTokens(text string, budget int, est TokenEstimator) string {
	if budget < 1 {
		return ""
	}

	for est.EstimateTokens(text) > budget && len(text) > 0 {
		text = strings.ToValidUTF8(text[:len(text)/2], "")
	}
	return text
}
