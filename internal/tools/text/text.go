// Package text implements the TextUppercase, TextLowercase and
// TextAnalyze standard tools. All three take the raw string input
// directly; no JSON envelope is needed since each operates on exactly
// one string.
package text

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/agentkernel/core/pkg/models"
)

// UppercaseTool implements TextUppercase.
type UppercaseTool struct{}

func NewUppercaseTool() *UppercaseTool { return &UppercaseTool{} }

func (t *UppercaseTool) Name() models.ToolName { return models.ToolName(models.TextUppercase) }

func (t *UppercaseTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	return models.Succeed(string(models.TextUppercase), strings.ToUpper(input), time.Since(start))
}

// LowercaseTool implements TextLowercase.
type LowercaseTool struct{}

func NewLowercaseTool() *LowercaseTool { return &LowercaseTool{} }

func (t *LowercaseTool) Name() models.ToolName { return models.ToolName(models.TextLowercase) }

func (t *LowercaseTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	return models.Succeed(string(models.TextLowercase), strings.ToLower(input), time.Since(start))
}

// AnalyzeTool implements TextAnalyze: word/line/rune counts and basic
// character-class tallies.
type AnalyzeTool struct{}

func NewAnalyzeTool() *AnalyzeTool { return &AnalyzeTool{} }

func (t *AnalyzeTool) Name() models.ToolName { return models.ToolName(models.TextAnalyze) }

func (t *AnalyzeTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()

	words := len(strings.Fields(input))
	lines := 1
	if input != "" {
		lines = strings.Count(input, "\n") + 1
	}
	runes := 0
	letters, digits, spaces := 0, 0, 0
	for _, r := range input {
		runes++
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
			spaces++
		}
	}

	payload, err := json.Marshal(map[string]any{
		"words":   words,
		"lines":   lines,
		"runes":   runes,
		"letters": letters,
		"digits":  digits,
		"spaces":  spaces,
	})
	if err != nil {
		return models.Failure(string(models.TextAnalyze), "ExecutionFailed", time.Since(start))
	}
	return models.Succeed(string(models.TextAnalyze), string(payload), time.Since(start))
}
