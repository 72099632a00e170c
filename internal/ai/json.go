package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model output is rarely clean JSON. These patterns cover the usual noise.
var (
	codeFenceStartRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// maxParseInput bounds how much model output is considered.
const maxParseInput = 1 << 20

// ParseResult is the outcome of a tolerant JSON parse.
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// Parse decodes a JSON object from model output, trying progressively
// looser strategies: as-is, without code fences, with trailing commas and
// comments removed, and finally the outermost {...} in surrounding prose.
func Parse[T any](text string) ParseResult[T] {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return failed[T]("empty input")
	}
	if len(trimmed) > maxParseInput {
		return failed[T]("input too large")
	}

	candidates := []string{trimmed}
	withoutFences := removeCodeFences(trimmed)
	cleaned := cleanupJSON(withoutFences)
	candidates = append(candidates, withoutFences, cleaned)
	if extracted := objectRegex.FindString(cleaned); extracted != "" {
		candidates = append(candidates, extracted, cleanupJSON(extracted))
	}

	var lastErr error
	for _, c := range candidates {
		var v T
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			lastErr = err
			continue
		}
		return ParseResult[T]{Success: true, Data: v}
	}
	return failed[T]("all JSON parsing strategies failed: " + lastErr.Error())
}

func removeCodeFences(text string) string {
	cleaned := codeFenceStartRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		if m := codeFenceAnyRegex.FindStringSubmatch(text); m != nil {
			cleaned = m[1]
		}
	}
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.Trim(cleaned, "`")
	}
	return strings.TrimSpace(cleaned)
}

func cleanupJSON(text string) string {
	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func failed[T any](msg string) ParseResult[T] {
	return ParseResult[T]{Error: msg}
}
