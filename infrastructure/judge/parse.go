package judge

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// judgeResponse is the structured verdict the model is instructed to emit.
type judgeResponse struct {
	// Score is the 0-100 rating for the submission.
	Score float64 `json:"score"`

	// IsValid is the overall pass/fail decision.
	IsValid bool `json:"isValid"`

	// Confidence is the model's self-reported certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// Reasoning explains the verdict.
	Reasoning string `json:"reasoning"`

	// AuthenticityConcern describes suspected synthetic or manipulated
	// imagery, empty when none.
	AuthenticityConcern string `json:"authenticityConcern"`
}

// parseJudgeResponse extracts a structured verdict from free-form model
// output through three fallback tiers: fenced block, raw JSON scan, then
// regex field extraction. Total failure returns ok=false; the caller
// degrades to an invalid evaluation carrying the raw text, never an error.
func parseJudgeResponse(raw string) (judgeResponse, bool) {
	if block := extractFencedJSON(raw); block != "" {
		var resp judgeResponse
		if err := json.Unmarshal([]byte(block), &resp); err == nil {
			return resp, true
		}
	}

	if block := extractJSONObject(raw); block != "" {
		var resp judgeResponse
		if err := json.Unmarshal([]byte(block), &resp); err == nil {
			return resp, true
		}
	}

	return extractByRegex(raw)
}

// extractFencedJSON pulls the contents of a ```json fenced block, or a
// generic fenced block that starts with an object.
func extractFencedJSON(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}

	if idx := strings.Index(response, "```"); idx != -1 {
		rest := response[idx+3:]
		// Skip a language identifier line if present.
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	return ""
}

// extractJSONObject finds the first balanced JSON object in the response,
// tracking string and escape state so braces inside reasoning text don't
// break the match.
func extractJSONObject(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(response); i++ {
		char := response[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}

var (
	scoreRe      = regexp.MustCompile(`(?i)"?score"?\s*[:=]\s*(-?\d+(?:\.\d+)?)`)
	validRe      = regexp.MustCompile(`(?i)"?(?:isValid|valid)"?\s*[:=]\s*(true|false)`)
	confidenceRe = regexp.MustCompile(`(?i)"?confidence"?\s*[:=]\s*(-?\d+(?:\.\d+)?)`)
)

// extractByRegex is the last parse tier: recover the three numeric/boolean
// fields from arbitrary text. Reasoning becomes the raw response.
func extractByRegex(raw string) (judgeResponse, bool) {
	scoreMatch := scoreRe.FindStringSubmatch(raw)
	validMatch := validRe.FindStringSubmatch(raw)
	if scoreMatch == nil && validMatch == nil {
		return judgeResponse{}, false
	}

	var resp judgeResponse
	resp.Reasoning = strings.TrimSpace(raw)

	if scoreMatch != nil {
		if v, err := strconv.ParseFloat(scoreMatch[1], 64); err == nil {
			resp.Score = v
		}
	}
	if validMatch != nil {
		resp.IsValid = strings.EqualFold(validMatch[1], "true")
	}
	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			resp.Confidence = v
		}
	}

	return resp, true
}

// clampFloat restricts v to [lo, hi].
func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
