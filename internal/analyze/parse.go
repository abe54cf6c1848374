package analyze

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-monitor/internal/model"
)

// CleanJSON strips markdown fences, extracts the JSON object or array, and
// repairs truncation. Model output is never trusted to be bare JSON.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(text, "]"); end > arrStart {
			text = text[arrStart : end+1]
		}
	} else if objStart >= 0 {
		if end := strings.LastIndex(text, "}"); end > objStart {
			text = text[objStart : end+1]
		}
	}

	return repairTruncatedJSON(strings.TrimSpace(text))
}

// repairTruncatedJSON closes any unclosed brackets or braces left by a
// response cut off at the token limit.
func repairTruncatedJSON(text string) string {
	if len(text) == 0 {
		return text
	}

	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		text += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			text += "}"
		} else {
			text += "]"
		}
	}
	return text
}

type toneResponse struct {
	Tone        string `json:"tone"`
	Explanation string `json:"explanation"`
}

// ParseTone decodes a {tone, explanation} response. Parse failures and
// unknown tone values fall back to neutral with an explanation recorded,
// never an error: tone is a best-effort field.
func ParseTone(raw string) (model.Tone, string) {
	var resp toneResponse
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &resp); err != nil {
		return model.ToneNeutral, "Unable to determine tone"
	}
	tone, _ := model.ParseTone(resp.Tone)
	explanation := resp.Explanation
	if explanation == "" {
		explanation = "Unable to determine tone"
	}
	return tone, explanation
}

// ParseQA decodes a JSON array of question/answer pairs, capped at max.
func ParseQA(raw string, max int) ([]model.QA, error) {
	var pairs []model.QA
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &pairs); err != nil {
		return nil, eris.Wrap(err, "analyze: parse qa response")
	}
	if max > 0 && len(pairs) > max {
		pairs = pairs[:max]
	}
	return pairs, nil
}
