// Package extract recovers a JSON object from free-form model output.
package extract

import (
	"encoding/json"
	"errors"
	"strings"

	"palmreader/internal/domain"
)

// ErrRefusal marks output where the model declined in natural language.
var ErrRefusal = errors.New("extract: model refused")

const (
	refusalMessage  = "The AI was unable to analyze the input. Please make sure it is clear and complete, then try again."
	rejectedMessage = "The input could not be analyzed. Please check it and try again."
	genericMessage  = "The reading could not be interpreted. Please try again."
	refusalWindow   = 200
)

var refusalIndicators = []string{
	"i'm unable", "i am unable", "i cannot", "i can't",
	"unable to analyze", "cannot analyze", "can't analyze",
	"sorry, i", "i apologize", "i'm sorry",
	"not a hand", "not a palm",
}

// Extract returns the first JSON object recoverable from raw. The returned
// error is a *domain.Failure of kind ErrUnparseable or ErrModelRejected.
func Extract(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, domain.NewFailure(domain.ErrUnparseable, genericMessage, errors.New("extract: empty output"))
	}

	obj, ok := parseObject(text)
	if !ok {
		obj, ok = fromCandidates(text)
	}
	if !ok {
		if IsRefusal(text) && !strings.ContainsAny(text, "{}") {
			return nil, domain.NewFailure(domain.ErrUnparseable, refusalMessage, ErrRefusal)
		}
		return nil, domain.NewFailure(domain.ErrUnparseable, genericMessage, errors.New("extract: no JSON object found"))
	}
	if hasErrorKey(obj) {
		return nil, domain.NewFailure(domain.ErrModelRejected, rejectedMessage, errors.New("extract: model returned an error object"))
	}
	return obj, nil
}

// IsRefusal reports whether the opening of text reads like a refusal.
func IsRefusal(text string) bool {
	head := strings.ToLower(strings.TrimSpace(text))
	if len(head) > refusalWindow {
		head = head[:refusalWindow]
	}
	for _, indicator := range refusalIndicators {
		if strings.Contains(head, indicator) {
			return true
		}
	}
	return false
}

func fromCandidates(text string) (map[string]any, bool) {
	candidates := make([]string, 0, 2)
	if fenced, ok := fencedBlock(text); ok {
		if obj, ok := parseObject(fenced); ok {
			return obj, true
		}
		candidates = append(candidates, fenced)
	}
	candidates = append(candidates, text)

	for _, c := range candidates {
		span, ok := balancedObject(c)
		if !ok {
			continue
		}
		if obj, ok := parseObject(span); ok {
			return obj, true
		}
		if obj, ok := parseObject(stripTrailingCommas(span)); ok {
			return obj, true
		}
	}
	return nil, false
}

func parseObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func hasErrorKey(obj map[string]any) bool {
	v, ok := obj["error"]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) != ""
	case bool:
		return val
	}
	return true
}

// fencedBlock returns the contents of the first ``` fence, dropping an
// optional language tag on the opening line.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || isLanguageTag(tag) {
			body = body[nl+1:]
		}
	} else {
		body = strings.TrimPrefix(strings.TrimPrefix(body, "json"), "JSON")
	}
	end := strings.Index(body, "```")
	if end < 0 {
		return strings.TrimSpace(body), true
	}
	return strings.TrimSpace(body[:end]), true
}

func isLanguageTag(tag string) bool {
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// balancedObject returns the first {...} span whose braces balance, skipping
// braces inside string literals.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// stripTrailingCommas drops commas that directly precede '}' or ']' outside
// string literals.
func stripTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
