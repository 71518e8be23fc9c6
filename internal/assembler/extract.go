package assembler

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/cuecard/internal/events"
)

// MinContentLength is the minimum number of characters, after trimming, a
// note's content must have.
const MinContentLength = 10

// Note is the body of a validated note.
type Note struct {
	Content  string
	Category events.Category
}

// Result is the outcome of validating or extracting a note. Exactly one of
// Note (OK == true) or Reason (OK == false) is meaningful.
type Result struct {
	Note   Note
	OK     bool
	Reason string
}

func accept(content string, c events.Category) Result {
	return Result{Note: Note{Content: content, Category: c}, OK: true}
}

func reject(reason string) Result { return Result{Reason: reason} }

var (
	fencedBlockRe    = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n?(.*?)```")
	embeddedObjectRe = regexp.MustCompile(`(?s)\{.*?"category".*?\}`)
	fenceMarkerRe    = regexp.MustCompile("(?i)```(?:json)?")
	contentValueRe   = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// Extract runs the full pipeline on the text of one completed turn: candidate
// selection, escape repair, parsing, shape validation and, when all of that
// fails, the plain-text fallback.
func Extract(text string) Result {
	candidate := selectCandidate(text)
	repaired := repairEscapes(candidate)

	var value any
	if err := json.Unmarshal([]byte(repaired), &value); err == nil {
		if r := validateShape(value); r.OK {
			return r
		}
	}
	return plainTextFallback(text)
}

// selectCandidate returns the most plausible JSON object text inside text.
func selectCandidate(text string) string {
	if c, ok := tryFencedBlock(text); ok {
		return c
	}
	if c, ok := tryEmbeddedObject(text); ok {
		return c
	}
	if c, ok := tryBalancedBraces(text); ok {
		return c
	}
	return strings.TrimSpace(text)
}

// tryFencedBlock returns the content of the first ```json fenced block.
func tryFencedBlock(text string) (string, bool) {
	m := fencedBlockRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// tryEmbeddedObject returns the first shortest {...} span mentioning a
// "category" key.
func tryEmbeddedObject(text string) (string, bool) {
	m := embeddedObjectRe.FindString(text)
	return m, m != ""
}

// tryBalancedBraces returns the span from the first '{' to its matching '}'.
// Braces inside JSON strings are ignored. Unbalanced input yields false.
func tryBalancedBraces(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
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

// repairEscapes collapses \_ to _ and drops every backslash that does not
// start a valid JSON escape.
func repairEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			break
		}
		next := s[i+1]
		switch next {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
			b.WriteByte(c)
			b.WriteByte(next)
			i++
		case '_':
			b.WriteByte('_')
			i++
		}
	}
	return b.String()
}

// validateShape checks a decoded JSON value against the note schema.
func validateShape(value any) Result {
	obj, ok := value.(map[string]any)
	if !ok {
		return reject("not an object")
	}

	raw, ok := obj["content"].(string)
	if !ok {
		return reject("missing content")
	}
	content := strings.TrimSpace(raw)
	if utf8.RuneCountInString(content) < MinContentLength {
		return reject("content too short")
	}

	if rc, present := obj["category"]; present {
		s, _ := rc.(string)
		c, ok := events.ParseCategory(s)
		if !ok {
			return reject("unknown category")
		}
		return accept(content, c)
	}
	return accept(content, inferCategory(obj))
}

// inferCategory derives a category from auxiliary fields.
func inferCategory(obj map[string]any) events.Category {
	if _, ok := obj["advice"]; ok {
		return events.CategoryAdvice
	}
	for _, k := range []string{"followUp", "follow-up", "follow_up"} {
		if _, ok := obj[k]; ok {
			return events.CategoryFollowUp
		}
	}
	return events.CategoryAnswer
}

// plainTextFallback salvages readable text from output that did not parse
// into a valid note. Results are always answers.
func plainTextFallback(text string) Result {
	cleaned := strings.TrimSpace(fenceMarkerRe.ReplaceAllString(text, ""))

	if strings.Contains(cleaned, `"content"`) && strings.Contains(cleaned, `"category"`) {
		if m := contentValueRe.FindStringSubmatch(cleaned); m != nil {
			cleaned = unescapeString(m[1])
		}
	}

	cleaned = strings.TrimSpace(cleaned)
	switch {
	case cleaned == "", cleaned == "{}":
		return reject("empty")
	case utf8.RuneCountInString(cleaned) < MinContentLength:
		return reject("content too short")
	}
	return accept(cleaned, events.CategoryAnswer)
}

// unescapeString decodes the body of a JSON string literal. Invalid escapes
// are repaired first; anything still undecodable is returned as is.
func unescapeString(body string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+body+`"`), &out); err == nil {
		return out
	}
	if err := json.Unmarshal([]byte(`"`+repairEscapes(body)+`"`), &out); err == nil {
		return out
	}
	return body
}
