package llm

import (
	"errors"
	"strings"
)

// ErrNoJSONFound is returned when raw model output contains no opening brace
// outside of a string literal.
var ErrNoJSONFound = errors.New("no JSON object found in model output")

const fence = "```"

// Extract isolates the JSON object contained in raw model output.
//
// Surrounding prose and a leading markdown fence are tolerated. When the output
// ends before the object is closed, the missing closers are appended so the
// candidate can still be parsed. The repair assumes truncation happened at a value
// boundary; output cut mid-token may parse into something semantically different.
func Extract(raw string) (string, error) {
	candidate, _, err := extract(raw)
	return candidate, err
}

// extract is Extract that also reports whether closers had to be appended.
func extract(raw string) (candidate string, repaired bool, err error) {
	text := stripFence(strings.TrimSpace(raw))

	start := firstObjectStart(text)
	if start < 0 {
		return "", false, ErrNoJSONFound
	}

	var sc scanner
	for i := start; i < len(text); i++ {
		sc.feed(text[i])
		if sc.closed() {
			return text[start : i+1], false, nil
		}
	}

	return repairTruncated(text[start:]), true, nil
}

// stripFence returns the body of the first fenced section when text starts with
// a fence. The info string on the opening line ("json", "JSON") is dropped. An
// unterminated fence yields everything after the opener.
func stripFence(text string) string {
	if !strings.HasPrefix(text, fence) {
		return text
	}

	body := strings.TrimLeft(text, "`")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if info := strings.TrimSpace(body[:nl]); !strings.ContainsAny(info, "{[\"") {
			body = body[nl+1:]
		}
	}

	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// firstObjectStart returns the index of the first '{' that is not inside a
// quoted string, or -1.
func firstObjectStart(text string) int {
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			return i
		}
	}
	return -1
}

// repairTruncated closes whatever the candidate left open, innermost first.
// A dangling string is terminated, a dangling key gets a null value and a
// partial literal is completed before the closers are appended.
func repairTruncated(candidate string) string {
	var sc scanner
	for i := 0; i < len(candidate); i++ {
		sc.feed(candidate[i])
	}

	s := candidate
	if sc.inString {
		if sc.escaped {
			s = s[:len(s)-1]
		}
		s += `"`
	} else {
		s = completeTrailingToken(strings.TrimRightFunc(s, isSpace))
	}

	if sc.innermost() == '{' && endsWithKey(s, sc.lastString) {
		s += ": null"
	}

	var b strings.Builder
	b.Grow(len(s) + sc.depth())
	b.WriteString(s)
	for i := sc.depth() - 1; i >= 0; i-- {
		if sc.stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// completeTrailingToken fixes the tail of unquoted text cut between or inside
// scalar values: separators are dropped or given a value, partial literals are
// completed and dangling number parts are removed.
func completeTrailingToken(s string) string {
	s = strings.TrimRight(s, ".eE+-")
	s = strings.TrimRightFunc(s, isSpace)

	for strings.HasSuffix(s, ",") {
		s = strings.TrimRightFunc(strings.TrimSuffix(s, ","), isSpace)
	}
	if strings.HasSuffix(s, ":") {
		return s + " null"
	}

	word := trailingWord(s)
	if word == "" {
		return s
	}
	for _, lit := range []string{"true", "false", "null"} {
		if strings.HasPrefix(lit, word) {
			return s + lit[len(word):]
		}
	}
	return s
}

func trailingWord(s string) string {
	i := len(s)
	for i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z' {
		i--
	}
	return s[i:]
}

// endsWithKey reports whether s ends with a string literal, starting at
// stringStart, that sits in key position of an object.
func endsWithKey(s string, stringStart int) bool {
	if !strings.HasSuffix(s, `"`) || stringStart <= 0 || stringStart >= len(s)-1 {
		return false
	}
	before := strings.TrimRightFunc(s[:stringStart], isSpace)
	return strings.HasSuffix(before, "{") || strings.HasSuffix(before, ",")
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\r' || r == '\t'
}
