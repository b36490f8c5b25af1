// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sanitize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"querygate/cli/internal/docquery"
	"querygate/cli/internal/dsn"
)

var (
	fencePattern        = regexp.MustCompile("```[A-Za-z0-9_+-]*")
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespacePattern   = regexp.MustCompile(`\s+`)

	// db.<collection>.<op>(<args>)<chain>
	scriptPattern = regexp.MustCompile(`^db\.([A-Za-z_][\w-]*)\.([A-Za-z]+)\s*\((.*)$`)
	limitPattern  = regexp.MustCompile(`\.limit\s*\(\s*(\d+)\s*\)`)
	collPattern   = regexp.MustCompile(`\bdb\.([A-Za-z_][\w-]*)\.`)
)

// stripSurface removes formatting artifacts shared by both families.
func stripSurface(text string, family dsn.Family) string {
	out := fencePattern.ReplaceAllString(text, " ")
	out = blockCommentPattern.ReplaceAllString(out, " ")
	markers := []string{"//"}
	if family == dsn.Relational {
		markers = append(markers, "--")
	}
	out = stripLineComments(out, markers, family == dsn.Document)
	out = whitespacePattern.ReplaceAllString(out, " ")
	return trimTerminators(out)
}

// stripLineComments drops everything from a marker to the end of its line
// when the marker starts a line or follows whitespace. Quoted literals are
// copied untouched; backslash escapes inside them are honored only when
// backslashEscapes is set.
func stripLineComments(text string, markers []string, backslashEscapes bool) string {
	var b strings.Builder
	b.Grow(len(text))
	quote := byte(0)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && backslashEscapes && i+1 < len(text) {
				i++
				b.WriteByte(text[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
			b.WriteByte(c)
			continue
		}
		if (i == 0 || isSpace(text[i-1])) && hasAnyPrefix(text[i:], markers) {
			end := strings.IndexByte(text[i:], '\n')
			if end == -1 {
				break
			}
			// resume at the newline
			i += end - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func trimTerminators(text string) string {
	return strings.TrimRight(strings.TrimSpace(text), "; \t\r\n")
}

// scriptResult describes the outcome of turning shell-style script into the grammar.
type scriptResult struct {
	matched bool
	command docquery.Command
	ok      bool
}

// extractScript converts db.<collection>.<op>(...) into a command. Only read
// operations are converted; other operations are reported as unmatched so the
// deny rules see the original text.
func extractScript(text string, findLimit int64) scriptResult {
	m := scriptPattern.FindStringSubmatch(text)
	if m == nil {
		return scriptResult{}
	}
	collection, op, rest := m[1], m[2], m[3]

	switch op {
	case "find", "findOne", "aggregate", "count", "countDocuments":
	default:
		return scriptResult{}
	}

	res := scriptResult{matched: true}
	args, tail, ok := splitCall(rest)
	if !ok {
		return res
	}

	switch op {
	case "find", "findOne":
		filter := strings.TrimSpace(firstArg(args))
		cmd := docquery.Find(collection, nil, 0)
		if filter != "" {
			parsed, err := docquery.Parse(fmt.Sprintf(`{"find":%q,"filter":%s}`, collection, filter))
			if err != nil {
				return res
			}
			cmd = parsed
		}
		if op == "findOne" {
			cmd.Limit = 1
		} else if lm := limitPattern.FindStringSubmatch(tail); lm != nil {
			n, _ := strconv.ParseInt(lm[1], 10, 64)
			cmd.Limit = n
		}
		res.command = cmd.WithDefaultLimit(findLimit)
	case "aggregate":
		parsed, err := docquery.Parse(fmt.Sprintf(`{"aggregate":%q,"pipeline":%s}`, collection, strings.TrimSpace(firstArg(args))))
		if err != nil {
			return res
		}
		res.command = parsed
	case "count", "countDocuments":
		filter := strings.TrimSpace(firstArg(args))
		if filter == "" {
			filter = "{}"
		}
		parsed, err := docquery.Parse(fmt.Sprintf(`{"aggregate":%q,"pipeline":[{"$match":%s},{"$count":"count"}]}`, collection, filter))
		if err != nil {
			return res
		}
		res.command = parsed
	}
	res.ok = true
	return res
}

// splitCall splits "a, b) .limit(5)" at the parenthesis closing the call.
func splitCall(rest string) (args, tail string, ok bool) {
	depth := 1
	quote := byte(0)
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				if c != ')' {
					return "", "", false
				}
				return rest[:i], rest[i+1:], true
			}
		}
	}
	return "", "", false
}

// firstArg returns the first top-level argument of a call's argument list.
func firstArg(args string) string {
	if strings.TrimSpace(args) == "" {
		return ""
	}
	if span, ok := firstBalancedSpan(args); ok && strings.HasPrefix(strings.TrimSpace(args), span[:1]) {
		return span
	}
	head, _, _ := strings.Cut(args, ",")
	return head
}

// firstBalancedSpan returns the first balanced [...] or {...} span in text,
// skipping brackets inside string literals.
func firstBalancedSpan(text string) (string, bool) {
	start := strings.IndexAny(text, "[{")
	if start == -1 {
		return "", false
	}
	open := text[start]
	closing := byte(']')
	if open == '{' {
		closing = '}'
	}

	var stack []byte
	quote := byte(0)
	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '{':
			stack = append(stack, c)
		case ']', '}':
			if len(stack) == 0 {
				return "", false
			}
			top := stack[len(stack)-1]
			if (top == '[' && c != ']') || (top == '{' && c != '}') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				if c != closing {
					return "", false
				}
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// scriptCollection returns the collection named by a db.<collection>. prefix.
func scriptCollection(text string) (string, bool) {
	m := collPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}
