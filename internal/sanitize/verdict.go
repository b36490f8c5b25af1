// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sanitize

import (
	"regexp"
	"strings"

	"querygate/cli/internal/dsn"
)

// Verdict is the safety judgement over one query text for one store kind.
type Verdict struct {
	Allowed bool
	// Rule names the deny rule that matched, empty when allowed.
	Rule   string
	Reason string
	// Injection marks denials for embedded code, which are never recovered.
	Injection bool
}

// Allow is the accepting verdict.
func Allow() Verdict { return Verdict{Allowed: true} }

// Deny builds a rejecting verdict.
func Deny(rule, reason string) Verdict {
	return Verdict{Rule: rule, Reason: reason}
}

type rule struct {
	name      string
	pattern   *regexp.Regexp
	reason    string
	injection bool
}

var relationalRules = []rule{
	{name: "drop", pattern: regexp.MustCompile(`(?i)\bdrop\b`), reason: "DROP statements are not allowed"},
	{name: "alter", pattern: regexp.MustCompile(`(?i)\balter\b`), reason: "ALTER statements are not allowed"},
	{name: "create_table", pattern: regexp.MustCompile(`(?is)\bcreate\b.*\btable\b`), reason: "CREATE TABLE statements are not allowed"},
	{name: "insert", pattern: regexp.MustCompile(`(?is)\binsert\b.*\binto\b`), reason: "INSERT statements are not allowed"},
	{name: "replace", pattern: regexp.MustCompile(`(?is)\breplace\s+((low_priority|delayed)\s+)?into\b`), reason: "REPLACE statements are not allowed"},
	{name: "update", pattern: regexp.MustCompile(`(?is)\bupdate\b.*\bset\b`), reason: "UPDATE statements are not allowed"},
	{name: "truncate", pattern: regexp.MustCompile(`(?i)\btruncate\b`), reason: "TRUNCATE statements are not allowed"},
	{name: "grant", pattern: regexp.MustCompile(`(?i)\bgrant\b`), reason: "GRANT statements are not allowed"},
	{name: "revoke", pattern: regexp.MustCompile(`(?i)\brevoke\b`), reason: "REVOKE statements are not allowed"},
	{name: "exec", pattern: regexp.MustCompile(`(?i)\bexec(ute)?\b`), reason: "EXEC statements are not allowed"},
	{name: "delete", pattern: regexp.MustCompile(`(?is)\bdelete\b.*\bfrom\b`), reason: "DELETE statements are not allowed"},
	{name: "into_file", pattern: regexp.MustCompile(`(?i)\binto\s+(outfile|dumpfile)\b`), reason: "writing query results to files is not allowed"},
}

// readShapes are the leading keywords of statements that only read.
var readShapes = map[string]bool{
	"select":   true,
	"with":     true,
	"show":     true,
	"explain":  true,
	"describe": true,
	"desc":     true,
	"values":   true,
}

var leadingKeyword = regexp.MustCompile(`^[\s(]*([A-Za-z]+)`)

// documentRules are checked in order; injection rules come first so that a
// query carrying both kinds of problem is reported as injection.
var documentRules = []rule{
	{name: "function", pattern: regexp.MustCompile(`(?i)function\s*\(`), reason: "embedded functions are not allowed", injection: true},
	{name: "javascript", pattern: regexp.MustCompile(`(?i)javascript:`), reason: "embedded javascript is not allowed", injection: true},
	{name: "drop_database", pattern: regexp.MustCompile(`(?i)dropDatabase`), reason: "dropDatabase is not allowed"},
	{name: "drop", pattern: regexp.MustCompile(`(?i)\bdrop\s*\(`), reason: "drop() is not allowed"},
	{name: "remove", pattern: regexp.MustCompile(`(?i)\bremove\s*\(\s*\{`), reason: "remove() is not allowed"},
	{name: "eval", pattern: regexp.MustCompile(`(?i)\beval\b`), reason: "eval is not allowed"},
	{name: "system", pattern: regexp.MustCompile(`(?i)\bsystem\.`), reason: "system collections are not accessible"},
	{name: "where", pattern: regexp.MustCompile(`(?i)\$where\b`), reason: "$where is not allowed"},
	{name: "server_function", pattern: regexp.MustCompile(`(?i)\$function\b`), reason: "$function is not allowed"},
	{name: "out_stage", pattern: regexp.MustCompile(`(?i)"\$(out|merge)"`), reason: "$out and $merge stages write data and are not allowed"},
}

// Validate classifies text for the given store kind. It does not clean the
// text first; callers pass the output of Clean.
func Validate(kind dsn.Kind, text string) Verdict {
	switch kind.Family {
	case dsn.Relational:
		return validateRelational(text)
	case dsn.Document:
		return validateDocument(text)
	}
	return Deny("unknown_kind", "unsupported store kind "+kind.String())
}

func validateRelational(text string) Verdict {
	for _, r := range relationalRules {
		if r.pattern.MatchString(text) {
			return Deny(r.name, r.reason)
		}
	}
	if strings.ContainsRune(trimTerminators(text), ';') {
		return Deny("multi_statement", "multiple statements are not allowed")
	}
	m := leadingKeyword.FindStringSubmatch(text)
	if m == nil || !readShapes[strings.ToLower(m[1])] {
		return Deny("read_shape", "only SELECT, WITH, SHOW, EXPLAIN, DESCRIBE and VALUES statements are allowed")
	}
	return Allow()
}

func validateDocument(text string) Verdict {
	for _, r := range documentRules {
		if r.pattern.MatchString(text) {
			v := Deny(r.name, r.reason)
			v.Injection = r.injection
			return v
		}
	}
	return Allow()
}
