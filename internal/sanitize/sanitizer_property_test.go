package sanitize

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
)

var deniedKeywords = []any{
	"DROP", "DELETE FROM", "TRUNCATE", "ALTER", "CREATE TABLE", "INSERT INTO",
	"UPDATE t SET", "GRANT", "REVOKE", "EXEC", "EXECUTE",
	"INSERT OR REPLACE INTO", "INSERT IGNORE INTO", "CREATE TEMP TABLE",
	"CREATE TEMPORARY TABLE", "REPLACE INTO", "INTO OUTFILE",
}

var nonReadStatements = []any{
	"INSERT OR REPLACE INTO", "INSERT IGNORE INTO", "REPLACE INTO",
	"CREATE TEMP TABLE", "CREATE INDEX", "ATTACH DATABASE", "VACUUM", "MERGE INTO",
	"LOAD DATA INFILE", "COPY", "CALL", "LOCK TABLES",
}

func mixCase(s string, flips []bool) string {
	out := []rune(s)
	for i := range out {
		if i < len(flips) && flips[i] {
			out[i] = []rune(strings.ToLower(string(out[i])))[0]
		}
	}
	return string(out)
}

func properties(t *testing.T) *gopter.Properties {
	t.Helper()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	return gopter.NewProperties(parameters)
}

func TestRelationalDenyListProperty(t *testing.T) {
	props := properties(t)

	props.Property("mutating keywords are denied in any case", prop.ForAll(
		func(keyword string, flips []bool, before, after string) bool {
			q := fmt.Sprintf("SELECT %s FROM t %s %s", before, mixCase(keyword, flips), after)
			return !Validate(dsn.KindOf(dsn.Postgres), q).Allowed
		},
		gen.OneConstOf(deniedKeywords...),
		gen.SliceOfN(12, gen.Bool()),
		gen.Identifier(),
		gen.Identifier(),
	))

	props.Property("statements that do not start as reads are denied", prop.ForAll(
		func(statement string, flips []bool, name string, d dsn.Dialect) bool {
			q := fmt.Sprintf("%s %s (id) VALUES (1)", mixCase(statement, flips), name)
			return !Validate(dsn.KindOf(d), q).Allowed
		},
		gen.OneConstOf(nonReadStatements...),
		gen.SliceOfN(12, gen.Bool()),
		gen.Identifier(),
		gen.OneConstOf(dsn.Postgres, dsn.MySQL, dsn.SQLite),
	))

	props.Property("two statements are denied", prop.ForAll(
		func(a, b string, trailing bool) bool {
			q := fmt.Sprintf("SELECT %s FROM t; SELECT %s FROM u", a, b)
			if trailing {
				q += ";"
			}
			return !Validate(dsn.KindOf(dsn.MySQL), q).Allowed
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Bool(),
	))

	props.TestingRun(t)
}

func TestDocumentProperties(t *testing.T) {
	props := properties(t)
	s := New()
	mongo := dsn.KindOf(dsn.MongoDB)

	props.Property("code injection is denied without recovery", prop.ForAll(
		func(prefix, suffix string, token string) bool {
			out, err := s.Sanitize(mongo, prefix+" "+token+" "+suffix)
			return errors.Is(err, errors.SafetyRejected) && !out.Recovered && out.Verdict.Injection
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.OneConstOf("function(", "javascript:", "FUNCTION (", "function  ("),
	))

	field := gen.Identifier().SuchThat(func(v string) bool {
		switch strings.ToLower(v) {
		case "eval", "where", "function":
			return false
		}
		return true
	})
	stage := gen.OneGenOf(
		gen.Const(`{"$match":{}}`),
		gopter.CombineGens(field, gen.IntRange(-100, 100)).Map(func(v []any) string {
			return fmt.Sprintf(`{"$match":{"%s":%d}}`, v[0], v[1])
		}),
		field.Map(func(v string) string { return fmt.Sprintf(`{"$sort":{"%s":-1}}`, v) }),
		gen.IntRange(1, 1000).Map(func(n int) string { return fmt.Sprintf(`{"$limit":%d}`, n) }),
		field.Map(func(v string) string { return fmt.Sprintf(`{"$group":{"_id":"$%s","n":{"$sum":1}}}`, v) }),
	)

	props.Property("well-formed pipelines are allowed", prop.ForAll(
		func(stages []string) bool {
			q := "[" + strings.Join(stages, ",") + "]"
			if !Validate(mongo, q).Allowed {
				return false
			}
			out, err := s.Sanitize(mongo, q)
			return err == nil && out.Command != nil && len(out.Command.Pipeline) == len(stages)
		},
		gen.SliceOf(stage, reflect.TypeOf("")),
	))

	props.TestingRun(t)
}
