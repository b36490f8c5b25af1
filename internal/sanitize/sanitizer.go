// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sanitize cleans generated query text and decides whether it is safe
// to run. Relational rejections are final. Document rejections that are not
// code injection get one recovery attempt: the first balanced [...] or {...}
// span is re-wrapped as a bounded aggregate or find command.
package sanitize

import (
	stderrors "errors"

	"go.uber.org/zap"

	"querygate/cli/internal/docquery"
	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
)

const (
	// SafeFindLimit bounds find commands produced by recovery and script extraction.
	SafeFindLimit = 100
	// DefaultFallbackLimit bounds the harmless query substituted for unreadable scripts.
	DefaultFallbackLimit = 10
)

// Outcome is the result of sanitizing one query.
type Outcome struct {
	Kind     dsn.Kind
	Original string
	// Query is the text submitted to execution.
	Query string
	// Command is set for document kinds when Query parses as the grammar.
	Command *docquery.Command
	Verdict Verdict
	// Recovered is true when a denied document query was rewritten by safe-subset extraction.
	Recovered bool
	// Substituted is true when an unreadable script was replaced by the default query.
	Substituted bool
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Sanitizer) { s.log = l }
}

// WithDefaultCollection sets the collection used by substituted and recovered queries.
func WithDefaultCollection(name string) Option {
	return func(s *Sanitizer) {
		if name != "" {
			s.defaultCollection = name
		}
	}
}

// Sanitizer is stateless apart from its configuration and safe for concurrent use.
type Sanitizer struct {
	log               *zap.SugaredLogger
	defaultCollection string
}

// New creates a Sanitizer.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{log: zap.NewNop().Sugar(), defaultCollection: docquery.DefaultCollection}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clean normalizes the surface syntax of text for the given kind.
func (s *Sanitizer) Clean(kind dsn.Kind, text string) string {
	cleaned, _ := s.clean(kind, text)
	return cleaned
}

func (s *Sanitizer) clean(kind dsn.Kind, text string) (cleaned string, substituted bool) {
	stripped := stripSurface(text, kind.Family)
	if kind.Family != dsn.Document {
		return stripped, false
	}

	res := extractScript(stripped, SafeFindLimit)
	if !res.matched {
		return stripped, false
	}
	if !res.ok {
		return s.defaultQuery().String(), true
	}
	return res.command.String(), false
}

func (s *Sanitizer) defaultQuery() docquery.Command {
	return docquery.Find(s.defaultCollection, nil, DefaultFallbackLimit)
}

// Sanitize cleans and validates text. A rejected query returns an
// errors.SafetyRejected error together with the outcome describing it.
func (s *Sanitizer) Sanitize(kind dsn.Kind, text string) (Outcome, error) {
	out := Outcome{Kind: kind, Original: text}

	stripped := stripSurface(text, kind.Family)
	cleaned, substituted := s.clean(kind, text)
	out.Query = cleaned
	out.Substituted = substituted

	verdict := Validate(kind, cleaned)
	if verdict.Allowed && kind.Family == dsn.Document && cleaned != stripped {
		// script extraction may have dropped text the rules need to see
		verdict = Validate(kind, stripped)
	}
	out.Verdict = verdict

	if verdict.Allowed {
		s.attachCommand(&out)
		return out, nil
	}

	if kind.Family != dsn.Document || verdict.Injection {
		s.log.Debugw("query denied", "kind", kind.String(), "rule", verdict.Rule)
		return out, errors.New(errors.SafetyRejected, verdict.Reason)
	}

	recovered, ok := s.recover(stripped)
	if !ok {
		s.log.Debugw("query denied, no safe subset", "kind", kind.String(), "rule", verdict.Rule)
		return out, errors.New(errors.SafetyRejected, verdict.Reason)
	}
	if v := Validate(kind, recovered.String()); !v.Allowed {
		out.Verdict = v
		s.log.Debugw("recovered subset denied", "kind", kind.String(), "rule", v.Rule)
		return out, errors.New(errors.SafetyRejected, v.Reason)
	}

	s.log.Debugw("query recovered", "kind", kind.String(), "rule", verdict.Rule, "shape", recovered.Shape.String())
	out.Query = recovered.String()
	out.Command = &recovered
	out.Recovered = true
	out.Verdict = Allow()
	return out, nil
}

// recover extracts the first balanced span of text and re-wraps it as a
// bounded command.
func (s *Sanitizer) recover(text string) (docquery.Command, bool) {
	span, ok := firstBalancedSpan(text)
	if !ok {
		return docquery.Command{}, false
	}
	collection, named := scriptCollection(text)
	if !named {
		collection = s.defaultCollection
	}

	if span[0] == '[' {
		cmd, err := docquery.Parse(span)
		if err != nil {
			return docquery.Command{}, false
		}
		return docquery.Aggregate(collection, cmd.Pipeline), true
	}

	cmd, err := docquery.Parse(span)
	var unrec *docquery.UnrecognizedError
	switch {
	case err == nil:
		return cmd.WithDefaultLimit(SafeFindLimit), true
	case stderrors.As(err, &unrec):
		// a bare filter object
		return docquery.Find(collection, []byte(span), SafeFindLimit), true
	}
	return docquery.Command{}, false
}

func (s *Sanitizer) attachCommand(out *Outcome) {
	if out.Kind.Family != dsn.Document {
		return
	}
	cmd, err := docquery.Parse(out.Query)
	if err != nil {
		return
	}
	out.Command = &cmd
}
