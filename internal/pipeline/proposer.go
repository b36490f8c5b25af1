package pipeline

import (
	"context"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/dsn"
	"querygate/cli/internal/session"
)

// ProposalRequest is what a Proposer sees of a request.
type ProposalRequest struct {
	Question string
	Kind     dsn.Kind
	// History holds the most recent messages of the session, oldest first.
	History []session.Message
	// Schema fetches the active store's schema on demand.
	Schema func(ctx context.Context) (*backend.Schema, error)
}

// Proposal is a candidate query. QueryText is untrusted and always sanitized
// before execution.
type Proposal struct {
	Intent    string
	QueryText string
	Kind      dsn.Kind
}

// Proposer turns a question into a candidate query, for example by asking a
// language model.
type Proposer interface {
	Propose(ctx context.Context, req ProposalRequest) (Proposal, error)
}

// ProposerFunc adapts a function to Proposer.
type ProposerFunc func(ctx context.Context, req ProposalRequest) (Proposal, error)

func (f ProposerFunc) Propose(ctx context.Context, req ProposalRequest) (Proposal, error) {
	return f(ctx, req)
}

// IntentDirect marks questions that were already queries.
const IntentDirect = "direct_query"

// Passthrough treats the question itself as the query.
type Passthrough struct{}

func (Passthrough) Propose(_ context.Context, req ProposalRequest) (Proposal, error) {
	return Proposal{Intent: IntentDirect, QueryText: req.Question, Kind: req.Kind}, nil
}
