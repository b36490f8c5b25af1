package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := stderrors.New("dial tcp: connection refused")
	wrapped := fmt.Errorf("connect: %w", Wrap(Connection, "cannot reach store", base))

	assert.Equal(t, Connection, KindOf(wrapped))
	assert.True(t, Is(wrapped, Connection))
	assert.False(t, Is(wrapped, Execution))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, Kind(""), KindOf(base))
	assert.False(t, Is(nil, Connection))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "safety_rejected: DROP is not allowed", New(SafetyRejected, "DROP is not allowed").Error())
	assert.Equal(t, "config_error: bad kind: boom", Wrap(Config, "bad kind", stderrors.New("boom")).Error())
	assert.Equal(t, "unknown dialect \"oracle\"", Newf(Config, "unknown dialect %q", "oracle").Message)
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "no active store", MessageOf(fmt.Errorf("x: %w", New(Connection, "no active store"))))
	assert.Equal(t, "plain", MessageOf(stderrors.New("plain")))
	assert.Equal(t, "", MessageOf(nil))
}
