package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_EvictsOldestBeyondCap(t *testing.T) {
	s := NewStore(0)
	for i := 0; i < 60; i++ {
		s.Append("s1", Message{Role: RoleUser, Text: fmt.Sprintf("m%d", i)})
	}

	hist := s.History("s1")
	require.Len(t, hist, DefaultCap)
	assert.Equal(t, "m10", hist[0].Text)
	assert.Equal(t, "m59", hist[len(hist)-1].Text)
}

func TestAppend_PairIsAtomic(t *testing.T) {
	s := NewStore(4)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append("s", Message{Role: RoleUser, Text: fmt.Sprint(i)}, Message{Role: RoleAssistant, Text: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	hist := s.History("s")
	require.Len(t, hist, 4)
	for i := 0; i < len(hist); i += 2 {
		assert.Equal(t, RoleUser, hist[i].Role)
		assert.Equal(t, RoleAssistant, hist[i+1].Role)
		assert.Equal(t, hist[i].Text, hist[i+1].Text)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	s := NewStore(10)
	s.Append("a", Message{Role: RoleUser, Text: "hello"})

	assert.Equal(t, 1, s.Len("a"))
	assert.Equal(t, 0, s.Len("b"))
	assert.Empty(t, s.History("b"))
	assert.Equal(t, []string{"a"}, s.Sessions())
}

func TestRecent(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 5; i++ {
		s.Append("s", Message{Role: RoleUser, Text: fmt.Sprint(i)})
	}

	recent := s.Recent("s", 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "3", recent[0].Text)
	assert.Equal(t, "4", recent[1].Text)
	assert.Len(t, s.Recent("s", 100), 5)
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewStore(10)
	s.Append("s", Message{Role: RoleUser, Text: "original"})

	hist := s.History("s")
	hist[0].Text = "changed"
	assert.Equal(t, "original", s.History("s")[0].Text)
	assert.False(t, s.History("s")[0].Timestamp.IsZero())
}
