package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummaryRecord(t *testing.T) {
	s := &Summary{}
	s.record(OutcomeBackedUp, 100, time.Second)
	s.record(OutcomeBackedUp, 300, 3*time.Second)
	s.record(OutcomeDuplicate, 0, 0)
	s.record(OutcomeError, 0, 0)

	require.Equal(t, 2, s.BackedUp)
	require.Equal(t, 1, s.Duplicate)
	require.Equal(t, 1, s.Errored)
	require.Contains(t, s.String(), "backed_up=2 duplicate=1 error=1")
}

func TestSummaryStringEmpty(t *testing.T) {
	s := &Summary{}
	require.Contains(t, s.String(), "backed_up=0 duplicate=0 error=0")
}
