package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Participant_Wins_Only_With_Matching_Pick(t *testing.T) {
	p := NewParticipant(uuid.New(), uuid.New(), false, time.Now())
	require.False(t, p.Wins(5), "a participant without a pick never wins")

	n := 5
	p.ChosenNumber = &n
	require.True(t, p.Wins(5))
	require.False(t, p.Wins(6))
}

func Test_ValidateNumber_Accepts_Only_One_To_Nine(t *testing.T) {
	for n := MinNumber; n <= MaxNumber; n++ {
		require.NoError(t, ValidateNumber(n))
	}

	for _, n := range []int{-1, 0, 10, 100} {
		require.ErrorIs(t, ValidateNumber(n), ErrInvalidNumber)
	}
}

func Test_UniformDrawer_Stays_In_Range(t *testing.T) {
	seen := make(map[int]bool)

	for i := 0; i < 1000; i++ {
		n := UniformDrawer()
		require.GreaterOrEqual(t, n, MinNumber)
		require.LessOrEqual(t, n, MaxNumber)
		seen[n] = true
	}

	require.Len(t, seen, MaxNumber-MinNumber+1)
}

func Test_Policy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.MaxPlayers = 0
	require.Error(t, p.Validate())

	p = DefaultPolicy()
	p.MinPlayersToStart = p.MaxPlayers + 1
	require.Error(t, p.Validate())

	p = DefaultPolicy()
	p.SessionDuration = 0
	require.Error(t, p.Validate())
}

func Test_Policy_ShouldActivate_At_Minimum_Players(t *testing.T) {
	p := DefaultPolicy()
	p.MinPlayersToStart = 2

	require.False(t, p.ShouldActivate(1))
	require.True(t, p.ShouldActivate(2))
	require.True(t, p.ShouldActivate(3))
}
