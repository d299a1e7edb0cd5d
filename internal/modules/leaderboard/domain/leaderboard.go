package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var (
	ErrInvalidFilter = errors.New("filter must be one of all, daily, weekly or monthly")
	ErrInvalidLimit  = fmt.Errorf("limit must be between 1 and %d", MaxLimit)
)

type Filter string

const (
	FilterAll     Filter = "all"
	FilterDaily   Filter = "daily"
	FilterWeekly  Filter = "weekly"
	FilterMonthly Filter = "monthly"
)

// ParseFilter treats an empty value as FilterAll.
func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(raw); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterDaily, FilterWeekly, FilterMonthly:
		return f, nil
	default:
		return "", ErrInvalidFilter
	}
}

// Window is the rolling period a filter covers. FilterAll has none.
func (f Filter) Window() (time.Duration, bool) {
	switch f {
	case FilterDaily:
		return 24 * time.Hour, true
	case FilterWeekly:
		return 7 * 24 * time.Hour, true
	case FilterMonthly:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func ParseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxLimit {
		return 0, ErrInvalidLimit
	}

	return limit, nil
}

type Entry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	TotalWins   int       `db:"total_wins" json:"total_wins"`
	TotalLosses int       `db:"total_losses" json:"total_losses"`
}

// Rank orders entries by wins, most first, ties broken by username in
// byte order.
func Rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalWins != entries[j].TotalWins {
			return entries[i].TotalWins > entries[j].TotalWins
		}
		return entries[i].Username < entries[j].Username
	})
}
