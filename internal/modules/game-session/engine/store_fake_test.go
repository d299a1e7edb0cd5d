package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"

	"github.com/google/uuid"
)

var _ Store = (*memoryStore)(nil)

type userStats struct {
	username string
	wins     int
	losses   int
}

// memoryStore mirrors the transactional guarantees of the Postgres store
// with a single mutex.
type memoryStore struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]domain.Session
	order        []uuid.UUID
	participants map[uuid.UUID][]domain.Participant
	users        map[uuid.UUID]*userStats
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions:     make(map[uuid.UUID]domain.Session),
		participants: make(map[uuid.UUID][]domain.Participant),
		users:        make(map[uuid.UUID]*userStats),
	}
}

func (s *memoryStore) addUser(username string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.users[id] = &userStats{username: username}
	return id
}

func (s *memoryStore) stats(userID uuid.UUID) userStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[userID]
}

func (s *memoryStore) openLocked() (domain.Session, bool) {
	for _, id := range s.order {
		if session := s.sessions[id]; session.Status.IsOpen() {
			return session, true
		}
	}
	return domain.Session{}, false
}

func (s *memoryStore) findParticipantLocked(sessionID, userID uuid.UUID) (int, bool) {
	for i, p := range s.participants[sessionID] {
		if p.UserID == userID {
			return i, true
		}
	}
	return 0, false
}

func (s *memoryStore) JoinOpenSession(_ context.Context, req JoinRequest) (JoinOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outcome JoinOutcome

	session, found := s.openLocked()
	if found {
		if session.IsDue(req.Now) {
			return JoinOutcome{}, ErrOpenSessionDue
		}
		before := session
		outcome.Before = &before
	} else {
		session = req.NewSession
		s.sessions[session.ID] = session
		s.order = append(s.order, session.ID)
	}

	if i, ok := s.findParticipantLocked(session.ID, req.UserID); ok {
		outcome.Session = session
		outcome.Participant = s.participants[session.ID][i]
		return outcome, nil
	}

	if session.IsFull() {
		return JoinOutcome{}, domain.ErrSessionFull
	}

	participant := domain.NewParticipant(session.ID, req.UserID, !found, req.Now)
	s.participants[session.ID] = append(s.participants[session.ID], participant)
	session.CurrentPlayers++

	if session.Status == domain.StatusWaiting && req.Policy.ShouldActivate(session.CurrentPlayers) {
		startedAt := req.Now.UTC()
		session.Status = domain.StatusActive
		session.StartedAt = &startedAt
		outcome.Activated = true
	}

	s.sessions[session.ID] = session

	outcome.Session = session
	outcome.Participant = participant
	outcome.ParticipantCreated = true

	return outcome, nil
}

func (s *memoryStore) LeaveOpenSession(_ context.Context, userID uuid.UUID) (LeaveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, found := s.openLocked()
	if !found {
		return LeaveOutcome{}, domain.ErrNotAParticipant
	}

	i, ok := s.findParticipantLocked(session.ID, userID)
	if !ok {
		return LeaveOutcome{}, domain.ErrNotAParticipant
	}

	participants := s.participants[session.ID]
	removed := participants[i]
	s.participants[session.ID] = append(participants[:i:i], participants[i+1:]...)

	before := session
	session.CurrentPlayers--
	s.sessions[session.ID] = session

	return LeaveOutcome{Before: before, Session: session, Participant: removed}, nil
}

func (s *memoryStore) SetChosenNumber(_ context.Context, userID uuid.UUID, number int, now time.Time) (NumberOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, found := s.openLocked()
	if !found || session.Status != domain.StatusActive || session.IsDue(now) {
		return NumberOutcome{}, domain.ErrSessionNotActive
	}

	i, ok := s.findParticipantLocked(session.ID, userID)
	if !ok {
		return NumberOutcome{}, domain.ErrNotAParticipant
	}

	before := s.participants[session.ID][i]
	after := before
	after.ChosenNumber = &number
	s.participants[session.ID][i] = after

	return NumberOutcome{Before: before, Participant: after}, nil
}

func (s *memoryStore) FinishSession(_ context.Context, sessionID uuid.UUID, winningNumber int, endedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Status != domain.StatusActive {
		return false, nil
	}

	endedAt = endedAt.UTC()
	session.Status = domain.StatusFinished
	session.WinningNumber = &winningNumber
	session.EndedAt = &endedAt
	s.sessions[sessionID] = session

	for i, p := range s.participants[sessionID] {
		p.IsWinner = p.Wins(winningNumber)
		s.participants[sessionID][i] = p

		if p.IsWinner {
			s.users[p.UserID].wins++
		} else {
			s.users[p.UserID].losses++
		}
	}

	return true, nil
}

func (s *memoryStore) CloseWaitingSession(_ context.Context, sessionID uuid.UUID, endedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Status != domain.StatusWaiting {
		return false, nil
	}

	endedAt = endedAt.UTC()
	session.Status = domain.StatusFinished
	session.EndedAt = &endedAt
	s.sessions[sessionID] = session

	return true, nil
}

func (s *memoryStore) OpenSession(context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, found := s.openLocked(); found {
		return session, nil
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (s *memoryStore) GetSession(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *memoryStore) LatestFinishedSession(context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.order) - 1; i >= 0; i-- {
		if session := s.sessions[s.order[i]]; session.Status == domain.StatusFinished {
			return session, nil
		}
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (s *memoryStore) LatestSessionForUser(_ context.Context, userID uuid.UUID) (domain.Session, domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		if j, ok := s.findParticipantLocked(id, userID); ok {
			return s.sessions[id], s.participants[id][j], nil
		}
	}
	return domain.Session{}, domain.Participant{}, domain.ErrNotAParticipant
}

func (s *memoryStore) ListParticipants(_ context.Context, sessionID uuid.UUID) ([]domain.SessionPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]domain.SessionPlayer, 0, len(s.participants[sessionID]))
	for _, p := range s.participants[sessionID] {
		players = append(players, domain.SessionPlayer{
			UserID:       p.UserID,
			Username:     s.users[p.UserID].username,
			ChosenNumber: p.ChosenNumber,
			IsWinner:     p.IsWinner,
			IsStarter:    p.IsStarter,
			JoinedAt:     p.JoinedAt,
		})
	}
	return players, nil
}

func (s *memoryStore) ParticipantRows(_ context.Context, sessionID uuid.UUID) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.Participant(nil), s.participants[sessionID]...), nil
}

func (s *memoryStore) NextDeadline(context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deadlines []time.Time
	for _, session := range s.sessions {
		if session.Status != domain.StatusActive {
			continue
		}
		if deadline, ok := session.Deadline(); ok {
			deadlines = append(deadlines, deadline)
		}
	}

	if len(deadlines) == 0 {
		return time.Time{}, false, nil
	}

	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i].Before(deadlines[j]) })
	return deadlines[0], true, nil
}

func (s *memoryStore) DueSessions(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []uuid.UUID
	for _, id := range s.order {
		if s.sessions[id].IsDue(now) {
			due = append(due, id)
		}
	}
	return due, nil
}
