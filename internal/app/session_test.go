package app

import (
	"testing"

	"quizly-game-service/internal/domain"

	"github.com/stretchr/testify/require"
)

type stubConn struct{ id string }

func (c stubConn) ID() string             { return c.id }
func (c stubConn) UserID() string         { return "" }
func (c stubConn) Send(string, any) error { return nil }
func (c stubConn) Close() error           { return nil }

func newLoadedSession(t *testing.T, maxPlayers int, conns ...string) *Session {
	t.Helper()
	s := NewSession("room", &domain.GameOptions{Name: "host", MaxPlayers: maxPlayers, Limit: 2}, maxPlayers)
	s.shuffle = func([]string) {}
	require.True(t, s.load([]domain.Question{
		{Text: "q1", CorrectAnswer: "a", IncorrectAnswers: []string{"b"}},
		{Text: "q2", CorrectAnswer: "c", IncorrectAnswers: []string{"d"}},
	}))
	for _, id := range conns {
		_, ok := s.attach(stubConn{id: id}, id, "")
		require.True(t, ok)
		_, ok = s.confirm(id)
		require.True(t, ok)
	}
	return s
}

func TestSessionScoresOncePerQuestion(t *testing.T) {
	s := newLoadedSession(t, 2, "p1", "p2")
	require.True(t, s.begin())

	payload, _, ok := s.reveal(0)
	require.True(t, ok)
	require.Equal(t, domain.QuestionPayload{Question: "q1", Answers: []string{"a", "b"}}, payload)

	correct, ok := s.submit("p1", domain.GameAnswer{Answer: "a", Time: 0})
	require.True(t, ok)
	require.Equal(t, "a", correct)

	_, ok = s.submit("p1", domain.GameAnswer{Answer: "a", Time: 0})
	require.False(t, ok, "second answer must be ignored")

	points, _ := s.Points("p1")
	require.Equal(t, 500, points)
}

func TestSessionWrongAnswerScoresNothing(t *testing.T) {
	s := newLoadedSession(t, 1, "p1")
	require.True(t, s.begin())
	_, _, ok := s.reveal(0)
	require.True(t, ok)

	_, ok = s.submit("p1", domain.GameAnswer{Answer: "b", Time: 0})
	require.True(t, ok)
	points, _ := s.Points("p1")
	require.Zero(t, points)
}

func TestSessionRejectsAnswersOutsideWindow(t *testing.T) {
	s := newLoadedSession(t, 1, "p1")

	_, ok := s.submit("p1", domain.GameAnswer{Answer: "a"})
	require.False(t, ok, "not started")

	require.True(t, s.begin())
	_, _, ok = s.reveal(0)
	require.True(t, ok)
	correct, ok := s.closeWindow()
	require.True(t, ok)
	require.Equal(t, "a", correct)

	_, ok = s.submit("p1", domain.GameAnswer{Answer: "a"})
	require.False(t, ok, "window closed")

	_, ok = s.submit("stranger", domain.GameAnswer{Answer: "a"})
	require.False(t, ok)
}

func TestSessionRevealNeverGoesBack(t *testing.T) {
	s := newLoadedSession(t, 1, "p1")
	require.True(t, s.begin())
	_, _, ok := s.reveal(1)
	require.True(t, ok)
	require.Equal(t, 1, s.CurrentIndex())

	_, _, ok = s.reveal(0)
	require.False(t, ok)
	_, _, ok = s.reveal(2)
	require.False(t, ok)
}

func TestSessionAllInSignal(t *testing.T) {
	s := newLoadedSession(t, 2, "p1", "p2")
	require.True(t, s.begin())
	_, allIn, _ := s.reveal(0)

	s.submit("p1", domain.GameAnswer{Answer: "a"})
	select {
	case <-allIn:
		t.Fatal("signalled before every player answered")
	default:
	}

	s.submit("p2", domain.GameAnswer{Answer: "b"})
	select {
	case <-allIn:
	default:
		t.Fatal("expected all-in signal")
	}
}

func TestSessionFullAndOpen(t *testing.T) {
	s := newLoadedSession(t, 2, "p1")
	require.True(t, s.Open())

	_, ok := s.attachCompatible(stubConn{id: "p2"}, domain.GameOptions{Name: "x", MaxPlayers: 2, Limit: 3})
	require.False(t, ok, "different limit")

	_, ok = s.attachCompatible(stubConn{id: "p2"}, domain.GameOptions{Name: "x", MaxPlayers: 2, Limit: 2, UID: "other"})
	require.True(t, ok)
	_, ok = s.confirm("p2")
	require.True(t, ok)

	select {
	case <-s.Full():
	default:
		t.Fatal("expected room to be full")
	}
	require.False(t, s.Open())

	_, ok = s.confirm("p2")
	require.False(t, ok, "confirm is idempotent")
}

func TestSoloSessionIsNeverOpen(t *testing.T) {
	s := NewSession("c1", nil, 1)
	require.True(t, s.Solo())
	require.True(t, s.load(nil))
	require.False(t, s.Open())
}

func TestSessionRemoveAndClose(t *testing.T) {
	s := newLoadedSession(t, 3, "p1", "p2")
	_, ok := s.attach(stubConn{id: "watcher"}, "w", "")
	require.True(t, ok)

	require.False(t, s.remove("p1"))
	require.False(t, s.remove("p1"), "already gone")
	require.True(t, s.remove("p2"), "last player leaving tears the room down")

	members, first := s.close()
	require.True(t, first)
	require.Len(t, members, 1)
	_, first = s.close()
	require.False(t, first)
	require.False(t, s.Active())

	select {
	case <-s.Done():
	default:
		t.Fatal("done must be closed")
	}

	_, ok = s.attach(stubConn{id: "late"}, "late", "")
	require.False(t, ok)
}

func TestSessionAcceptsPlayersWhileLoading(t *testing.T) {
	opts := domain.GameOptions{Name: "host", MaxPlayers: 3, Limit: 1}
	s := NewSession("room", &opts, 3)
	require.True(t, s.Open(), "a loading room is offered to matchmaking")

	_, ok := s.attachCompatible(stubConn{id: "p1"}, domain.GameOptions{Name: "p1", MaxPlayers: 3, Limit: 1})
	require.True(t, ok)
	ack, ok := s.confirm("p1")
	require.True(t, ok)
	require.Equal(t, 1, ack.NumberOfPlayers)

	require.True(t, s.load([]domain.Question{{Text: "q1", CorrectAnswer: "a", IncorrectAnswers: []string{"b"}}}))
	require.True(t, s.begin())
	_, _, ok = s.reveal(0)
	require.True(t, ok)
	_, ok = s.submit("p1", domain.GameAnswer{Answer: "a", Time: 0})
	require.True(t, ok, "players confirmed before loading can still answer")
}
