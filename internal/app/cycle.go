package app

import (
	"context"
	"time"

	"quizly-game-service/internal/domain"
)

// run drives the question cycle of a room and aggregates results when every question
// was played. It returns early when the room closes or ctx is cancelled.
func (s *QuizService) run(ctx context.Context, session *Session) {
	if !session.begin() {
		s.log.Info("room has no confirmed players, skipping questions", "room", session.ID())
		return
	}
	total := session.QuestionCount()
	s.log.Info("game started", "room", session.ID(), "players", len(session.Players()), "questions", total)

	for i := 0; i < total; i++ {
		payload, allIn, ok := session.reveal(i)
		if !ok {
			return
		}
		s.broadcast(session, domain.EventQuestion, payload)

		if !s.timing.EarlyAdvance {
			allIn = nil
		}
		if !s.hold(ctx, session, s.timing.AnswerWindow, allIn) {
			return
		}
		correct, ok := session.closeWindow()
		if !ok {
			return
		}
		s.broadcast(session, domain.EventAnswer, correct)

		if !s.hold(ctx, session, s.timing.ResultsPause, nil) {
			return
		}
	}

	if !session.finish() {
		return
	}
	s.aggregate(ctx, session)
}

// hold waits for d, or for early to close. It reports false when the room went away.
func (s *QuizService) hold(ctx context.Context, session *Session, d time.Duration, early <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-early:
		return true
	case <-session.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
