package app

import (
	"context"
	"errors"

	"quizly-game-service/internal/domain"
)

// aggregate broadcasts the final standings, updates account stats and publishes a summary.
func (s *QuizService) aggregate(ctx context.Context, session *Session) {
	standings := session.standings()
	results := make(domain.Results, len(standings))
	for _, st := range standings {
		results[st.Nickname] = st.Points
	}
	s.broadcast(session, domain.EventResults, results)

	s.updateStats(ctx, standings)

	if s.publisher == nil {
		return
	}
	summary := domain.GameSummary{
		Room:       session.ID(),
		Solo:       session.Solo(),
		Questions:  session.QuestionCount(),
		Standings:  standings,
		FinishedAt: s.now().UTC(),
	}
	if err := s.publisher.PublishResults(ctx, summary); err != nil {
		s.log.Warn("publish results", "room", session.ID(), "err", err)
	}
}

// updateStats records wins, losses and best scores for players with an account. Failures
// for one player are logged and skipped.
func (s *QuizService) updateStats(ctx context.Context, standings []domain.Standing) {
	if s.accounts == nil || len(standings) == 0 {
		return
	}
	best, leaders := standings[0].Points, 0
	for _, st := range standings {
		switch {
		case st.Points > best:
			best, leaders = st.Points, 1
		case st.Points == best:
			leaders++
		}
	}
	multiplayer := len(standings) > 1

	for _, st := range standings {
		if st.UID == "" {
			continue
		}
		key, _, err := s.accounts.FindByField(ctx, "uid", st.UID)
		if err != nil {
			if !errors.Is(err, domain.ErrAccountNotFound) {
				s.log.Warn("account lookup", "uid", st.UID, "err", err)
			}
			continue
		}
		update := domain.StatsUpdate{MaxPoints: st.Points}
		if multiplayer {
			switch {
			case st.Points == best && leaders == 1:
				update.Win = 1
			case st.Points == best:
				// shared first place counts as neither
			default:
				update.Lose = 1
			}
		}
		if err := s.accounts.RecordStats(ctx, key, update); err != nil {
			s.log.Warn("account update", "uid", st.UID, "err", err)
		}
	}
}
