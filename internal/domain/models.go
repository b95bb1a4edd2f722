package domain

import (
	"slices"
	"time"
)

// Inbound and outbound event names. Clients match on these.
const (
	EventJoin     = "join"
	EventReady    = "ready"
	EventAnswer   = "answer"
	EventEnd      = "end"
	EventQuestion = "question"
	EventResults  = "results"
	EventError    = "error"
)

// Question is a single quiz question. The correct answer never appears among the incorrect ones.
type Question struct {
	Text             string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// NewQuestion builds a Question, dropping incorrect answers that repeat the correct one or each other.
func NewQuestion(text, correct string, incorrect []string) Question {
	seen := map[string]struct{}{correct: {}}
	kept := make([]string, 0, len(incorrect))
	for _, answer := range incorrect {
		if _, dup := seen[answer]; dup {
			continue
		}
		seen[answer] = struct{}{}
		kept = append(kept, answer)
	}
	return Question{Text: text, CorrectAnswer: correct, IncorrectAnswers: kept}
}

// Answers returns a fresh slice holding the correct answer followed by the incorrect ones.
func (q Question) Answers() []string {
	answers := make([]string, 0, len(q.IncorrectAnswers)+1)
	answers = append(answers, q.CorrectAnswer)
	return append(answers, q.IncorrectAnswers...)
}

// QuestionFilter holds the criteria sent to the external question provider.
type QuestionFilter struct {
	Categories []string
	Difficulty string
	Tags       []string
	Limit      int
	Region     string
}

// GameOptions is a validated request to play a new or matching game.
type GameOptions struct {
	Name       string   `json:"name"`
	MaxPlayers int      `json:"max_players"`
	UID        string   `json:"uid,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Region     string   `json:"region,omitempty"`
	QuizID     string   `json:"quiz_id,omitempty"`
}

// IsStoredQuiz reports whether the options reference a user's stored quiz.
func (o GameOptions) IsStoredQuiz() bool {
	return o.QuizID != ""
}

// Filter extracts the provider criteria, leaving out player, display and identity fields.
func (o GameOptions) Filter() QuestionFilter {
	return QuestionFilter{
		Categories: slices.Clone(o.Categories),
		Difficulty: o.Difficulty,
		Tags:       slices.Clone(o.Tags),
		Limit:      o.Limit,
		Region:     o.Region,
	}
}

// Compatible reports whether two requests may share a room: every field except name and uid must match.
func (o GameOptions) Compatible(other GameOptions) bool {
	return o.MaxPlayers == other.MaxPlayers &&
		o.Difficulty == other.Difficulty &&
		o.Limit == other.Limit &&
		o.Region == other.Region &&
		o.QuizID == other.QuizID &&
		slices.Equal(o.Categories, other.Categories) &&
		slices.Equal(o.Tags, other.Tags)
}

func (o GameOptions) hasFilter() bool {
	return len(o.Categories) > 0 || o.Difficulty != "" || len(o.Tags) > 0 || o.Limit != 0 || o.Region != ""
}

// RoomCodeOptions is a request to join a known room directly.
type RoomCodeOptions struct {
	Room string `json:"room"`
	Name string `json:"name"`
	UID  string `json:"uid,omitempty"`
}

// JoinRequest is the parsed join payload; exactly one variant is set.
type JoinRequest struct {
	Game     *GameOptions
	RoomCode *RoomCodeOptions
}

// GameAnswer is a player's answer to the current question.
type GameAnswer struct {
	Answer string
	Time   float64
}

// JoinAck acknowledges room membership and reports the confirmed player count.
type JoinAck struct {
	Room            string `json:"room"`
	NumberOfPlayers int    `json:"number_of_players"`
}

// QuestionPayload is what players see of a question: never the correct answer on its own.
type QuestionPayload struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
}

// Results maps each confirmed player's nickname to their final points.
type Results map[string]int

// Standing is a confirmed player's final position in a room.
type Standing struct {
	ConnID   string `json:"-"`
	Nickname string `json:"nickname"`
	UID      string `json:"uid,omitempty"`
	Points   int    `json:"points"`
}

// GameSummary describes a finished room for downstream consumers.
type GameSummary struct {
	Room       string     `json:"room"`
	Solo       bool       `json:"solo"`
	Questions  int        `json:"questions"`
	Standings  []Standing `json:"standings"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Account is a persisted player account.
type Account struct {
	UID               string `json:"uid"`
	Nickname          string `json:"nickname"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
	Win               int    `json:"win"`
	Lose              int    `json:"lose"`
	FavouriteCategory string `json:"favourite_category"`
	MaxPoints         int    `json:"max_points"`
}

// StatsUpdate is applied to an account after a game: Win and Lose are increments, MaxPoints
// replaces the stored best only when higher.
type StatsUpdate struct {
	Win       int
	Lose      int
	MaxPoints int
}

// StoredQuiz is a quiz authored by a user.
type StoredQuiz struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"uid"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}
