package app

import (
	"math/rand"
	"slices"
	"sync"
	"time"

	"quizly-game-service/internal/domain"
)

type roomState uint8

const (
	roomLoading roomState = iota
	roomWaiting
	roomPlaying
	roomFinished
	roomClosed
)

func (s roomState) String() string {
	switch s {
	case roomLoading:
		return "loading"
	case roomWaiting:
		return "waiting"
	case roomPlaying:
		return "playing"
	case roomFinished:
		return "finished"
	default:
		return "closed"
	}
}

// Session is the state of one room. Every field behind mu is only touched through
// Session methods so joins, answers and the question cycle never race.
type Session struct {
	id         string
	options    *domain.GameOptions
	maxPlayers int
	createdAt  time.Time
	shuffle    func([]string)

	mu        sync.Mutex
	state     roomState
	questions []domain.Question
	asked     int
	accepting bool
	members   map[string]Conn
	players   []string
	points    map[string]int
	nicknames map[string]string
	uids      map[string]string
	answered  map[string][]bool

	full     chan struct{}
	isFull   bool
	allIn    chan struct{}
	allInSet bool
	done     chan struct{}
}

// NewSession is exported for registry implementations. A nil options marks a solo room,
// which is never offered to matchmaking.
func NewSession(id string, options *domain.GameOptions, maxPlayers int) *Session {
	if maxPlayers < 1 {
		maxPlayers = 1
	}
	var stored *domain.GameOptions
	if options != nil {
		copied := *options
		copied.Tags = slices.Clone(options.Tags)
		copied.Categories = slices.Clone(options.Categories)
		stored = &copied
	}
	return &Session{
		id:         id,
		options:    stored,
		maxPlayers: maxPlayers,
		createdAt:  time.Now(),
		shuffle: func(answers []string) {
			rand.Shuffle(len(answers), func(i, j int) { answers[i], answers[j] = answers[j], answers[i] })
		},
		members:   make(map[string]Conn),
		points:    make(map[string]int),
		nicknames: make(map[string]string),
		uids:      make(map[string]string),
		answered:  make(map[string][]bool),
		full:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Solo() bool           { return s.options == nil }
func (s *Session) MaxPlayers() int      { return s.maxPlayers }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed when the room is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Full is closed once the confirmed players reach the room's capacity.
func (s *Session) Full() <-chan struct{} { return s.full }

// Active reports whether the room still accepts events.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != roomClosed
}

// Open reports whether the room is a multiplayer room still accepting players: it is either
// loading its questions or waiting for players, and not yet full.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Session) openLocked() bool {
	return (s.state == roomLoading || s.state == roomWaiting) && s.options != nil && !s.isFull
}

// State returns the lifecycle state name.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// load installs the question bank; questions are immutable afterwards.
func (s *Session) load(questions []domain.Question) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != roomLoading {
		return false
	}
	s.questions = slices.Clone(questions)
	for _, id := range s.players {
		s.answered[id] = make([]bool, len(s.questions))
	}
	s.state = roomWaiting
	return true
}

// attach adds a connection as a room member without confirming it.
func (s *Session) attach(conn Conn, name, uid string) (domain.JoinAck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == roomFinished || s.state == roomClosed {
		return domain.JoinAck{}, false
	}
	s.attachLocked(conn, name, uid)
	return s.ackLocked(), true
}

// attachCompatible attaches only when the room is open and its options match.
func (s *Session) attachCompatible(conn Conn, opts domain.GameOptions) (domain.JoinAck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openLocked() || !s.options.Compatible(opts) {
		return domain.JoinAck{}, false
	}
	s.attachLocked(conn, opts.Name, opts.UID)
	return s.ackLocked(), true
}

func (s *Session) attachLocked(conn Conn, name, uid string) {
	s.members[conn.ID()] = conn
	s.nicknames[conn.ID()] = name
	if uid != "" {
		s.uids[conn.ID()] = uid
	}
}

func (s *Session) ackLocked() domain.JoinAck {
	return domain.JoinAck{Room: s.id, NumberOfPlayers: len(s.players)}
}

// confirm moves a member into the confirmed players. It reports false when nothing changed.
// Players may confirm while questions are still loading.
func (s *Session) confirm(connID string) (domain.JoinAck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == roomFinished || s.state == roomClosed {
		return domain.JoinAck{}, false
	}
	if _, member := s.members[connID]; !member {
		return domain.JoinAck{}, false
	}
	if _, confirmed := s.points[connID]; confirmed {
		return domain.JoinAck{}, false
	}
	s.players = append(s.players, connID)
	s.points[connID] = 0
	s.answered[connID] = make([]bool, len(s.questions))
	if len(s.players) >= s.maxPlayers && !s.isFull {
		s.isFull = true
		close(s.full)
	}
	return s.ackLocked(), true
}

// begin starts the question cycle. Rooms without confirmed players never start.
func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != roomWaiting || len(s.players) == 0 {
		return false
	}
	s.state = roomPlaying
	return true
}

// reveal advances to question index, opens its answer window and returns the payload with
// freshly shuffled answers plus a channel closed once every confirmed player has answered.
func (s *Session) reveal(index int) (domain.QuestionPayload, <-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != roomPlaying || index < s.asked || index >= len(s.questions) {
		return domain.QuestionPayload{}, nil, false
	}
	q := s.questions[index]
	answers := q.Answers()
	s.shuffle(answers)
	s.asked = index + 1
	s.accepting = true
	s.allIn = make(chan struct{})
	s.allInSet = false
	return domain.QuestionPayload{Question: q.Text, Answers: answers}, s.allIn, true
}

// closeWindow stops accepting answers and returns the correct answer of the current question.
func (s *Session) closeWindow() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != roomPlaying || s.asked == 0 {
		return "", false
	}
	s.accepting = false
	return s.questions[s.asked-1].CorrectAnswer, true
}

// submit scores an answer at most once per player and question. ok is false when the
// answer was ignored; otherwise correct holds the text to acknowledge privately.
func (s *Session) submit(connID string, answer domain.GameAnswer) (correct string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != roomPlaying || !s.accepting {
		return "", false
	}
	flags, confirmed := s.answered[connID]
	if !confirmed {
		return "", false
	}
	idx := s.asked - 1
	if idx >= len(flags) || flags[idx] {
		return "", false
	}
	q := s.questions[idx]
	if answer.Answer == q.CorrectAnswer {
		s.points[connID] += Score(answer.Time)
	}
	flags[idx] = true
	s.signalAllInLocked()
	return q.CorrectAnswer, true
}

func (s *Session) signalAllInLocked() {
	if !s.accepting || s.allInSet || s.allIn == nil {
		return
	}
	idx := s.asked - 1
	for _, id := range s.players {
		if flags := s.answered[id]; idx >= len(flags) || !flags[idx] {
			return
		}
	}
	s.allInSet = true
	close(s.allIn)
}

// finish marks the cycle complete; no more answers or joins are accepted.
func (s *Session) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != roomPlaying {
		return false
	}
	s.state = roomFinished
	s.accepting = false
	return true
}

// remove drops a connection from the room and reports whether the room must be torn down:
// either its last confirmed player left or no member remains.
func (s *Session) remove(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == roomClosed {
		return false
	}
	if _, member := s.members[connID]; !member {
		return false
	}
	delete(s.members, connID)
	delete(s.nicknames, connID)
	delete(s.uids, connID)
	_, wasPlayer := s.points[connID]
	if wasPlayer {
		s.players = slices.DeleteFunc(s.players, func(id string) bool { return id == connID })
		delete(s.points, connID)
		delete(s.answered, connID)
		if len(s.players) > 0 {
			s.signalAllInLocked()
		}
	}
	return (wasPlayer && len(s.players) == 0) || len(s.members) == 0
}

// close tears the room down once and returns the members left at that moment.
func (s *Session) close() ([]Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == roomClosed {
		return nil, false
	}
	s.state = roomClosed
	s.accepting = false
	close(s.done)
	return s.membersLocked(), true
}

// recipients returns a snapshot of every member so sends happen outside the lock.
func (s *Session) recipients() []Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membersLocked()
}

func (s *Session) membersLocked() []Conn {
	conns := make([]Conn, 0, len(s.members))
	for _, conn := range s.members {
		conns = append(conns, conn)
	}
	return conns
}

// IsPlayer reports whether connID is a confirmed player.
func (s *Session) IsPlayer(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.points[connID]
	return ok
}

// standings lists confirmed players in readiness order.
func (s *Session) standings() []domain.Standing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Standing, 0, len(s.players))
	for _, id := range s.players {
		out = append(out, domain.Standing{
			ConnID:   id,
			Nickname: s.nicknames[id],
			UID:      s.uids[id],
			Points:   s.points[id],
		})
	}
	return out
}

// Players returns the confirmed player connection ids in readiness order.
func (s *Session) Players() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.players)
}

// Points returns a confirmed player's running total.
func (s *Session) Points(connID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[connID]
	return p, ok
}

// CurrentIndex is the 0-based index of the last revealed question, -1 before the first.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asked - 1
}

// QuestionCount returns the size of the loaded question bank.
func (s *Session) QuestionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}
