package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"quizly-game-service/internal/domain"

	"github.com/google/uuid"
)

// Conn is a live client connection. The transport layer owns it; rooms only reference it.
type Conn interface {
	ID() string
	// UserID is the verified account uid, empty for anonymous connections.
	UserID() string
	Send(event string, payload any) error
	Close() error
}

// SessionRepository is the room registry (in-memory, Redis, etc). It owns every Session.
type SessionRepository interface {
	Create(id string, options *domain.GameOptions, maxPlayers int) (*Session, error)
	Get(id string) (*Session, bool)
	// Snapshot returns the registered rooms in creation order.
	Snapshot() []*Session
	Delete(id string)
	Len() int
}

// ResultsPublisher receives finished-game summaries.
type ResultsPublisher interface {
	PublishResults(ctx context.Context, summary domain.GameSummary) error
}

// Timing holds the fixed durations of the game loop.
type Timing struct {
	JoinTimeout  time.Duration
	AnswerWindow time.Duration
	ResultsPause time.Duration
	// EarlyAdvance closes the answer window once every confirmed player has answered.
	EarlyAdvance bool
}

// DefaultTiming gives 30s to gather players, 12s per answer and a 3s pause after each reveal.
func DefaultTiming() Timing {
	return Timing{
		JoinTimeout:  30 * time.Second,
		AnswerWindow: 12 * time.Second,
		ResultsPause: 3 * time.Second,
	}
}

// Option customizes a QuizService.
type Option func(*QuizService)

func WithTiming(t Timing) Option { return func(s *QuizService) { s.timing = t } }

func WithLogger(l *slog.Logger) Option { return func(s *QuizService) { s.log = l } }

func WithResultsPublisher(p ResultsPublisher) Option { return func(s *QuizService) { s.publisher = p } }

// WithBaseContext sets the context multiplayer rooms run under. Rooms outlive the connection
// that created them, so they are cancelled only when this context is.
func WithBaseContext(ctx context.Context) Option { return func(s *QuizService) { s.base = ctx } }

// WithRoomIDs overrides how multiplayer room ids are generated.
func WithRoomIDs(next func() string) Option { return func(s *QuizService) { s.newRoomID = next } }

// QuizService is the matchmaking and game engine behind the realtime transport.
type QuizService struct {
	sessions  SessionRepository
	bank      *QuestionBank
	accounts  AccountStore
	publisher ResultsPublisher
	timing    Timing
	log       *slog.Logger
	newRoomID func() string
	now       func() time.Time
	base      context.Context

	// matchMu serializes the scan for a compatible room with the creation of a new one.
	matchMu sync.Mutex

	mu          sync.Mutex
	memberships map[string]string // connection id -> room id
}

func NewQuizService(store SessionRepository, bank *QuestionBank, accounts AccountStore, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:    store,
		bank:        bank,
		accounts:    accounts,
		timing:      DefaultTiming(),
		log:         slog.Default(),
		newRoomID:   uuid.NewString,
		now:         time.Now,
		base:        context.Background(),
		memberships: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rooms returns the number of registered rooms.
func (s *QuizService) Rooms() int {
	return s.sessions.Len()
}

// Join handles a join request. For solo and newly created rooms it blocks for the whole
// game, so transports must call it from its own goroutine. ctx is the connection's lifetime:
// once it is done the connection is never left bound to a room.
func (s *QuizService) Join(ctx context.Context, conn Conn, raw json.RawMessage) {
	if ctx.Err() != nil {
		return
	}
	if _, joined := s.roomOf(conn.ID()); joined {
		s.log.Warn("join ignored, connection already in a room", "conn", conn.ID())
		return
	}
	req, err := domain.ParseJoinRequest(raw, conn.UserID())
	if err != nil {
		s.log.Debug("invalid join payload", "conn", conn.ID(), "err", err)
		s.reject(conn, err)
		return
	}
	switch {
	case req.RoomCode != nil:
		s.joinByCode(ctx, conn, *req.RoomCode)
	case req.Game.MaxPlayers == 1:
		s.playSolo(ctx, conn, *req.Game)
	default:
		s.joinMultiplayer(ctx, conn, *req.Game)
	}
}

func (s *QuizService) joinByCode(ctx context.Context, conn Conn, opts domain.RoomCodeOptions) {
	session, ok := s.sessions.Get(opts.Room)
	if !ok || session.Solo() {
		s.reject(conn, domain.ErrRoomNotFound)
		return
	}
	ack, ok := session.attach(conn, opts.Name, opts.UID)
	if !ok {
		s.reject(conn, domain.ErrRoomNotFound)
		return
	}
	s.bind(conn.ID(), session.ID())
	if !s.connected(ctx, conn) {
		return
	}
	s.send(conn, domain.EventJoin, ack)
}

func (s *QuizService) playSolo(ctx context.Context, conn Conn, opts domain.GameOptions) {
	session, err := s.sessions.Create(conn.ID(), nil, 1)
	if err != nil {
		s.log.Warn("solo room already exists", "conn", conn.ID(), "err", err)
		s.reject(conn, domain.ErrInvalidInput)
		return
	}
	session.attach(conn, opts.Name, opts.UID)
	s.bind(conn.ID(), session.ID())
	if !s.connected(ctx, conn) {
		return
	}

	questions, err := s.bank.Load(ctx, opts)
	if err != nil {
		s.log.Info("question load failed", "room", session.ID(), "err", err)
		s.reject(conn, err)
		s.teardown(session)
		return
	}
	session.load(questions)
	session.confirm(conn.ID())

	s.run(ctx, session)
	s.closeRoom(session, conn)
}

func (s *QuizService) joinMultiplayer(ctx context.Context, conn Conn, opts domain.GameOptions) {
	s.matchMu.Lock()
	for _, session := range s.sessions.Snapshot() {
		if ack, ok := session.attachCompatible(conn, opts); ok {
			s.bind(conn.ID(), session.ID())
			s.matchMu.Unlock()
			if s.connected(ctx, conn) {
				s.send(conn, domain.EventJoin, ack)
			}
			return
		}
	}
	session, err := s.sessions.Create(s.newRoomID(), &opts, opts.MaxPlayers)
	if err != nil {
		s.matchMu.Unlock()
		s.log.Error("create room", "conn", conn.ID(), "err", err)
		s.reject(conn, domain.ConnectionFailure(err))
		return
	}
	session.attach(conn, opts.Name, opts.UID)
	s.bind(conn.ID(), session.ID())
	s.matchMu.Unlock()
	s.log.Info("room created", "room", session.ID(), "max_players", opts.MaxPlayers)

	// Others may already have joined, so the room keeps running without its creator.
	if !s.connected(ctx, conn) && !session.Active() {
		return
	}

	questions, err := s.bank.Load(s.base, opts)
	if err != nil {
		s.log.Info("question load failed", "room", session.ID(), "err", err)
		msg := domain.ClientMessage(err)
		for _, member := range s.teardown(session) {
			s.send(member, domain.EventError, msg)
			_ = member.Close()
		}
		return
	}
	if !session.load(questions) {
		// every member left while questions were loading
		return
	}
	s.send(conn, domain.EventJoin, domain.JoinAck{Room: session.ID(), NumberOfPlayers: len(session.Players())})

	s.waitForPlayers(s.base, session)
	s.run(s.base, session)
	s.closeRoom(session, conn)
}

// connected reports whether the connection is still alive after it was bound. A connection
// that went away first has missed its own Disconnect, so it is detached here.
func (s *QuizService) connected(ctx context.Context, conn Conn) bool {
	if ctx.Err() == nil {
		return true
	}
	s.log.Debug("connection gone before join completed", "conn", conn.ID())
	s.leave(conn.ID())
	return false
}

// waitForPlayers blocks until the room is full, the join timeout fires, or the room closes.
func (s *QuizService) waitForPlayers(ctx context.Context, session *Session) {
	timer := time.NewTimer(s.timing.JoinTimeout)
	defer timer.Stop()
	select {
	case <-session.Full():
	case <-timer.C:
		s.log.Info("join timeout, starting with confirmed players", "room", session.ID(), "players", len(session.Players()))
	case <-session.Done():
	case <-ctx.Done():
	}
}

// Ready confirms the connection as a player of its room.
func (s *QuizService) Ready(conn Conn) {
	roomID, ok := s.roomOf(conn.ID())
	if !ok {
		return
	}
	session, ok := s.sessions.Get(roomID)
	if !ok {
		return
	}
	ack, changed := session.confirm(conn.ID())
	if !changed || session.Solo() {
		return
	}
	s.broadcast(session, domain.EventJoin, ack)
}

// Answer scores an answer for the current question of the connection's room.
func (s *QuizService) Answer(conn Conn, raw json.RawMessage) {
	roomID, ok := s.roomOf(conn.ID())
	if !ok {
		roomID = conn.ID()
	}
	session, ok := s.sessions.Get(roomID)
	if !ok || !session.Active() {
		return
	}
	answer, err := domain.ParseGameAnswer(raw)
	if err != nil {
		s.log.Debug("invalid answer payload", "conn", conn.ID(), "room", roomID, "err", err)
		s.reject(conn, err)
		return
	}
	correct, scored := session.submit(conn.ID(), answer)
	if !scored {
		return
	}
	s.send(conn, domain.EventAnswer, correct)
}

// End detaches the connection from its room without closing the transport.
func (s *QuizService) End(conn Conn) {
	s.leave(conn.ID())
}

// Disconnect releases everything the connection held.
func (s *QuizService) Disconnect(conn Conn) {
	s.leave(conn.ID())
}

func (s *QuizService) leave(connID string) {
	roomID, ok := s.unbind(connID)
	if !ok {
		return
	}
	session, ok := s.sessions.Get(roomID)
	if !ok {
		return
	}
	if session.remove(connID) {
		s.log.Info("room emptied", "room", roomID)
		s.teardown(session)
	}
}

// teardown is the single exit of every room; it is safe to call more than once.
func (s *QuizService) teardown(session *Session) []Conn {
	members, first := session.close()
	if !first {
		return nil
	}
	s.sessions.Delete(session.ID())
	s.mu.Lock()
	for _, conn := range members {
		if s.memberships[conn.ID()] == session.ID() {
			delete(s.memberships, conn.ID())
		}
	}
	s.mu.Unlock()
	s.log.Info("room closed", "room", session.ID())
	return members
}

// closeRoom tears the room down and disconnects its confirmed players and creator.
func (s *QuizService) closeRoom(session *Session, creator Conn) {
	players := session.Players()
	members := s.teardown(session)
	for _, conn := range members {
		if conn.ID() == creator.ID() || slices.Contains(players, conn.ID()) {
			_ = conn.Close()
		}
	}
	_ = creator.Close()
}

func (s *QuizService) reject(conn Conn, err error) {
	s.send(conn, domain.EventError, domain.ClientMessage(err))
	_ = conn.Close()
}

func (s *QuizService) send(conn Conn, event string, payload any) {
	if err := conn.Send(event, payload); err != nil {
		s.log.Debug("send failed", "conn", conn.ID(), "event", event, "err", err)
	}
}

func (s *QuizService) broadcast(session *Session, event string, payload any) {
	for _, conn := range session.recipients() {
		s.send(conn, event, payload)
	}
}

func (s *QuizService) bind(connID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[connID] = roomID
}

func (s *QuizService) unbind(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.memberships[connID]
	delete(s.memberships, connID)
	return roomID, ok
}

func (s *QuizService) roomOf(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.memberships[connID]
	return roomID, ok
}
