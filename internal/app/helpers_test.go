package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quizly-game-service/internal/app"
	"quizly-game-service/internal/domain"
	"quizly-game-service/internal/infra/memory"
)

type sentEvent struct {
	name    string
	payload any
}

// fakeConn records everything the service sends to a connection.
type fakeConn struct {
	id     string
	uid    string
	events chan sentEvent

	mu     sync.Mutex
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, events: make(chan sentEvent, 128)}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.uid }

func (c *fakeConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.events <- sentEvent{name: event, payload: payload}:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// waitFor skips events until one named event arrives and returns its payload.
func waitFor(t *testing.T, c *fakeConn, event string) any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.events:
			if ev.name == event {
				return ev.payload
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for %q", c.id, event)
			return nil
		}
	}
}

type staticProvider struct {
	questions []domain.Question
	err       error

	mu      sync.Mutex
	filters []domain.QuestionFilter
}

func (p *staticProvider) FetchQuestions(_ context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters = append(p.filters, filter)
	return p.questions, p.err
}

// blockingProvider holds every fetch until release is closed.
type blockingProvider struct {
	questions []domain.Question
	err       error
	called    chan struct{}
	release   chan struct{}
	once      sync.Once
	calls     atomic.Int32
}

func newBlockingProvider(questions []domain.Question, err error) *blockingProvider {
	return &blockingProvider{
		questions: questions,
		err:       err,
		called:    make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (p *blockingProvider) FetchQuestions(ctx context.Context, _ domain.QuestionFilter) ([]domain.Question, error) {
	p.calls.Add(1)
	p.once.Do(func() { close(p.called) })
	select {
	case <-p.release:
		return p.questions, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *blockingProvider) waitCalled(t *testing.T) {
	t.Helper()
	select {
	case <-p.called:
	case <-time.After(2 * time.Second):
		t.Fatalf("provider was never called")
	}
}

// droppingCtx stays alive for its first Err check and reports cancellation afterwards,
// like a socket that closes while its join is being handled.
type droppingCtx struct {
	context.Context
	checks atomic.Int32
}

func dropAfterFirstCheck() *droppingCtx {
	return &droppingCtx{Context: context.Background()}
}

func (c *droppingCtx) Err() error {
	if c.checks.Add(1) > 1 {
		return context.Canceled
	}
	return nil
}

type capturePublisher struct {
	mu        sync.Mutex
	summaries []domain.GameSummary
}

func (p *capturePublisher) PublishResults(_ context.Context, summary domain.GameSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, summary)
	return nil
}

func (p *capturePublisher) all() []domain.GameSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.GameSummary(nil), p.summaries...)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{Text: "What is 2 + 2?", CorrectAnswer: "4", IncorrectAnswers: []string{"3", "5", "22"}},
	}
}

func fastTiming() app.Timing {
	return app.Timing{
		JoinTimeout:  time.Second,
		AnswerWindow: time.Second,
		ResultsPause: 10 * time.Millisecond,
		EarlyAdvance: true,
	}
}

type fixture struct {
	service   *app.QuizService
	provider  *staticProvider
	accounts  *memory.AccountStore
	publisher *capturePublisher
}

func newFixture(opts ...app.Option) *fixture {
	provider := &staticProvider{questions: sampleQuestions()}
	f := newFixtureWith(provider, opts...)
	f.provider = provider
	return f
}

func newFixtureWith(provider app.QuestionProvider, opts ...app.Option) *fixture {
	accounts := memory.NewAccountStore(domain.Account{UID: "owner-1", Nickname: "owner"})
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(domain.StoredQuiz{
		ID:        "quiz-1",
		OwnerID:   "owner-1",
		Questions: sampleQuestions(),
	}), time.Minute)
	publisher := &capturePublisher{}

	opts = append([]app.Option{app.WithTiming(fastTiming()), app.WithResultsPublisher(publisher)}, opts...)
	service := app.NewQuizService(
		memory.NewSessionStore(),
		app.NewQuestionBank(accounts, quizzes, provider),
		accounts,
		opts...,
	)
	return &fixture{service: service, accounts: accounts, publisher: publisher}
}

// join runs Join in its own goroutine and returns a channel closed when it returns.
func (f *fixture) join(conn *fakeConn, raw string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.service.Join(context.Background(), conn, json.RawMessage(raw))
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("join did not return")
	}
}
