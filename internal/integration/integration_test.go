package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"quizly-game-service/internal/app"
	"quizly-game-service/internal/cli"
	"quizly-game-service/internal/domain"
	"quizly-game-service/internal/infra/postgres"
	"quizly-game-service/internal/infra/rabbit"
	infraredis "quizly-game-service/internal/infra/redis"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestStoredQuizGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}, "5432/tcp", "postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable")
	redisURL := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp", "redis://%s:%s")
	amqpURL := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "rabbitmq:3-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(90 * time.Second),
	}, "5672/tcp", "amqp://guest:guest@%s:%s/")

	require.NoError(t, cli.RunMigrations(ctx, pgURL))

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer pool.Close()

	accounts := postgres.NewAccountStore(pool)
	_, err = accounts.Create(ctx, domain.Account{UID: "owner-1", Nickname: "ann"})
	require.NoError(t, err)
	_, err = accounts.Create(ctx, domain.Account{UID: "owner-2", Nickname: "ann"})
	require.ErrorIs(t, err, domain.ErrAccountExists)

	loader := postgres.NewQuizLoader(pool)
	require.NoError(t, loader.SaveQuiz(ctx, domain.StoredQuiz{
		ID:      "quiz-1",
		OwnerID: "owner-1",
		Name:    "Arithmetic",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", CorrectAnswer: "4", IncorrectAnswers: []string{"3", "5"}},
		},
	}))

	opts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)
	redisClient := goredis.NewClient(opts)
	defer redisClient.Close()

	publisher, err := rabbit.Dial(amqpURL, "quiz.events")
	require.NoError(t, err)
	defer publisher.Close()
	summaries := consumeSummaries(t, amqpURL, "quiz.events")

	service := app.NewQuizService(
		infraredis.NewSessionStore(redisClient, 5*time.Minute),
		app.NewQuestionBank(accounts, infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute), nil),
		accounts,
		app.WithResultsPublisher(publisher),
		app.WithTiming(app.Timing{
			JoinTimeout:  time.Second,
			AnswerWindow: 2 * time.Second,
			ResultsPause: 10 * time.Millisecond,
			EarlyAdvance: true,
		}),
	)

	conn := newRecorder("c1", "owner-1")
	done := make(chan struct{})
	go func() {
		defer close(done)
		service.Join(ctx, conn, json.RawMessage(`{"name":"ann","max_players":1,"uid":"spoofed","quiz_id":"quiz-1"}`))
	}()

	conn.await(t, domain.EventQuestion)
	service.Answer(conn, json.RawMessage(`{"answer":"4","time":0}`))
	require.Equal(t, domain.Results{"ann": 500}, conn.await(t, domain.EventResults))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("game did not finish")
	}

	_, account, err := accounts.FindByField(ctx, "uid", "owner-1")
	require.NoError(t, err)
	require.Equal(t, 500, account.MaxPoints)

	key, _, err := accounts.FindByField(ctx, "uid", "owner-1")
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, accounts.RecordStats(ctx, key, domain.StatsUpdate{Win: 1, MaxPoints: 100}))
		}()
	}
	wg.Wait()
	_, account, err = accounts.FindByField(ctx, "uid", "owner-1")
	require.NoError(t, err)
	require.Equal(t, 10, account.Win, "concurrent increments are not lost")
	require.Equal(t, 500, account.MaxPoints, "a lower score never replaces the best")
	require.ErrorIs(t, accounts.RecordStats(ctx, "missing", domain.StatsUpdate{Lose: 1}), domain.ErrAccountNotFound)

	require.EqualValues(t, 1, redisClient.Exists(ctx, "quiz:owner-1:quiz-1").Val(), "stored quiz cached in redis")
	require.Zero(t, redisClient.Exists(ctx, "quiz:room:c1").Val(), "room marker cleared")

	select {
	case summary := <-summaries:
		require.Equal(t, "c1", summary.Room)
		require.True(t, summary.Solo)
		require.Len(t, summary.Standings, 1)
		require.Equal(t, "owner-1", summary.Standings[0].UID)
	case <-time.After(10 * time.Second):
		t.Fatal("no game summary published")
	}
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest, port, urlFormat string) string {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("%s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("%s port: %v", req.Image, err)
	}
	return fmt.Sprintf(urlFormat, host, mapped.Port())
}

func consumeSummaries(t *testing.T, url, exchange string) <-chan domain.GameSummary {
	t.Helper()
	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, rabbit.GameFinishedRoutingKey, exchange, false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	out := make(chan domain.GameSummary, 1)
	go func() {
		for d := range deliveries {
			var summary domain.GameSummary
			if err := json.Unmarshal(d.Body, &summary); err == nil {
				out <- summary
			}
		}
	}()
	return out
}

type event struct {
	name    string
	payload any
}

// recorder is an app.Conn that keeps every event it was sent.
type recorder struct {
	id, uid string
	events  chan event
	mu      sync.Mutex
	closed  bool
}

func newRecorder(id, uid string) *recorder {
	return &recorder{id: id, uid: uid, events: make(chan event, 64)}
}

func (r *recorder) ID() string     { return r.id }
func (r *recorder) UserID() string { return r.uid }

func (r *recorder) Send(name string, payload any) error {
	r.events <- event{name: name, payload: payload}
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) await(t *testing.T, name string) any {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if ev.name == domain.EventError {
				t.Fatalf("unexpected error event: %v", ev.payload)
			}
			if ev.name == name {
				return ev.payload
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", name)
			return nil
		}
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
