package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/scoring"
)

func answer(v domain.AnswerValue) *domain.AnswerValue { return &v }

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:       "quiz-1",
		LessonID: "lesson-1",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "Which is a fruit?", Options: []string{"Apple", "Carrot"}, Answer: answer(domain.Text("Apple"))},
			{ID: "q2", Prompt: "Select all that apply: primes", Options: []string{"2", "3", "4"}, Answer: answer(domain.Set("2", "3"))},
			{ID: "q3", Prompt: "Capital of France?", Answer: answer(domain.Text("Paris"))},
		},
	}
}

type fakeRepo struct {
	mu          sync.Mutex
	quiz        domain.Quiz
	quizErr     error
	attempts    []domain.Attempt
	attemptsErr error
	submitErr   error
	submitGate  chan struct{}
	submissions [][]domain.SubmittedAnswer

	// blockAttemptsCall makes the nth FetchAttempts call wait for release and return stale data.
	blockAttemptsCall int
	entered           chan struct{}
	release           chan struct{}
	attemptsCalls     int
}

func (r *fakeRepo) FetchQuiz(_ context.Context, lessonID string) (domain.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quizErr != nil {
		return domain.Quiz{}, r.quizErr
	}
	return r.quiz, nil
}

func (r *fakeRepo) FetchAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	r.mu.Lock()
	r.attemptsCalls++
	block := r.attemptsCalls == r.blockAttemptsCall
	attempts := append([]domain.Attempt(nil), r.attempts...)
	err := r.attemptsErr
	r.mu.Unlock()

	if block {
		close(r.entered)
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []domain.Attempt{{ID: "stale", QuizID: quizID}}, nil
	}
	return attempts, err
}

func (r *fakeRepo) SubmitAnswers(ctx context.Context, quizID string, answers []domain.SubmittedAnswer) (int, error) {
	r.mu.Lock()
	gate := r.submitGate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions = append(r.submissions, answers)
	if r.submitErr != nil {
		return 0, r.submitErr
	}
	score := scoring.Grade(r.quiz, answers).Score
	attempt := domain.Attempt{ID: fmt.Sprintf("attempt-%d", len(r.attempts)+1), QuizID: quizID, Score: score}
	r.attempts = append([]domain.Attempt{attempt}, r.attempts...)
	return score, nil
}

func (r *fakeRepo) submitted() [][]domain.SubmittedAnswer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.SubmittedAnswer(nil), r.submissions...)
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type tickers struct {
	mu   sync.Mutex
	list []*fakeTicker
}

func (ts *tickers) new(time.Duration) Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	ts.list = append(ts.list, t)
	return t
}

func (ts *tickers) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.list)
}

func (ts *tickers) last() *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.list[len(ts.list)-1]
}

// tick delivers n ticks to the active ticker.
func (ts *tickers) tick(t *testing.T, n int) {
	t.Helper()
	tk := ts.last()
	for i := 0; i < n; i++ {
		select {
		case tk.ch <- time.Now():
		case <-time.After(time.Second):
			t.Fatalf("tick %d not consumed", i+1)
		}
	}
}

func newTestController(t *testing.T, repo *fakeRepo, duration time.Duration) (*Controller, *tickers) {
	t.Helper()
	ts := &tickers{}
	c := New(Config{
		Repository:    repo,
		LessonID:      "lesson-1",
		Duration:      duration,
		NewTickerFunc: ts.new,
	})
	t.Cleanup(c.Close)
	return c, ts
}

func waitFor(t *testing.T, c *Controller, status Status) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = c.Snapshot()
		return err == nil && snap.Status == status
	}, time.Second, 5*time.Millisecond, "waiting for %s", status)
	return snap
}

func answerAll(t *testing.T, c *Controller) {
	t.Helper()
	require.NoError(t, c.Select("q1", "Apple"))
	require.NoError(t, c.Toggle("q2", "2"))
	require.NoError(t, c.Toggle("q2", "3"))
	require.NoError(t, c.Edit("q3", "paris"))
}

func TestControllerLoadsQuiz(t *testing.T) {
	repo := &fakeRepo{quiz: sampleQuiz(), attempts: []domain.Attempt{{ID: "old", QuizID: "quiz-1", Score: 50}}}
	c, ts := newTestController(t, repo, 0)

	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, snap.Status)

	require.NoError(t, c.Start(context.Background()))
	snap = waitFor(t, c, StatusReady)

	assert.Equal(t, "quiz-1", snap.QuizID)
	assert.Equal(t, 600, snap.Remaining)
	assert.False(t, snap.Loading)
	assert.False(t, snap.Submitted)
	assert.Nil(t, snap.Score)
	assert.False(t, snap.CanSubmit)
	assert.Empty(t, snap.Answers)
	require.Len(t, snap.Questions, 3)
	assert.Equal(t, 1, snap.Questions[0].Number)
	assert.Equal(t, "multi", snap.Questions[1].Mode.String())
	assert.Equal(t, "text", snap.Questions[2].Mode.String())
	assert.Nil(t, snap.Questions[0].Feedback)
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, 1, ts.count())

	assert.ErrorIs(t, c.Start(context.Background()), domain.ErrInvalidState)
}

func TestControllerLoadFailure(t *testing.T) {
	tests := map[string]struct {
		err     error
		message string
	}{
		"no quiz": {
			err:     domain.ErrQuizNotFound,
			message: "no quiz available for this lesson",
		},
		"transport": {
			err:     domain.Unavailable(stderrors.New("connection refused")),
			message: "service unavailable, please try again",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c, ts := newTestController(t, &fakeRepo{quizErr: tc.err}, 0)
			require.NoError(t, c.Start(context.Background()))

			snap := waitFor(t, c, StatusError)
			assert.Equal(t, tc.message, snap.Error)
			assert.False(t, snap.Loading)
			assert.Zero(t, ts.count())
			assert.ErrorIs(t, c.Select("q1", "Apple"), domain.ErrInvalidState)
		})
	}
}

func TestControllerDuplicateQuestionsFailLoad(t *testing.T) {
	quiz := sampleQuiz()
	quiz.Questions[1].ID = "q1"
	c, _ := newTestController(t, &fakeRepo{quiz: quiz}, 0)
	require.NoError(t, c.Start(context.Background()))

	snap := waitFor(t, c, StatusError)
	assert.Equal(t, "duplicate question id", snap.Error)
}

func TestControllerManualSubmit(t *testing.T) {
	repo := &fakeRepo{quiz: sampleQuiz()}
	c, ts := newTestController(t, repo, 0)
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, c, StatusReady)

	require.NoError(t, c.Select("q1", "Apple"))
	require.NoError(t, c.Toggle("q2", "2"))
	assert.ErrorIs(t, c.Submit(), domain.ErrIncomplete)

	require.NoError(t, c.Edit("q3", "   "))
	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap.CanSubmit, "whitespace does not count as an answer")

	require.NoError(t, c.Edit("q3", "paris"))
	snap, err = c.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.CanSubmit)

	require.NoError(t, c.Submit())
	snap = waitFor(t, c, StatusCompleted)

	require.NotNil(t, snap.Score)
	assert.Equal(t, 67, *snap.Score)
	assert.True(t, snap.Submitted)
	assert.False(t, snap.CanSubmit)
	assert.Equal(t, TriggerManual, snap.Trigger)
	assert.True(t, ts.last().isStopped())

	require.Len(t, snap.Questions, 3)
	require.NotNil(t, snap.Questions[0].Feedback)
	assert.True(t, snap.Questions[0].Feedback.Correct)
	assert.False(t, snap.Questions[1].Feedback.Correct)
	assert.True(t, snap.Questions[1].Feedback.Options[1].Correct)
	assert.False(t, snap.Questions[1].Feedback.Options[1].Selected)

	require.Eventually(t, func() bool {
		s, err := c.Snapshot()
		return err == nil && len(s.Attempts) == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Submit(), domain.ErrInvalidState)
	assert.ErrorIs(t, c.Select("q1", "Carrot"), domain.ErrInvalidState)
	assert.Len(t, repo.submitted(), 1)
}

func TestControllerAutoSubmitsOnTimeout(t *testing.T) {
	repo := &fakeRepo{quiz: sampleQuiz()}
	c, ts := newTestController(t, repo, 3*time.Second)
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, c, StatusReady)

	require.NoError(t, c.Select("q1", "Apple"))
	ts.tick(t, 2)

	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Remaining)
	assert.Equal(t, StatusReady, snap.Status)

	ts.tick(t, 1)
	snap = waitFor(t, c, StatusCompleted)

	assert.Equal(t, TriggerTimeout, snap.Trigger)
	assert.Zero(t, snap.Remaining)
	require.NotNil(t, snap.Score)
	assert.Equal(t, 33, *snap.Score)
	assert.True(t, ts.last().isStopped())

	subs := repo.submitted()
	require.Len(t, subs, 1)
	require.Len(t, subs[0], 1)
	assert.Equal(t, "q1", subs[0][0].QuestionID)
}

func TestControllerRetakeResetsAttempt(t *testing.T) {
	repo := &fakeRepo{quiz: sampleQuiz()}
	c, ts := newTestController(t, repo, 5*time.Second)
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, c, StatusReady)

	assert.ErrorIs(t, c.Retake(), domain.ErrInvalidState)

	answerAll(t, c)
	ts.tick(t, 2)
	require.NoError(t, c.Submit())
	waitFor(t, c, StatusCompleted)

	require.NoError(t, c.Retake())
	snap := waitFor(t, c, StatusReady)

	assert.Empty(t, snap.Answers)
	assert.False(t, snap.Submitted)
	assert.Nil(t, snap.Score)
	assert.Equal(t, 5, snap.Remaining)
	assert.Empty(t, snap.Trigger)
	assert.Nil(t, snap.Questions[0].Feedback)
	assert.True(t, snap.Questions[0].Selection.IsEmpty())
	assert.True(t, snap.Questions[1].Selection.IsMulti())
	assert.True(t, snap.Questions[1].Selection.IsEmpty())
	assert.True(t, snap.Questions[2].Selection.IsEmpty())
	assert.Len(t, snap.Attempts, 1)

	require.NoError(t, c.Toggle("q2", "4"))
	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, snap.Answers["q2"].Items())
	assert.Equal(t, 2, ts.count())
	assert.False(t, ts.last().isStopped())
}

func TestControllerDropsStaleResponses(t *testing.T) {
	repo := &fakeRepo{
		quiz:              sampleQuiz(),
		blockAttemptsCall: 2,
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	c, _ := newTestController(t, repo, 0)
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, c, StatusReady)

	answerAll(t, c)
	require.NoError(t, c.Submit())
	waitFor(t, c, StatusCompleted)

	// the post-submit attempts refresh is still pending when the player retakes
	<-repo.entered
	require.NoError(t, c.Retake())
	waitFor(t, c, StatusReady)
	close(repo.release)

	assert.Never(t, func() bool {
		snap, err := c.Snapshot()
		if err != nil {
			return true
		}
		for _, a := range snap.Attempts {
			if a.ID == "stale" {
				return true
			}
		}
		return false
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestControllerKeepsEditsMadeDuringSubmission(t *testing.T) {
	gate := make(chan struct{})
	repo := &fakeRepo{quiz: sampleQuiz(), submitGate: gate}
	c, _ := newTestController(t, repo, 0)
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, c, StatusReady)

	answerAll(t, c)
	require.NoError(t, c.Submit())
	snap := waitFor(t, c, StatusSubmitting)
	assert.False(t, snap.CanSubmit)
	assert.ErrorIs(t, c.Submit(), domain.ErrInvalidState)

	require.NoError(t, c.Edit("q3", "London"))
	close(gate)
	snap = waitFor(t, c, StatusCompleted)

	assert.Equal(t, "London", snap.Answers["q3"].Text())
	require.NotNil(t, snap.Score)
	assert.Equal(t, 100, *snap.Score)
	require.NotNil(t, snap.Questions[0].Feedback)
	assert.True(t, snap.Questions[0].Feedback.Correct)

	// the rendered selection matches what was graded, not the later edit
	assert.Equal(t, "paris", snap.Questions[2].Selection.Text())
	require.NotNil(t, snap.Questions[2].Feedback)
	assert.True(t, snap.Questions[2].Feedback.Correct, "feedback agrees with the score")

	subs := repo.submitted()
	require.Len(t, subs, 1)
	assert.Equal(t, "paris", subs[0][2].Value.Text())
}

func TestControllerSubmitFailureAllowsRetry(t *testing.T) {
	repo := &fakeRepo{quiz: sampleQuiz(), submitErr: domain.Unavailable(stderrors.New("timeout"))}
	c, _ := newTestController(t, repo, 0)
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, c, StatusReady)

	answerAll(t, c)
	require.NoError(t, c.Submit())
	snap := waitFor(t, c, StatusError)

	assert.Equal(t, "service unavailable, please try again", snap.Error)
	assert.False(t, snap.Submitted)
	assert.Nil(t, snap.Score)
	assert.True(t, snap.CanSubmit)

	require.NoError(t, c.Select("q1", "Carrot"))

	repo.mu.Lock()
	repo.submitErr = nil
	repo.mu.Unlock()

	require.NoError(t, c.Submit())
	snap = waitFor(t, c, StatusCompleted)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Score)
	assert.Equal(t, 67, *snap.Score)
}

func TestControllerRoundsCountdownUp(t *testing.T) {
	tests := map[string]struct {
		duration time.Duration
		want     int
	}{
		"half a second":  {duration: 500 * time.Millisecond, want: 1},
		"one and a half": {duration: 1500 * time.Millisecond, want: 2},
		"whole seconds":  {duration: 3 * time.Second, want: 3},
		"unset":          {duration: 0, want: 600},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestController(t, &fakeRepo{quiz: sampleQuiz()}, tc.duration)
			require.NoError(t, c.Start(context.Background()))
			snap := waitFor(t, c, StatusReady)

			assert.Equal(t, tc.want, snap.Remaining)
			assert.False(t, snap.CanSubmit, "nothing answered yet")
			assert.ErrorIs(t, c.Submit(), domain.ErrIncomplete)
		})
	}
}

func TestControllerRejectsInvalidInteractions(t *testing.T) {
	c, _ := newTestController(t, &fakeRepo{quiz: sampleQuiz()}, 0)

	assert.ErrorIs(t, c.Select("q1", "Apple"), domain.ErrInvalidState)
	assert.ErrorIs(t, c.Submit(), domain.ErrInvalidState)
	assert.ErrorIs(t, c.Retake(), domain.ErrInvalidState)

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, c, StatusReady)

	assert.ErrorIs(t, c.Select("missing", "Apple"), domain.ErrUnknownQuestion)
	assert.ErrorIs(t, c.Select("q1", "Banana"), domain.ErrUnknownOption)
	assert.ErrorIs(t, c.Toggle("q1", "Apple"), domain.ErrModeMismatch)
	assert.ErrorIs(t, c.Edit("q2", "2"), domain.ErrModeMismatch)
	require.NoError(t, c.Answer("q2", domain.Set("3", "2", "3")))

	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2", "3"}, snap.Answers["q2"].Items())
}

func TestControllerEmptyQuiz(t *testing.T) {
	c, _ := newTestController(t, &fakeRepo{quiz: domain.Quiz{ID: "empty", LessonID: "lesson-1"}}, 0)
	require.NoError(t, c.Start(context.Background()))
	snap := waitFor(t, c, StatusReady)
	assert.True(t, snap.CanSubmit)

	require.NoError(t, c.Submit())
	snap = waitFor(t, c, StatusCompleted)
	require.NotNil(t, snap.Score)
	assert.Zero(t, *snap.Score)
}

func TestControllerSubscribe(t *testing.T) {
	c, _ := newTestController(t, &fakeRepo{quiz: sampleQuiz()}, 0)

	updates, cancel, err := c.Subscribe()
	require.NoError(t, err)
	defer cancel()

	first := <-updates
	assert.Equal(t, StatusIdle, first.Status)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		select {
		case snap := <-updates:
			return snap.Status == StatusReady
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestControllerClose(t *testing.T) {
	c, ts := newTestController(t, &fakeRepo{quiz: sampleQuiz()}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	waitFor(t, c, StatusReady)

	updates, _, err := c.Subscribe()
	require.NoError(t, err)

	cancel()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("controller did not close with its context")
	}

	assert.True(t, ts.last().isStopped())
	for range updates {
	}
	_, err = c.Snapshot()
	assert.ErrorIs(t, err, domain.ErrClosed)
	assert.ErrorIs(t, c.Submit(), domain.ErrClosed)
	c.Close()
}
