// Package session drives a single quiz attempt: loading, countdown, answer capture,
// submission (manual or on timeout), results and retakes.
//
// All state lives on one event loop goroutine. Repository calls run in the background and
// post their results back to the loop tagged with a generation number, so responses that
// arrive after a retake are recognised and dropped.
package session

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/errors"
	"lesson-quiz-service/internal/question"
	"lesson-quiz-service/internal/telemetry"
)

// Repository supplies quizzes and attempts, and scores submissions.
type Repository interface {
	// FetchQuiz fails with domain.ErrQuizNotFound when the lesson has no quiz.
	FetchQuiz(ctx context.Context, lessonID string) (domain.Quiz, error)
	// FetchAttempts returns an empty list when nothing has been recorded.
	FetchAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error)
	// SubmitAnswers scores the answers and records a new attempt.
	SubmitAnswers(ctx context.Context, quizID string, answers []domain.SubmittedAnswer) (int, error)
}

type Config struct {
	Repository    Repository
	LessonID      string
	Duration      time.Duration
	NewTickerFunc func(d time.Duration) Ticker
	Logger        *slog.Logger
}

// Controller owns the state of one quiz attempt. Create it with New and release it with Close.
type Controller struct {
	repo      Repository
	lessonID  string
	duration  int
	newTicker func(d time.Duration) Ticker
	log       *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	startOnce sync.Once

	// Fields below are owned by the loop goroutine.
	status      Status
	failedPhase Status
	gen         uint64
	quiz        *domain.Quiz
	models      []*question.Model
	answers     map[string]domain.AnswerValue
	pending     map[string]domain.AnswerValue
	graded      map[string]domain.AnswerValue
	remaining   int
	submitting  bool
	submitted   bool
	score       *int
	attempts    []domain.Attempt
	loading     bool
	errMsg      string
	trigger     Trigger
	ticker      Ticker
	tickC       <-chan time.Time
	subscribers map[chan Snapshot]struct{}
}

// New creates an idle controller and starts its event loop.
func New(c Config) *Controller {
	duration := c.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	newTicker := c.NewTickerFunc
	if newTicker == nil {
		newTicker = newTimeTicker
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seconds := countdownSeconds(duration)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Controller{
		repo:        c.Repository,
		lessonID:    c.LessonID,
		duration:    seconds,
		newTicker:   newTicker,
		log:         logger.With("lesson", c.LessonID),
		ctx:         ctx,
		cancel:      cancel,
		cmds:        make(chan func()),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		status:      StatusIdle,
		answers:     make(map[string]domain.AnswerValue),
		remaining:   seconds,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	go s.run()
	return s
}

// countdownSeconds rounds d up to whole seconds, so a countdown never starts at zero.
func countdownSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// Start moves Idle -> Loading. The controller is closed when ctx is done.
func (s *Controller) Start(ctx context.Context) error {
	var err error = domain.ErrInvalidState
	s.startOnce.Do(func() {
		context.AfterFunc(ctx, s.Close)
		err = s.do(func() error {
			if s.status != StatusIdle {
				return domain.ErrInvalidState
			}
			s.load()
			return nil
		})
	})
	return err
}

// Retake starts a fresh attempt after a completed or failed one.
func (s *Controller) Retake() error {
	return s.do(func() error {
		if s.status != StatusCompleted && s.status != StatusError {
			return domain.ErrInvalidState
		}
		s.log.Info("session: retake")
		s.load()
		return nil
	})
}

// Select chooses option for a single-choice question.
func (s *Controller) Select(questionID, option string) error {
	return s.interact(questionID, func(m *question.Model) error { return m.Select(option) })
}

// Toggle flips option for a multi-select question.
func (s *Controller) Toggle(questionID, option string) error {
	return s.interact(questionID, func(m *question.Model) error { return m.Toggle(option) })
}

// Edit replaces the text of a free-text question.
func (s *Controller) Edit(questionID, text string) error {
	return s.interact(questionID, func(m *question.Model) error { return m.Edit(text) })
}

// Answer assigns a whole answer value to a question.
func (s *Controller) Answer(questionID string, value domain.AnswerValue) error {
	return s.interact(questionID, func(m *question.Model) error { return m.Set(value) })
}

// Submit sends the current answers for scoring. It fails with domain.ErrIncomplete
// while a required answer is missing, unless the countdown has already run out.
func (s *Controller) Submit() error {
	return s.do(func() error {
		return s.submit(TriggerManual)
	})
}

// Snapshot returns the current state.
func (s *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// Subscribe returns a channel that receives a snapshot after every state change, starting with
// the current one. Slow readers only miss intermediate states. Call cancel to unsubscribe.
func (s *Controller) Subscribe() (<-chan Snapshot, func(), error) {
	ch := make(chan Snapshot, 8)
	err := s.do(func() error {
		s.subscribers[ch] = struct{}{}
		ch <- s.snapshot()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	cancel := func() {
		_ = s.do(func() error {
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
			return nil
		})
	}
	return ch, cancel, nil
}

// Close stops the countdown, drops in-flight responses and closes subscriptions.
func (s *Controller) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.loopDone
	})
}

// Done is closed once the controller has shut down.
func (s *Controller) Done() <-chan struct{} {
	return s.loopDone
}

func (s *Controller) run() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.done:
			s.teardown()
			return
		case fn := <-s.cmds:
			fn()
		case <-s.tickC:
			s.tick()
		}
	}
}

// do runs fn on the loop and waits for its result.
func (s *Controller) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.cmds <- func() { errc <- fn() }:
	case <-s.done:
		return domain.ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.loopDone:
		select {
		case err := <-errc:
			return err
		default:
			return domain.ErrClosed
		}
	}
}

// post hands an asynchronous result to the loop; it is dropped after Close.
func (s *Controller) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

func (s *Controller) teardown() {
	s.stopTicker()
	s.cancel()
	s.gen++
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.log.Debug("session: closed")
}

func (s *Controller) load() {
	s.gen++
	gen := s.gen

	s.stopTicker()
	s.status = StatusLoading
	s.quiz = nil
	s.answers = make(map[string]domain.AnswerValue)
	s.pending = nil
	s.graded = nil
	s.remaining = s.duration
	s.submitting = false
	s.submitted = false
	s.score = nil
	s.attempts = nil
	s.loading = true
	s.errMsg = ""
	s.trigger = ""
	s.broadcast()

	ctx, repo, lessonID := s.ctx, s.repo, s.lessonID
	go func() {
		quiz, err := repo.FetchQuiz(ctx, lessonID)
		var attempts []domain.Attempt
		if err == nil {
			attempts, err = repo.FetchAttempts(ctx, quiz.ID)
		}
		s.post(func() { s.loaded(gen, quiz, attempts, err) })
	}()
}

func (s *Controller) loaded(gen uint64, quiz domain.Quiz, attempts []domain.Attempt, err error) {
	if s.stale(gen, "load") {
		return
	}
	s.loading = false
	if err == nil {
		err = quiz.Validate()
	}
	if err != nil {
		s.fail(StatusLoading, err)
		return
	}

	s.quiz = &quiz
	s.attempts = attempts
	s.models = s.reuseModels(quiz.Questions)
	s.status = StatusReady
	s.startTicker()
	s.log.Info("session: quiz ready", "quiz", quiz.ID, "questions", len(quiz.Questions))
	s.broadcast()
}

// reuseModels points the models of a previous attempt at the freshly loaded questions
// and clears their selections; extra questions get new models.
func (s *Controller) reuseModels(questions []domain.Question) []*question.Model {
	models := make([]*question.Model, 0, len(questions))
	for i, q := range questions {
		if i < len(s.models) {
			m := s.models[i]
			m.Load(q)
			m.Reset()
			models = append(models, m)
			continue
		}
		models = append(models, question.New(q, s.record))
	}
	return models
}

// record is the answer sink for every question model.
func (s *Controller) record(questionID string, value domain.AnswerValue) {
	s.answers[questionID] = value
}

func (s *Controller) interact(questionID string, fn func(m *question.Model) error) error {
	return s.do(func() error {
		if !s.editable() {
			return domain.ErrInvalidState
		}
		m := s.model(questionID)
		if m == nil {
			return domain.ErrUnknownQuestion
		}
		if err := fn(m); err != nil {
			return err
		}
		s.broadcast()
		return nil
	})
}

// editable answers stay open while a submission is in flight or after it failed;
// the in-flight submission keeps its own copy.
func (s *Controller) editable() bool {
	switch s.status {
	case StatusReady, StatusSubmitting:
		return true
	case StatusError:
		return s.failedPhase == StatusSubmitting
	default:
		return false
	}
}

func (s *Controller) model(questionID string) *question.Model {
	for _, m := range s.models {
		if m.Question().ID == questionID {
			return m
		}
	}
	return nil
}

func (s *Controller) submittable() bool {
	switch {
	case s.submitting || s.submitted || s.quiz == nil:
		return false
	case s.status == StatusReady:
		return true
	case s.status == StatusError:
		return s.failedPhase == StatusSubmitting
	default:
		return false
	}
}

// complete reports whether every question has a non-empty answer.
func (s *Controller) complete() bool {
	if s.quiz == nil {
		return false
	}
	for _, q := range s.quiz.Questions {
		v, ok := s.answers[q.ID]
		if !ok || v.IsEmpty() {
			return false
		}
	}
	return true
}

func (s *Controller) submit(trigger Trigger) error {
	if !s.submittable() {
		return domain.ErrInvalidState
	}
	if trigger == TriggerManual && s.remaining > 0 && !s.complete() {
		return domain.ErrIncomplete
	}

	s.submitting = true
	s.status = StatusSubmitting
	s.trigger = trigger
	s.errMsg = ""
	s.stopTicker()

	s.pending = make(map[string]domain.AnswerValue, len(s.answers))
	answers := make([]domain.SubmittedAnswer, 0, len(s.answers))
	for _, q := range s.quiz.Questions {
		if v, ok := s.answers[q.ID]; ok {
			s.pending[q.ID] = v
			answers = append(answers, domain.SubmittedAnswer{QuestionID: q.ID, Value: v})
		}
	}

	telemetry.Submissions.WithLabelValues(string(trigger)).Inc()
	s.log.Info("session: submitting", "quiz", s.quiz.ID, "trigger", trigger, "answered", len(answers))
	s.broadcast()

	gen, ctx, repo, quizID := s.gen, s.ctx, s.repo, s.quiz.ID
	go func() {
		score, err := repo.SubmitAnswers(ctx, quizID, answers)
		s.post(func() { s.scored(gen, score, err) })
	}()
	return nil
}

func (s *Controller) scored(gen uint64, score int, err error) {
	if s.stale(gen, "submit") {
		return
	}
	s.submitting = false
	if err != nil {
		s.fail(StatusSubmitting, err)
		return
	}

	s.submitted = true
	s.score = &score
	s.graded = s.pending
	s.pending = nil
	s.status = StatusCompleted
	s.log.Info("session: completed", "quiz", s.quiz.ID, "score", score, "trigger", s.trigger)
	s.broadcast()

	ctx, repo, quizID := s.ctx, s.repo, s.quiz.ID
	go func() {
		attempts, err := repo.FetchAttempts(ctx, quizID)
		s.post(func() { s.refreshed(gen, attempts, err) })
	}()
}

func (s *Controller) refreshed(gen uint64, attempts []domain.Attempt, err error) {
	if s.stale(gen, "attempts") {
		return
	}
	if err != nil {
		s.log.Warn("session: refresh attempts failed", "error", err)
		return
	}
	s.attempts = attempts
	s.broadcast()
}

func (s *Controller) fail(phase Status, err error) {
	s.stopTicker()
	s.status = StatusError
	s.failedPhase = phase
	s.errMsg = message(err)
	telemetry.SessionFailures.WithLabelValues(phase.String()).Inc()
	s.log.Warn("session: "+phase.String()+" failed", "error", err)
	s.broadcast()
}

func (s *Controller) stale(gen uint64, op string) bool {
	if gen == s.gen {
		return false
	}
	telemetry.StaleResponses.Inc()
	s.log.Debug("session: dropped stale response", "op", op, "gen", gen, "current", s.gen)
	return true
}

func (s *Controller) tick() {
	if s.status != StatusReady || s.submitting || s.submitted {
		s.stopTicker()
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining > 0 {
		s.broadcast()
		return
	}
	if err := s.submit(TriggerTimeout); err != nil {
		s.log.Error("session: auto-submit failed", "error", err)
	}
}

func (s *Controller) startTicker() {
	s.stopTicker()
	s.ticker = s.newTicker(time.Second)
	s.tickC = s.ticker.C()
}

func (s *Controller) stopTicker() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	s.tickC = nil
}

func (s *Controller) snapshot() Snapshot {
	snap := Snapshot{
		Status:    s.status,
		LessonID:  s.lessonID,
		Answers:   make(map[string]domain.AnswerValue, len(s.answers)),
		Remaining: s.remaining,
		Submitted: s.submitted,
		Loading:   s.loading,
		Error:     s.errMsg,
		Trigger:   s.trigger,
		Attempts:  make([]domain.Attempt, len(s.attempts)),
	}
	for k, v := range s.answers {
		snap.Answers[k] = v
	}
	copy(snap.Attempts, s.attempts)
	if s.score != nil {
		score := *s.score
		snap.Score = &score
	}

	if s.quiz != nil {
		snap.QuizID = s.quiz.ID
		snap.Questions = make([]question.View, 0, len(s.models))
		for i, m := range s.models {
			v := m.View(i + 1)
			if s.submitted {
				q := s.quiz.Questions[i]
				graded, ok := s.graded[q.ID]
				if !ok {
					graded = question.EmptyValue(m.Mode())
				}
				v.Selection = graded
				fb := question.Evaluate(q, graded)
				v.Feedback = &fb
			}
			snap.Questions = append(snap.Questions, v)
		}
	}

	snap.CanSubmit = s.submittable() && (s.remaining == 0 || s.complete())
	return snap
}

func (s *Controller) broadcast() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshot()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the oldest update so a slow reader never blocks the loop
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// message is the text shown to the player for a failed repository call.
func message(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
