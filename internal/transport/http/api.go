package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/errors"
	"lesson-quiz-service/internal/session"
)

// API exposes the session.Repository operations over REST so remote players
// (see infra/httprepo) can run a session against this server.
type API struct {
	repo session.Repository
}

func NewAPI(repo session.Repository) *API {
	return &API{repo: repo}
}

// Routes mounts under /api.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/lessons/{lessonID}/quiz", a.getLessonQuiz)
	r.Get("/quizzes/{quizID}/attempts", a.listAttempts)
	r.Post("/quizzes/{quizID}/submissions", a.submit)
	return r
}

type submitRequest struct {
	Answers []domain.SubmittedAnswer `json:"answers"`
}

type submitResponse struct {
	Score int `json:"score"`
}

func (a *API) getLessonQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := a.repo.FetchQuiz(r.Context(), chi.URLParam(r, "lessonID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("view") == "player" {
		quiz = quiz.PlayerView()
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (a *API) listAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := a.repo.FetchAttempts(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, errors.New(errors.CodeInvalidArgument, errors.WithMessage("invalid submission body"), errors.WithCause(err)))
		return
	}
	score, err := a.repo.SubmitAnswers(r.Context(), chi.URLParam(r, "quizID"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Score: score})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(r.Context(), "http: request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, e.HTTPStatusCode(), e)
}
