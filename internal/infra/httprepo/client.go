// Package httprepo implements session.Repository against the quiz REST API.
package httprepo

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/errors"
	"lesson-quiz-service/internal/session"
)

const defaultTimeout = 10 * time.Second

// Client talks to a running quiz server.
type Client struct {
	base string
	http *http.Client
}

var _ session.Repository = (*Client)(nil)

// New returns a client for the server at baseURL. A nil httpClient gets a default with a timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type submitRequest struct {
	Answers []domain.SubmittedAnswer `json:"answers"`
}

type submitResponse struct {
	Score int `json:"score"`
}

func (c *Client) FetchQuiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.do(ctx, http.MethodGet, "/api/lessons/"+url.PathEscape(lessonID)+"/quiz", nil, &quiz)
	var st *statusErr
	if stderrors.As(err, &st) && st.status == http.StatusNotFound && st.code == errors.CodeNotFound {
		return quiz, domain.ErrQuizNotFound
	}
	return quiz, err
}

func (c *Client) FetchAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	attempts := []domain.Attempt{}
	if err := c.do(ctx, http.MethodGet, "/api/quizzes/"+url.PathEscape(quizID)+"/attempts", nil, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

func (c *Client) SubmitAnswers(ctx context.Context, quizID string, answers []domain.SubmittedAnswer) (int, error) {
	var resp submitResponse
	body := submitRequest{Answers: answers}
	if err := c.do(ctx, http.MethodPost, "/api/quizzes/"+url.PathEscape(quizID)+"/submissions", body, &resp); err != nil {
		return 0, err
	}
	return resp.Score, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Internal(err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return errors.Internal(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(method, path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Unavailable(fmt.Errorf("%s %s: decode response: %w", method, path, err))
	}
	return nil
}

// statusErr describes an error response. Only FetchQuiz treats a coded 404 as a missing quiz;
// every other failure is reported as retryable.
type statusErr struct {
	method, path string
	status       int
	code         errors.Code
	message      string
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("%s %s: status %d (%s): %s", e.method, e.path, e.status, e.code, e.message)
}

func statusError(method, path string, resp *http.Response) error {
	st := &statusErr{method: method, path: path, status: resp.StatusCode}

	var apiErr errors.Error
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		st.code, st.message = apiErr.Code, apiErr.Message
	} else {
		st.code = errors.CodeFromHTTP(resp.StatusCode)
		if st.code == errors.CodeNotFound {
			// not an API error body, e.g. a router 404 behind a wrong base URL
			st.code = errors.CodeUnavailable
		}
		st.message = strings.TrimSpace(string(raw))
	}
	return domain.Unavailable(st)
}
