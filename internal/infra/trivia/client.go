// Package trivia is the HTTP client of the external question provider.
package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"quizly-game-service/internal/domain"
)

// rawQuestion mirrors the provider's question payload.
type rawQuestion struct {
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// FetchQuestions requests GET {base}/questions with every non-empty filter as a query parameter.
// Transport failures and non-200 responses are connection errors.
func (c *Client) FetchQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	reqURL := c.baseURL + "/questions"
	if query := encodeFilter(filter); query != "" {
		reqURL += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.ConnectionFailure(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ConnectionFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.ConnectionFailure(fmt.Errorf("question provider returned status %d", resp.StatusCode))
	}

	var payload []rawQuestion
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.ConnectionFailure(fmt.Errorf("decode questions: %w", err))
	}

	questions := make([]domain.Question, 0, len(payload))
	for _, q := range payload {
		questions = append(questions, domain.NewQuestion(q.Question, q.CorrectAnswer, q.IncorrectAnswers))
	}
	return questions, nil
}

func encodeFilter(f domain.QuestionFilter) string {
	values := url.Values{}
	if len(f.Categories) > 0 {
		values.Set("categories", strings.Join(f.Categories, ","))
	}
	if f.Difficulty != "" {
		values.Set("difficulty", f.Difficulty)
	}
	if len(f.Tags) > 0 {
		values.Set("tags", strings.Join(f.Tags, ","))
	}
	if f.Limit > 0 {
		values.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Region != "" {
		values.Set("region", f.Region)
	}
	return values.Encode()
}
