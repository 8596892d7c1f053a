package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cf-suggest/internal/domain"
	"cf-suggest/internal/infra/metrics"
)

// Client ходит в публичный Codeforces API. Все операции только читают;
// ретраев нет, медленный ответ держит вызывающего до таймаута транспорта.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

var _ domain.ProblemSource = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// envelope — конверт каждого ответа API: status, comment и result.
type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchUserProfile возвращает профиль пользователя из user.info.
func (c *Client) FetchUserProfile(ctx context.Context, handle string) (domain.UserProfile, error) {
	query := url.Values{"handles": {handle}}
	var users []domain.UserProfile
	if err := c.get(ctx, "user.info", query, &users); err != nil {
		return domain.UserProfile{}, err
	}
	if len(users) == 0 {
		return domain.UserProfile{}, fmt.Errorf("%w: пустой результат user.info для %q", domain.ErrRemote, handle)
	}
	return users[0], nil
}

// FetchSubmissions возвращает историю посылок из user.status в порядке API.
func (c *Client) FetchSubmissions(ctx context.Context, handle string) ([]domain.Submission, error) {
	query := url.Values{"handle": {handle}}
	var submissions []domain.Submission
	if err := c.get(ctx, "user.status", query, &submissions); err != nil {
		return nil, err
	}
	return submissions, nil
}

// FetchProblemCatalog возвращает полный каталог задач из problemset.problems.
func (c *Client) FetchProblemCatalog(ctx context.Context) ([]domain.Problem, error) {
	var result struct {
		Problems []domain.Problem `json:"problems"`
	}
	if err := c.get(ctx, "problemset.problems", nil, &result); err != nil {
		return nil, err
	}
	return result.Problems, nil
}

func (c *Client) get(ctx context.Context, method string, query url.Values, out any) error {
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/" + method
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	start := time.Now()
	err := c.doGet(ctx, endpoint.String(), out)
	metrics.ObserveNetworkRequest("codeforces", method, endpoint.Host, start, err)
	if err != nil {
		metrics.RemoteErrors.Inc()
	}
	return err
}

func (c *Client) doGet(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: создание запроса: %v", domain.ErrRemote, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemote, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: чтение ответа: %v", domain.ErrRemote, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: статус %d", domain.ErrRemote, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: разбор конверта: %v", domain.ErrRemote, err)
	}
	if env.Status != "OK" {
		comment := env.Comment
		if comment == "" {
			comment = "статус " + env.Status
		}
		return fmt.Errorf("%w: %s", domain.ErrRemote, comment)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%w: разбор result: %v", domain.ErrRemote, err)
	}
	return nil
}
