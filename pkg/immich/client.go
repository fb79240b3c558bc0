// Package immich предоставляет SDK для работы с Immich API.
//
// Это API SDK, а не "тупой" HTTP клиент:
//   - HTTP клиент с retry, rate limiting и классификацией ошибок
//   - Высокоуровневые методы, знающие обёртки ответов Immich
//   - Авто-пагинация для search/metadata и списка тегов
//
// Ядро миграции (pkg/mover) не ходит сюда напрямую: батч-воркфлоу
// получает список помеченных ассетов через этот клиент и скармливает
// их mover-у. Клиент конструируется один раз со своими кредами и
// base-URL и передаётся явно — никакого ambient state.
package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ilkoid/aquarel/pkg/config"
)

// ErrorType представляет тип ошибки при работе с Immich API.
type ErrorType int

const (
	ErrUnknown ErrorType = iota
	ErrAuthFailed
	ErrTimeout
	ErrNetwork
	ErrRateLimit
)

// String возвращает строковое представление типа ошибки.
func (e ErrorType) String() string {
	switch e {
	case ErrAuthFailed:
		return "authentication_failed"
	case ErrTimeout:
		return "timeout"
	case ErrNetwork:
		return "network_error"
	case ErrRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// APIError — ответ сервера с не-2xx статусом.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("immich api error: status %d, body: %s", e.StatusCode, e.Body)
}

// HTTPClient интерфейс для выполнения HTTP запросов.
//
// Позволяет мокировать HTTP клиент в тестах.
// Стандартный *http.Client реализует этот интерфейс.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client — клиент Immich API.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    HTTPClient
	retryAttempts int
	pageSize      int
	limiter       *rate.Limiter
}

// NewFromConfig создает новый клиент из конфигурации.
//
// Поля с нулевыми значениями используют дефолты через GetDefaults().
func NewFromConfig(cfg config.ImmichConfig) (*Client, error) {
	cfg = cfg.GetDefaults()

	if cfg.URL == "" {
		return nil, fmt.Errorf("immich.url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("immich.api_key is required")
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid immich.timeout format: %w", err)
	}

	// rate_limit в запросах/минуту → rate.Limit в запросах/секунду
	ratePerSec := float64(cfg.RateLimit) / 60.0

	return &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		apiKey:        cfg.APIKey,
		retryAttempts: cfg.RetryAttempts,
		pageSize:      cfg.PageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), cfg.BurstLimit),
	}, nil
}

// ClassifyError классифицирует ошибку по типу для лучшей диагностики.
//
// Анализирует текст ошибки и возвращает соответствующий тип:
//   - ErrAuthFailed: ошибки 401, unauthorized, Forbidden
//   - ErrTimeout: timeout, deadline exceeded
//   - ErrNetwork: connection refused, no such host
//   - ErrRateLimit: ошибки 429, Too Many Requests
//   - ErrUnknown: все остальные ошибки
func (c *Client) ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrUnknown
	}

	errMsg := err.Error()
	errMsgLower := strings.ToLower(errMsg)

	if strings.Contains(errMsg, "401") ||
		strings.Contains(errMsgLower, "unauthorized") ||
		strings.Contains(errMsg, "Forbidden") {
		return ErrAuthFailed
	}

	if strings.Contains(errMsgLower, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") {
		return ErrTimeout
	}

	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") {
		return ErrNetwork
	}

	if strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "Too Many Requests") {
		return ErrRateLimit
	}

	return ErrUnknown
}

// doRequest выполняет HTTP запрос с retry логикой и rate limiting.
//
// Реализует retry loop, ожидание лимитера и обработку 429 ответов
// (Retry-After). dest может быть nil для запросов без тела ответа.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body any, dest any) error {
	reqURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if params != nil {
		reqURL.RawQuery = params.Encode()
	}

	var bodyJSON []byte
	if body != nil {
		bodyJSON, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	var lastErr error

	for i := 0; i < c.retryAttempts; i++ {
		// Ждем разрешения от лимитера (блокирует горутину, если превысили лимит)
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		var reader io.Reader
		if bodyJSON != nil {
			reader = bytes.NewReader(bodyJSON)
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
		if err != nil {
			return err
		}

		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue // Сетевая ошибка, пробуем еще
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		// Обработка 429 (Too Many Requests)
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := 1 * time.Second
			if s := resp.Header.Get("Retry-After"); s != "" {
				if sec, err := strconv.Atoi(s); err == nil {
					retryAfter = time.Duration(sec) * time.Second
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfter):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		if dest != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, dest); err != nil {
				return fmt.Errorf("unmarshal error: %w", err)
			}
		}

		return nil // Успех
	}

	return fmt.Errorf("max retries exceeded, last error: %v", lastErr)
}
