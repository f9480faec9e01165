package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/resilience"
)

// ResponseError is a non-2xx answer from the cluster.
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

// responseError decodes the error body of res.
func responseError(res *esapi.Response) error {
	out := &ResponseError{Status: res.StatusCode}

	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if json.Unmarshal(raw, &body) == nil {
		out.Type = body.Error.Type
		out.Reason = body.Error.Reason
	}
	return out
}

// classify retries overload and server errors; other client errors are
// final and do not count against the breaker.
func classify(err error) resilience.ErrorClassification {
	var re *ResponseError
	if errors.As(err, &re) {
		switch {
		case re.Status == http.StatusTooManyRequests, re.Status >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{}
		}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	return resilience.DefaultClassifier(err)
}

// toAppError maps cluster failures onto application errors without leaking
// cluster details to API clients.
func toAppError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeTimeout, op+" timed out", err)
	}
	return apperrors.BackendError(op+" failed", err)
}
