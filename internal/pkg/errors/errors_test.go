package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeInternal, "wrapped", underlying)

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should see the wrapped error")
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
		{CodeBackend, http.StatusInternalServerError},
		{CodeCorpus, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test")
			if status := err.HTTPStatus(); status != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := New(CodeValidation, "invalid").
		WithDetail("field", "size").
		WithDetail("reason", "must be positive")

	if err.Details["field"] != "size" {
		t.Errorf("Details[field] = %s, want size", err.Details["field"])
	}
	if err.Details["reason"] != "must be positive" {
		t.Errorf("Details[reason] = %s, want 'must be positive'", err.Details["reason"])
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("document 12")
		if err.Code != CodeNotFound {
			t.Errorf("Code = %s, want %s", err.Code, CodeNotFound)
		}
		if err.Message != "document 12 not found" {
			t.Errorf("Message = %s, want 'document 12 not found'", err.Message)
		}
	})

	t.Run("MissingParameterError", func(t *testing.T) {
		err := MissingParameterError("q")
		if err.Code != CodeInvalidRequest {
			t.Errorf("Code = %s, want %s", err.Code, CodeInvalidRequest)
		}
		if err.Details["parameter"] != "q" {
			t.Errorf("Details[parameter] = %s, want q", err.Details["parameter"])
		}
	})

	t.Run("BackendError", func(t *testing.T) {
		underlying := errors.New("connection refused")
		err := BackendError("search failed", underlying)
		if err.Code != CodeBackend {
			t.Errorf("Code = %s, want %s", err.Code, CodeBackend)
		}
		if err.Unwrap() != underlying {
			t.Error("Underlying error not preserved")
		}
	})

	t.Run("ServiceUnavailableError", func(t *testing.T) {
		err := ServiceUnavailableError("event bus")
		if err.HTTPStatus() != http.StatusServiceUnavailable {
			t.Errorf("HTTPStatus() = %d, want 503", err.HTTPStatus())
		}
		if err.Message != "event bus is unavailable" {
			t.Errorf("Message = %s", err.Message)
		}
	})

	t.Run("RateLimitedError", func(t *testing.T) {
		err := RateLimitedError(2)
		if err.Details["retry_after"] != "2" {
			t.Errorf("Details[retry_after] = %s, want 2", err.Details["retry_after"])
		}
	})
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NotFoundError("test")) {
		t.Error("IsNotFound(NotFoundError) = false, want true")
	}
	if !IsNotFound(fmt.Errorf("lookup: %w", NotFoundError("test"))) {
		t.Error("IsNotFound should unwrap wrapped AppErrors")
	}
	if IsNotFound(ValidationError("test")) {
		t.Error("IsNotFound(ValidationError) = true, want false")
	}
	if IsNotFound(errors.New("standard error")) {
		t.Error("IsNotFound(standard error) = true, want false")
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(ValidationError("test")) {
		t.Error("IsValidation(ValidationError) = false, want true")
	}
	if !IsValidation(MissingParameterError("q")) {
		t.Error("IsValidation(MissingParameterError) = false, want true")
	}
	if IsValidation(NotFoundError("test")) {
		t.Error("IsValidation(NotFoundError) = true, want false")
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing parameter",
			err:        MissingParameterError("q"),
			wantStatus: http.StatusBadRequest,
			wantError:  "Query parameter 'q' is required.",
		},
		{
			name:       "not found",
			err:        NotFoundError("document 7"),
			wantStatus: http.StatusNotFound,
			wantError:  "document 7 not found",
		},
		{
			name:       "plain error is sanitized",
			err:        errors.New("dial tcp 10.0.0.1:9200: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
		})
	}
}
