package errors

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"
)

func TestPredefinedErrorsActAsSentinels(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := fmt.Errorf("listing: %w", From(ErrSessionExpired, cause))

	if !Is(err, ErrSessionExpired) {
		t.Fatal("wrapped copy does not match its sentinel")
	}
	if Is(err, ErrNotAuthenticated) {
		t.Fatal("matched a different code")
	}
	if !Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}

	appErr, ok := As(err)
	if !ok || appErr.Code != "SESSION_EXPIRED" {
		t.Fatalf("As = %v, %v", appErr, ok)
	}
}

func TestFromDoesNotMutatePredefined(t *testing.T) {
	From(ErrNotAuthenticated, nil).WithContext("route", "/dashboard").WithUserMessage("changed")

	if ErrNotAuthenticated.Context != nil {
		t.Errorf("predefined context mutated: %v", ErrNotAuthenticated.Context)
	}
	if ErrNotAuthenticated.UserMessage != "Please sign in to continue" {
		t.Errorf("predefined user message mutated: %q", ErrNotAuthenticated.UserMessage)
	}
}

func TestErrorString(t *testing.T) {
	if got := New(ErrTypeQuery, "QUERY_FAILED", "bad filter").Error(); got != "[query:QUERY_FAILED] bad filter" {
		t.Errorf("Error() = %q", got)
	}
	wrapped := Wrap(stderrors.New("eof"), ErrTypeNetwork, "NETWORK_ERROR", "request failed")
	if got := wrapped.Error(); got != "[network:NETWORK_ERROR] request failed: eof" {
		t.Errorf("Error() = %q", got)
	}
}

func TestLogWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Wrap(stderrors.New("timeout"), ErrTypeNetwork, "NETWORK_ERROR", "deck fetch failed").
		WithContext("owner_id", "u1").
		Log(logger)

	out := buf.String()
	for _, want := range []string{"level=ERROR", `msg="deck fetch failed"`, "type=network", "code=NETWORK_ERROR", "cause=timeout", "owner_id=u1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestFrontendError(t *testing.T) {
	fe := ToFrontendError(From(ErrInvalidCredentials, nil))
	if fe.Code != "INVALID_CREDENTIALS" || fe.Message != "Invalid email or password" || fe.Type != "authentication" {
		t.Errorf("frontend error = %+v", fe)
	}

	generic := ToFrontendError(stderrors.New("pq: secret table name"))
	if generic.Code != "GENERIC_ERROR" || strings.Contains(generic.Message, "secret") {
		t.Errorf("generic error leaked detail: %+v", generic)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{From(ErrInvalidEmail, nil), http.StatusBadRequest},
		{From(ErrNotAuthenticated, nil), http.StatusUnauthorized},
		{New(ErrTypeNetwork, "NETWORK_ERROR", "x"), http.StatusBadGateway},
		{New(ErrTypeQuery, "QUERY_FAILED", "x"), http.StatusBadGateway},
		{From(ErrConfigMissing, nil), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRetryHandler(t *testing.T) {
	transient := New(ErrTypeNetwork, "NETWORK_ERROR", "flaky").WithRetryable(true)

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		err := NewRetryHandler(3, nil).Execute(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Fatalf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("stops on non-retryable errors", func(t *testing.T) {
		calls := 0
		fatal := New(ErrTypeQuery, "QUERY_FAILED", "bad column")
		err := NewRetryHandler(3, nil).Execute(context.Background(), func(context.Context) error {
			calls++
			return fatal
		})
		if err != fatal || calls != 1 {
			t.Fatalf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("single attempt returns the error unchanged", func(t *testing.T) {
		err := NewRetryHandler(1, nil).Execute(context.Background(), func(context.Context) error {
			return transient
		})
		if err != transient {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("exhausted attempts wrap the last error", func(t *testing.T) {
		retried := 0
		h := NewRetryHandler(2, nil)
		h.OnRetry = func(int, error) { retried++ }
		err := h.Execute(context.Background(), func(context.Context) error {
			return transient
		})
		appErr, ok := As(err)
		if !ok || appErr.Code != "MAX_RETRIES_EXCEEDED" || !Is(err, transient) || retried != 1 {
			t.Fatalf("err = %v, retried = %d", err, retried)
		}
	})
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	emails := map[string]string{
		"a@x.com":       "",
		"":              "EMAIL_EMPTY",
		"nope":          "EMAIL_INVALID",
		"Bob <b@x.com>": "EMAIL_INVALID",
		"  c@x.com  ":   "",
	}
	for email, code := range emails {
		res := v.ValidateEmail(email)
		if code == "" {
			if !res.IsValid {
				t.Errorf("ValidateEmail(%q) rejected: %v", email, res.GetFirstError())
			}
			continue
		}
		if res.IsValid || res.GetFirstError().Code != code {
			t.Errorf("ValidateEmail(%q) = %+v, want %s", email, res.GetFirstError(), code)
		}
	}

	if res := v.ValidatePassword("12345"); res.IsValid || res.GetFirstError().Code != "PASSWORD_TOO_SHORT" {
		t.Error("short password accepted")
	}
	if res := v.ValidatePassword("123456"); !res.IsValid {
		t.Error("six character password rejected")
	}

	if res := v.ValidateDeck(" ", ""); res.IsValid || res.GetFirstError().Code != "DECK_TITLE_EMPTY" {
		t.Error("blank title accepted")
	}
	if res := v.ValidateDeck(strings.Repeat("あ", 120), strings.Repeat("x", 500)); !res.IsValid {
		t.Errorf("limits counted in bytes: %v", res.GetFirstError())
	}
	if res := v.ValidateDeck(strings.Repeat("t", 121), strings.Repeat("x", 501)); len(res.Errors) != 2 {
		t.Errorf("errors = %d, want 2", len(res.Errors))
	}

	if res := v.ValidateProvider("github", []string{"google", "github"}); !res.IsValid {
		t.Error("enabled provider rejected")
	}
	res := v.ValidateProvider("gitlab", []string{"github"})
	if res.IsValid || !Is(res.GetFirstError(), ErrProviderNotAllowed) || res.GetFirstError().Context["provider"] != "gitlab" {
		t.Errorf("disabled provider = %+v", res.GetFirstError())
	}
}
