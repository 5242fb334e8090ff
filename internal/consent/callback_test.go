package consent

import (
	"net/url"
	"testing"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name  string
		query string
		has   bool
	}{
		{"success with id", "success=true&id=abc-123", true},
		{"failure with code", "errorcode=E-401", true},
		{"message only", "errormsg=denied", true},
		{"success flag without id", "success=true", false},
		{"id without success flag", "id=abc-123", false},
		{"unrelated params", "page=2&sort=date", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			_, has := ParseCallback(q)
			if has != tt.has {
				t.Errorf("ParseCallback(%q) has = %v, want %v", tt.query, has, tt.has)
			}
		})
	}
}

func TestCallbackError(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		cb := Callback{Success: SuccessTrue, CorrelationID: "abc"}
		if err := cb.Error(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("explicit failure uses provider message", func(t *testing.T) {
		cb := Callback{Success: SuccessFalse, ErrorCode: "E-401", ErrorMessage: "user denied"}
		err := cb.Error()
		if err == nil {
			t.Fatal("expected error")
		}
		if err.Code != "E-401" || err.Message != "user denied" {
			t.Errorf("got %+v", err)
		}
	})

	t.Run("failure without message falls back to default", func(t *testing.T) {
		cb := Callback{ErrorCode: "E-500"}
		err := cb.Error()
		if err == nil {
			t.Fatal("expected error")
		}
		if err.Message != DefaultErrorMessage {
			t.Errorf("message = %q", err.Message)
		}
	})

	t.Run("cancellation code resolves to its message", func(t *testing.T) {
		cb := Callback{Success: SuccessFalse, ErrorCode: "cancel_not_understand"}
		err := cb.Error()
		if err == nil {
			t.Fatal("expected error")
		}
		if err.Message != CancellationMessages["cancel_not_understand"] {
			t.Errorf("message = %q", err.Message)
		}
		if err.Code != "cancel_not_understand" {
			t.Errorf("code = %q", err.Code)
		}
	})

	t.Run("id without success flag is success", func(t *testing.T) {
		cb := Callback{CorrelationID: "abc"}
		if err := cb.Error(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestRedirectTarget(t *testing.T) {
	const wizardPath = "/account-setup"

	t.Run("redirects from foreign route preserving params", func(t *testing.T) {
		q, _ := url.ParseQuery("success=false&errorcode=E1&page=2")
		target, ok := RedirectTarget("/dashboard", wizardPath, q)
		if !ok {
			t.Fatal("expected redirect")
		}
		parsed, err := url.Parse(target)
		if err != nil {
			t.Fatal(err)
		}
		if parsed.Path != wizardPath {
			t.Errorf("path = %q", parsed.Path)
		}
		kept := parsed.Query()
		if kept.Get("success") != "false" || kept.Get("errorcode") != "E1" {
			t.Errorf("params dropped: %v", kept)
		}
		if kept.Has("page") {
			t.Error("unrelated param leaked into redirect")
		}
	})

	t.Run("no redirect when already on wizard route", func(t *testing.T) {
		q, _ := url.ParseQuery("success=true&id=abc")
		if _, ok := RedirectTarget(wizardPath, wizardPath, q); ok {
			t.Error("unexpected redirect")
		}
	})

	t.Run("no redirect without callback params", func(t *testing.T) {
		q, _ := url.ParseQuery("tab=holdings")
		if _, ok := RedirectTarget("/dashboard", wizardPath, q); ok {
			t.Error("unexpected redirect")
		}
	})
}

func TestMessageForCode(t *testing.T) {
	if msg := MessageForCode("nonexistent-code"); msg != DefaultErrorMessage {
		t.Errorf("unknown code should fall back to default, got %q", msg)
	}
	for code := range CancellationMessages {
		if MessageForCode(code) == DefaultErrorMessage {
			t.Errorf("cancellation code %q has no dedicated message", code)
		}
	}
}
