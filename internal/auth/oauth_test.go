package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestBeginLoginSetsStateCookie(t *testing.T) {
	p := NewGoogleOAuth("client", "secret", "http://localhost/cb")
	if !p.Enabled() {
		t.Fatal("expected provider to be enabled")
	}

	rec := httptest.NewRecorder()
	loginURL := p.BeginLogin(rec)

	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("parse login url: %v", err)
	}
	state := u.Query().Get("state")
	if len(state) != 32 {
		t.Fatalf("expected 32 hex chars of state, got %q", state)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != state {
		t.Fatalf("expected state cookie %q, got %+v", state, cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/cb?state="+state, nil)
	req.AddCookie(cookies[0])
	if err := VerifyState(req); err != nil {
		t.Errorf("verify state: %v", err)
	}

	bad := httptest.NewRequest(http.MethodGet, "/cb?state=forged", nil)
	bad.AddCookie(cookies[0])
	if err := VerifyState(bad); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("expected ErrStateMismatch, got %v", err)
	}
}

func TestVerifyStateWithoutCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cb?state=abc", nil)
	if err := VerifyState(req); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("expected ErrStateMismatch, got %v", err)
	}
}

func TestDisabledProvider(t *testing.T) {
	var p *OAuthProvider
	if p.Enabled() {
		t.Error("nil provider should be disabled")
	}
	if NewGoogleOAuth("", "", "").Enabled() {
		t.Error("provider without client id should be disabled")
	}
}
