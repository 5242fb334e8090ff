package realtime

import (
	"errors"
	"testing"
)

func TestAuthorizeOwnChannel(t *testing.T) {
	a := NewAuthorizer("app-key", "secret")

	token, err := a.Authorize("user-1", UserChannel("user-1"), "socket-1")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !a.Verify(token, UserChannel("user-1"), "socket-1") {
		t.Error("signed token failed verification")
	}
}

func TestAuthorizeForeignChannelDenied(t *testing.T) {
	a := NewAuthorizer("app-key", "secret")

	_, err := a.Authorize("user-1", UserChannel("user-2"), "socket-1")
	if !errors.Is(err, ErrChannelForbidden) {
		t.Errorf("err = %v, want ErrChannelForbidden", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	a := NewAuthorizer("app-key", "secret")

	token, err := a.Authorize("user-1", UserChannel("user-1"), "socket-1")
	if err != nil {
		t.Fatal(err)
	}

	if a.Verify(token, UserChannel("user-1"), "socket-2") {
		t.Error("token valid for a different socket")
	}
	if a.Verify(token, UserChannel("user-2"), "socket-1") {
		t.Error("token valid for a different channel")
	}
	if a.Verify(token+"x", UserChannel("user-1"), "socket-1") {
		t.Error("tampered token accepted")
	}

	other := NewAuthorizer("app-key", "other-secret")
	if other.Verify(token, UserChannel("user-1"), "socket-1") {
		t.Error("token accepted under a different secret")
	}
}
