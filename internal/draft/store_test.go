package draft

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Load(ctx, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	d := Data{PAN: "ABCDE1234F", Mobile: "9876543210", PANVerified: true}
	if err := s.Save(ctx, "user-1", d); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PAN != d.PAN || got.Mobile != d.Mobile || !got.PANVerified {
		t.Errorf("got %+v", got)
	}

	// Drafts are per user.
	if _, err := s.Load(ctx, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}

	if err := s.Clear(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}

	// Clearing an absent draft is a no-op.
	if err := s.Clear(ctx, "user-1"); err != nil {
		t.Errorf("Clear on empty: %v", err)
	}
}

func TestMergeRespectsWhitelist(t *testing.T) {
	d := Data{PAN: "ABCDE1234F"}
	d.Merge(map[string]any{
		"mobile":    "9876543210",
		"panVerify": true,
		"theme":     "dark",
		"authToken": "secret",
	})

	if d.Mobile != "9876543210" || !d.PANVerified {
		t.Errorf("whitelisted changes lost: %+v", d)
	}
	if d.PAN != "ABCDE1234F" {
		t.Errorf("untouched field changed: %q", d.PAN)
	}

	m := d.ToMap()
	for _, key := range []string{"theme", "authToken"} {
		if _, ok := m[key]; ok {
			t.Errorf("non-whitelisted key %q persisted", key)
		}
	}
}
