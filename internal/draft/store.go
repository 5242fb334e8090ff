// Package draft persists in-progress wizard form data so a reconnect or
// restart resumes the same step's values.
package draft

import (
	"context"
	"errors"
	"sync"

	"github.com/Jitendersingh2001/Wealthyfy/internal/forms"
)

// StorageKey is the fixed key prefix under which drafts are stored.
const StorageKey = "account-setup"

// Whitelist is the set of fields mirrored into durable storage.
// Transient UI state (in-flight OTP, countdowns) is never persisted.
var Whitelist = []string{
	forms.FieldPAN,
	forms.FieldMobile,
	forms.FieldPANVerify,
	forms.FieldConsent,
	forms.FieldPancardID,
	"fiTypes",
	"fetchType",
	"dataPeriod",
	"consentDuration",
}

// Common draft errors.
var (
	ErrNotFound = errors.New("draft not found")
)

// Data is the persisted form snapshot for one user.
type Data struct {
	PAN             string   `json:"pan"`
	Mobile          string   `json:"mobile"`
	PANVerified     bool     `json:"panVerify"`
	Consent         string   `json:"consent"`
	PancardID       string   `json:"pancardId,omitempty"`
	FITypes         []string `json:"fiTypes,omitempty"`
	FetchType       string   `json:"fetchType,omitempty"`
	DataPeriod      string   `json:"dataPeriod,omitempty"`
	ConsentDuration string   `json:"consentDuration,omitempty"`
}

// ToMap flattens the draft for changeset hydration.
func (d Data) ToMap() map[string]any {
	return map[string]any{
		forms.FieldPAN:       d.PAN,
		forms.FieldMobile:    d.Mobile,
		forms.FieldPANVerify: d.PANVerified,
		forms.FieldConsent:   d.Consent,
		forms.FieldPancardID: d.PancardID,
		"fiTypes":            d.FITypes,
		"fetchType":          d.FetchType,
		"dataPeriod":         d.DataPeriod,
		"consentDuration":    d.ConsentDuration,
	}
}

// Merge applies whitelisted changes to the draft. Non-whitelisted keys
// are dropped silently.
func (d *Data) Merge(changes map[string]any) {
	allowed := make(map[string]bool, len(Whitelist))
	for _, k := range Whitelist {
		allowed[k] = true
	}

	for key, value := range changes {
		if !allowed[key] {
			continue
		}
		switch key {
		case forms.FieldPAN:
			d.PAN, _ = value.(string)
		case forms.FieldMobile:
			d.Mobile, _ = value.(string)
		case forms.FieldPANVerify:
			d.PANVerified, _ = value.(bool)
		case forms.FieldConsent:
			d.Consent, _ = value.(string)
		case forms.FieldPancardID:
			d.PancardID, _ = value.(string)
		case "fiTypes":
			d.FITypes, _ = value.([]string)
		case "fetchType":
			d.FetchType, _ = value.(string)
		case "dataPeriod":
			d.DataPeriod, _ = value.(string)
		case "consentDuration":
			d.ConsentDuration, _ = value.(string)
		}
	}
}

// Store persists drafts keyed by user id.
type Store interface {
	// Load returns the stored draft, or ErrNotFound.
	Load(ctx context.Context, userID string) (Data, error)

	// Save overwrites the stored draft.
	Save(ctx context.Context, userID string, d Data) error

	// Clear removes the stored draft. Clearing an absent draft is a no-op.
	Clear(ctx context.Context, userID string) error
}

// MemoryStore is an in-memory Store for tests and single-run setups.
type MemoryStore struct {
	drafts map[string]Data
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]Data)}
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[userID]
	if !ok {
		return Data{}, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) Save(ctx context.Context, userID string, d Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[userID] = d
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
	return nil
}
