package backend

import "time"

// User is the backend's view of an account holder.
type User struct {
	ID              string `json:"id"`
	KeycloakUserID  string `json:"keycloak_user_id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	EmailVerified   bool   `json:"email_verified"`
	IsSetupComplete bool   `json:"is_setup_complete"`
	PAN             string `json:"pan,omitempty"`
	Mobile          string `json:"mobile,omitempty"`
	PancardID       string `json:"pancard_id,omitempty"`
}

// Data-session states reported by the consent aggregator.
const (
	SessionPending   = "PENDING"
	SessionPartial   = "PARTIAL"
	SessionCompleted = "COMPLETED"
	SessionExpired   = "EXPIRED"
	SessionFailed    = "FAILED"
)

// SessionStatus is the backend-tracked state of a consent data session,
// looked up by the consent correlation id.
type SessionStatus struct {
	ConsentID  string `json:"consent_id"`
	Exists     bool   `json:"exists"`
	Completed  bool   `json:"completed"`
	Status     string `json:"status"`
	IsReady    bool   `json:"is_ready"`
	UsageCount int    `json:"usage_count"`
}

// LinkingDone reports whether the bank-linking step can advance: the
// session must be completed and not already consumed by a previous
// advancement (a stale completed session must not re-trigger).
func (s SessionStatus) LinkingDone() bool {
	return s.Exists && s.Status == SessionCompleted && s.Completed && s.UsageCount == 0
}

// FetchDone reports whether the data-fetch step can advance.
func (s SessionStatus) FetchDone() bool {
	return s.Exists && s.IsReady
}

// PancardVerification is the result of a PAN verify call.
type PancardVerification struct {
	Verified  bool   `json:"verified"`
	PancardID string `json:"pancard_id,omitempty"`
}

// ConsentLink is the result of initiating the bank-linking consent.
type ConsentLink struct {
	ConsentID  string `json:"consent_id"`
	ConsentURL string `json:"consent_url"`
}

// Transaction is one row of the paginated transactions listing.
type Transaction struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Type            string    `json:"type"`
	Mode            string    `json:"mode"`
	Narration       string    `json:"narration"`
	TransactionDate time.Time `json:"transaction_date"`
}

// TransactionPage is a server-paginated transactions response.
type TransactionPage struct {
	Items      []Transaction `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalItems int           `json:"total_items"`
	TotalPages int           `json:"total_pages"`
}

// AccountMetrics are the dashboard aggregates.
type AccountMetrics struct {
	TotalBalance  string         `json:"total_balance"`
	AccountCount  int            `json:"account_count"`
	CreditTotal   string         `json:"credit_total"`
	DebitTotal    string         `json:"debit_total"`
	ByPaymentType map[string]int `json:"by_payment_type"`
	LastFetchedAt *time.Time     `json:"last_fetched_at,omitempty"`
}
