// Package consent handles the third-party consent provider's redirect
// callbacks and their classification.
package consent

import (
	"net/url"
)

// Query parameter names carried by the provider's inbound redirect.
const (
	ParamSuccess      = "success"
	ParamID           = "id"
	ParamErrorCode    = "errorcode"
	ParamErrorMessage = "errormsg"
)

// DefaultErrorMessage is shown when the redirect carries an error with
// no message of its own.
const DefaultErrorMessage = "An error occurred during the consent process"

// Tristate is the success flag of a callback: present-true,
// present-false, or absent.
type Tristate int

const (
	SuccessAbsent Tristate = iota
	SuccessTrue
	SuccessFalse
)

// Callback is the normalized form of a consent redirect.
type Callback struct {
	// Success is the provider's tri-state success flag.
	Success Tristate

	// CorrelationID links the redirect to the backend-tracked session.
	CorrelationID string

	// ErrorCode and ErrorMessage are set on failed consents.
	ErrorCode    string
	ErrorMessage string
}

// Error classifies the callback. A nil result means the consent
// succeeded and the wizard should enter the awaiting-confirmation state.
//
// A correlation id with no explicit success flag is treated as success;
// the provider omits the flag on some paths, so absence alone is not an
// error signal.
func (cb Callback) Error() *Error {
	switch {
	case cb.Success == SuccessTrue && cb.CorrelationID != "":
		return nil
	case cb.Success == SuccessFalse || cb.ErrorCode != "" || cb.ErrorMessage != "":
		msg := cb.ErrorMessage
		if msg == "" {
			// Known cancellation codes carry their own copy; anything
			// else falls back to the generic message.
			msg = MessageForCode(cb.ErrorCode)
		}
		return &Error{Code: cb.ErrorCode, Message: msg}
	case cb.CorrelationID != "":
		return nil
	default:
		return &Error{Message: DefaultErrorMessage}
	}
}

// Error is a structured consent failure shown on the dedicated failure
// screen. The single recovery action is going back and retrying.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ParseCallback extracts callback parameters from a request's query.
// The second return is false when the query carries no callback at all.
func ParseCallback(q url.Values) (Callback, bool) {
	success := q.Get(ParamSuccess)
	id := q.Get(ParamID)
	errCode := q.Get(ParamErrorCode)
	errMsg := q.Get(ParamErrorMessage)

	has := (q.Has(ParamSuccess) && id != "") || errCode != "" || errMsg != ""
	if !has {
		return Callback{}, false
	}

	cb := Callback{
		CorrelationID: id,
		ErrorCode:     errCode,
		ErrorMessage:  errMsg,
	}
	switch success {
	case "true":
		cb.Success = SuccessTrue
	case "false":
		cb.Success = SuccessFalse
	}

	return cb, true
}

// RedirectTarget decides whether a request carrying callback params on
// a non-canonical route must be redirected to the wizard route. The
// original query string is preserved so the wizard can classify it.
func RedirectTarget(currentPath, wizardPath string, q url.Values) (string, bool) {
	if _, has := ParseCallback(q); !has {
		return "", false
	}
	if currentPath == wizardPath {
		return "", false
	}

	kept := url.Values{}
	for _, key := range []string{ParamSuccess, ParamID, ParamErrorCode, ParamErrorMessage} {
		if q.Has(key) {
			kept.Set(key, q.Get(key))
		}
	}

	target := wizardPath
	if enc := kept.Encode(); enc != "" {
		target += "?" + enc
	}
	return target, true
}
