package forms

import (
	"regexp"
	"strings"
)

// Field names used across the wizard forms and the draft store.
const (
	FieldPAN       = "pan"
	FieldMobile    = "mobile"
	FieldOTP       = "otp"
	FieldPANVerify = "panVerify"
	FieldConsent   = "consent"
	FieldPancardID = "pancardId"
)

// Exact-length requirements per field.
const (
	PANLength    = 10
	MobileLength = 10
	OTPLength    = 6
)

// Format patterns. PAN is the Indian income-tax format, e.g. ABCDE1234F.
var (
	panPattern    = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)
	otpPattern    = regexp.MustCompile(`^\d+$`)

	nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)
	nonDigits       = regexp.MustCompile(`\D`)
)

// NormalizePAN uppercases and strips non-alphanumeric characters.
// Idempotent: NormalizePAN(NormalizePAN(x)) == NormalizePAN(x).
func NormalizePAN(value string) string {
	return nonAlphanumeric.ReplaceAllString(strings.ToUpper(value), "")
}

// NormalizeMobile strips everything but digits.
func NormalizeMobile(value string) string {
	return nonDigits.ReplaceAllString(value, "")
}

// NormalizeOTP strips everything but digits.
func NormalizeOTP(value string) string {
	return nonDigits.ReplaceAllString(value, "")
}

// PanMobileChangeset normalizes and validates the PAN + mobile step.
func PanMobileChangeset(data map[string]any, pan, mobile string) *Changeset {
	params := map[string]any{
		FieldPAN:    NormalizePAN(pan),
		FieldMobile: NormalizeMobile(mobile),
	}

	return Cast(data, params, []string{FieldPAN, FieldMobile}).
		ValidateRequired(FieldPAN, FieldMobile).
		ValidateLength(FieldPAN, PANLength).
		ValidateFormat(FieldPAN, panPattern, "invalid PAN format (e.g., ABCDE1234F)").
		ValidateLength(FieldMobile, MobileLength).
		ValidateFormat(FieldMobile, mobilePattern, "mobile number must contain only digits")
}

// OTPChangeset normalizes and validates the OTP entry.
func OTPChangeset(otp string) *Changeset {
	params := map[string]any{FieldOTP: NormalizeOTP(otp)}

	return Cast(map[string]any{}, params, []string{FieldOTP}).
		ValidateRequired(FieldOTP).
		ValidateFormat(FieldOTP, otpPattern, "OTP must contain only digits").
		ValidateLength(FieldOTP, OTPLength)
}

// ShouldAutoSubmitOTP reports whether an OTP entry should be submitted
// without an explicit click: full length, valid, and nothing in flight.
func ShouldAutoSubmitOTP(otp string, verifying bool) bool {
	if verifying {
		return false
	}
	normalized := NormalizeOTP(otp)
	if len(normalized) != OTPLength {
		return false
	}
	return OTPChangeset(normalized).Valid
}
