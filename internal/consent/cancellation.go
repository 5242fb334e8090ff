package consent

// Cancellation event types reported by the aggregator when a consent
// does not complete.
var CancellationEvents = []string{
	"UserCancelled",
	"UserRejected",
	"NoFIPAccountsDiscovered",
	"FIPDenied",
}

// CancellationMessages maps cancellation reason codes to the copy shown
// on the failure screen.
var CancellationMessages = map[string]string{
	"cancel_not_understand":     "User cancelled consent - did not understand",
	"cancel_will_share_later":   "User cancelled consent - I will share later",
	"cancel_not_want_to_share":  "User cancelled consent - do not want to share",
	"reject_not_understand":     "User rejected consent - did not understand why my data is being requested",
	"reject_not_want_to_share":  "User rejected consent - I do not want to share my data with FIU",
	"reject_accounts_not_found": "User rejected consent - no accounts found to share",
	"reject_other":              "User rejected consent - other reason",
	"no_fip_accounts_found":     "No FIP accounts discovered for the user",
	"FIP_DENIED_CONSENT":        "FIP denied consent request",
}

// MessageForCode resolves a cancellation code to its display message,
// falling back to the generic consent error copy.
func MessageForCode(code string) string {
	if msg, ok := CancellationMessages[code]; ok {
		return msg
	}
	return DefaultErrorMessage
}
