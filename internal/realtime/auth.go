package realtime

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrChannelForbidden is returned when a client tries to authorize a
// channel it does not own.
var ErrChannelForbidden = errors.New("unauthorized channel access")

// Authorizer signs private-channel subscription requests. Clients may
// only authorize their own private-user channel.
type Authorizer struct {
	appKey string
	secret []byte
}

// NewAuthorizer creates an authorizer with the app key/secret pair.
func NewAuthorizer(appKey, secret string) *Authorizer {
	return &Authorizer{appKey: appKey, secret: []byte(secret)}
}

// Authorize validates channel ownership and returns the signed
// authorization token for a socket's subscription request.
func (a *Authorizer) Authorize(userID, channel, socketID string) (string, error) {
	if channel != UserChannel(userID) {
		return "", ErrChannelForbidden
	}
	if !strings.HasPrefix(channel, ChannelPrefix) {
		return "", ErrChannelForbidden
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(socketID + ":" + channel))
	signature := hex.EncodeToString(mac.Sum(nil))

	return a.appKey + ":" + signature, nil
}

// Verify checks a previously issued authorization token.
func (a *Authorizer) Verify(token, channel, socketID string) bool {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(socketID + ":" + channel))
	expected := a.appKey + ":" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(token), []byte(expected))
}
