package common

import "errors"

// Kind tags an error with the category callers act on.
type Kind int

const (
	KindUnknown Kind = iota
	KindDerivation
	KindAccountExists
	KindAuthentication
	KindDecryption
	KindSessionExpired
	KindSessionInvalid
	KindSessionRevoked
	KindBusy
	KindRateLimited
	KindUnavailable
	KindNotFound
	KindValidation
	KindInvalidState
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindDerivation:     "derivation",
	KindAccountExists:  "account_exists",
	KindAuthentication: "authentication",
	KindDecryption:     "decryption",
	KindSessionExpired: "session_expired",
	KindSessionInvalid: "session_invalid",
	KindSessionRevoked: "session_revoked",
	KindBusy:           "busy",
	KindRateLimited:    "rate_limited",
	KindUnavailable:    "unavailable",
	KindNotFound:       "not_found",
	KindValidation:     "validation",
	KindInvalidState:   "invalid_state",
	KindInternal:       "internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// ParseKind is the inverse of Kind.String. Unknown names give KindUnknown.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// order matters: the first match wins
var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrDerivation, KindDerivation},
	{ErrAccountExists, KindAccountExists},
	{ErrAuthentication, KindAuthentication},
	{ErrDecryption, KindDecryption},
	{ErrSessionExpired, KindSessionExpired},
	{ErrSessionInvalid, KindSessionInvalid},
	{ErrSessionRevoked, KindSessionRevoked},
	{ErrBusy, KindBusy},
	{ErrRateLimited, KindRateLimited},
	{ErrUnavailable, KindUnavailable},
	{ErrorNotFound, KindNotFound},
	{ErrValidation, KindValidation},
	{ErrInvalidState, KindInvalidState},
	{ErrorInternal, KindInternal},
}

// KindOf returns the Kind of err. nil yields KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, e := range kindTable {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindUnknown
}

// SentinelFor returns the sentinel error for k, or ErrorInternal.
func SentinelFor(k Kind) error {
	for _, e := range kindTable {
		if e.kind == k {
			return e.err
		}
	}
	return ErrorInternal
}

// IsSessionLost reports whether err means the session credential can no
// longer be used and a full login is required.
func IsSessionLost(err error) bool {
	switch KindOf(err) {
	case KindSessionExpired, KindSessionInvalid, KindSessionRevoked:
		return true
	}
	return false
}

// UserMessage renders err for end users. It never says which step or field
// failed.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindAuthentication:
		return "invalid credentials"
	case KindDecryption:
		return "could not restore account"
	case KindAccountExists:
		return "an account with this id already exists"
	case KindSessionExpired, KindSessionInvalid, KindSessionRevoked:
		return "session expired, please log in again"
	case KindBusy, KindRateLimited:
		return "service busy, please retry later"
	case KindUnavailable:
		return "service unavailable"
	case KindValidation:
		return "invalid input"
	case KindUnknown:
		if err == nil {
			return ""
		}
	}
	return "something went wrong"
}
