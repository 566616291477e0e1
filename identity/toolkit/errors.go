package toolkit

import (
	"strings"

	"github.com/jrsteele09/go-auth-client/identity"
)

// errorCodes maps the REST error message prefix to the provider code set.
var errorCodes = map[string]identity.Code{
	"EMAIL_NOT_FOUND":                identity.CodeUserNotFound,
	"USER_NOT_FOUND":                 identity.CodeUserNotFound,
	"INVALID_PASSWORD":               identity.CodeInvalidCredential,
	"INVALID_LOGIN_CREDENTIALS":      identity.CodeInvalidCredential,
	"INVALID_EMAIL":                  identity.CodeInvalidEmail,
	"MISSING_EMAIL":                  identity.CodeInvalidEmail,
	"EMAIL_EXISTS":                   identity.CodeEmailInUse,
	"WEAK_PASSWORD":                  identity.CodeWeakPassword,
	"MISSING_PASSWORD":               identity.CodeWeakPassword,
	"USER_DISABLED":                  identity.CodeUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER":    identity.CodeTooManyRequests,
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": identity.CodeRequiresRecentLogin,
	"TOKEN_EXPIRED":                  identity.CodeRequiresRecentLogin,
	"INVALID_ID_TOKEN":               identity.CodeRequiresRecentLogin,
	"INVALID_REFRESH_TOKEN":          identity.CodeRequiresRecentLogin,
	"INVALID_IDP_RESPONSE":           identity.CodeInvalidIdpResponse,
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// toIdentityError converts a REST error message such as
// "WEAK_PASSWORD : Password should be at least 6 characters".
func toIdentityError(message string) *identity.Error {
	key := strings.TrimSpace(message)
	if i := strings.Index(key, " "); i > 0 {
		key = key[:i]
	}
	code, ok := errorCodes[key]
	if !ok {
		code = identity.CodeUnknown
	}
	return identity.NewError(code, message)
}
