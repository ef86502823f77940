package protoerrors

import "github.com/goatkit/goatlink/internal/protocol"

// wireCodes maps each error kind to the response code clients see.
var wireCodes = map[Kind]int{
	KindValidation:      protocol.CodeBadRequest,
	KindBadCredentials:  protocol.CodeBadCredentials,
	KindAuthorization:   protocol.CodeForbidden,
	KindNotFound:        protocol.CodeNotFound,
	KindStateTransition: protocol.CodeBadRequest,
	KindConflict:        protocol.CodeConflict,
	KindInternal:        protocol.CodeInternal,
}

// defaultMessages holds the client-facing text used when an error's own
// message should not cross the wire.
var defaultMessages = map[Kind]string{
	KindValidation:      "invalid request",
	KindBadCredentials:  "invalid username or password",
	KindAuthorization:   "permission denied",
	KindNotFound:        "resource not found",
	KindStateTransition: "illegal status transition",
	KindConflict:        "resource conflict",
	KindInternal:        "operation failed",
}

// WireCode returns the response code for err. Foreign errors map to the
// internal-error code.
func WireCode(err error) int {
	if code, ok := wireCodes[KindOf(err)]; ok {
		return code
	}
	return protocol.CodeInternal
}

// WireMessage returns the client-facing message for err. Business
// errors expose their own message except internal ones, which collapse
// to the default so storage details never leak.
func WireMessage(err error) string {
	e, ok := AsError(err)
	if !ok || e.Kind == KindInternal {
		return defaultMessages[KindInternal]
	}
	if e.Message != "" {
		return e.Message
	}
	return defaultMessages[e.Kind]
}
