package errs

// Relay error codes occupy 14xx, HTTP API codes 10xx-13xx, client-side
// session codes 15xx. Codes are part of the wire contract: the websocket
// error frame and JSON API envelopes both carry them.
var (
	ErrBadRequest   = NewCodeError(1000, "bad request")
	ErrUnauthorized = NewCodeError(1001, "unauthorized")
	ErrForbidden    = NewCodeError(1002, "forbidden")
	ErrNotFound     = NewCodeError(1003, "not found")
	ErrConflict     = NewCodeError(1004, "conflict")
	ErrInternal     = NewCodeError(1005, "internal error")

	// Relay taxonomy.
	ErrNotAMember   = NewCodeError(1400, "not a member of this room")
	ErrAuthRequired = NewCodeError(1401, "authentication required")

	// Client session taxonomy.
	ErrTransportLost  = NewCodeError(1500, "transport lost")
	ErrNotConnected   = NewCodeError(1501, "not connected")
	ErrRetryExhausted = NewCodeError(1502, "reconnect retries exhausted")
)

// HTTPStatus maps err onto an HTTP status plus the CodeError to serialize.
// Unknown errors collapse to 500 with ErrInternal so internals never leak.
func HTTPStatus(err error) (int, *CodeError) {
	ce := CodeOf(err)
	if ce == nil {
		return 500, ErrInternal
	}
	switch ce.Code {
	case ErrBadRequest.Code:
		return 400, ce
	case ErrUnauthorized.Code, ErrAuthRequired.Code:
		return 401, ce
	case ErrForbidden.Code, ErrNotAMember.Code:
		return 403, ce
	case ErrNotFound.Code:
		return 404, ce
	case ErrConflict.Code:
		return 409, ce
	default:
		return 500, ce
	}
}
