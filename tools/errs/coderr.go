package errs

import (
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CodeError carries a stable numeric code alongside a human message so that
// callers (HTTP handlers, the websocket relay) can map errors onto wire
// responses without string matching.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// WithDetail returns a copy of the error with extra detail appended. The
// receiver is never mutated; predefined errors stay pristine.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Is matches by code so errors.Is works across WithDetail copies and wraps.
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !stderrors.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

// Wrap attaches a stack trace to err.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// WrapMsg attaches a stack trace and a message to err.
func WrapMsg(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// New builds a plain stack-carrying error.
func New(msg string) error {
	return errors.New(msg)
}

// CodeOf extracts the CodeError from err, or nil if there is none.
func CodeOf(err error) *CodeError {
	var ce *CodeError
	if stderrors.As(err, &ce) {
		return ce
	}
	return nil
}
