package messaging

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the classifier's output alphabet (spec §4.4).
type Kind string

const (
	KindChatNotFound    Kind = "CHAT_NOT_FOUND"
	KindBotKicked       Kind = "BOT_KICKED"
	KindBotBlocked      Kind = "BOT_BLOCKED"
	KindForbidden       Kind = "FORBIDDEN"
	KindUserDeactivated Kind = "USER_DEACTIVATED"
	KindNetworkError    Kind = "NETWORK_ERROR"
	KindServerError     Kind = "SERVER_ERROR"
	KindUnknown         Kind = "UNKNOWN"
)

// IsCritical reports whether kind makes the group permanently unreachable
// and should trigger the Critical Handler (spec §4.4, §7).
func (k Kind) IsCritical() bool {
	switch k {
	case KindChatNotFound, KindBotKicked, KindBotBlocked, KindForbidden, KindUserDeactivated:
		return true
	default:
		return false
	}
}

// IsTransient reports whether kind is tolerated via in-tick retries
// without any state change (spec §4.3 step b, §7).
func (k Kind) IsTransient() bool {
	return k == KindNetworkError || k == KindServerError
}

// classNamer is implemented by the typed SDK errors below so Classify can
// match on "exception class name" the way the platform SDK's own exception
// hierarchy would (spec §4.4, §8 "classifier is a pure function of
// (exception class name, message)").
type classNamer interface {
	ClassName() string
}

// sdkError is the base of every typed error this package defines.
type sdkError struct {
	class   string
	message string
}

func (e *sdkError) Error() string    { return e.message }
func (e *sdkError) ClassName() string { return e.class }

// NetworkError mirrors aiogram's TelegramNetworkError.
type NetworkError struct{ *sdkError }

func NewNetworkError(message string) *NetworkError {
	return &NetworkError{&sdkError{class: "TelegramNetworkError", message: message}}
}

// ServerError mirrors aiogram's TelegramServerError.
type ServerError struct{ *sdkError }

func NewServerError(message string) *ServerError {
	return &ServerError{&sdkError{class: "TelegramServerError", message: message}}
}

// ChatNotFoundError mirrors aiogram's ChatNotFound.
type ChatNotFoundError struct{ *sdkError }

func NewChatNotFoundError(message string) *ChatNotFoundError {
	return &ChatNotFoundError{&sdkError{class: "ChatNotFound", message: message}}
}

// ForbiddenError mirrors aiogram's TelegramForbiddenError — the class
// carrying "bot was kicked", "bot was blocked", "user is deactivated", and
// plain "forbidden" messages, matching the original's matching order.
type ForbiddenError struct{ *sdkError }

func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{&sdkError{class: "TelegramForbiddenError", message: message}}
}

// BadRequestError mirrors aiogram's TelegramBadRequest, used for
// "message to delete not found" and similar non-critical failures.
type BadRequestError struct{ *sdkError }

func NewBadRequestError(message string) *BadRequestError {
	return &BadRequestError{&sdkError{class: "TelegramBadRequest", message: message}}
}

// RetryAfterError mirrors aiogram's TelegramRetryAfter — flood control.
type RetryAfterError struct {
	*sdkError
	RetryAfterSeconds int
}

func NewRetryAfterError(seconds int) *RetryAfterError {
	return &RetryAfterError{
		sdkError:          &sdkError{class: "TelegramRetryAfter", message: fmt.Sprintf("flood control: retry after %d seconds", seconds)},
		RetryAfterSeconds: seconds,
	}
}

// AsRetryAfter extracts a RetryAfterError from err, if any.
func AsRetryAfter(err error) (*RetryAfterError, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra, true
	}
	return nil, false
}

// IsMessageNotFound reports whether err is the "message to delete not
// found" bad-request case, which the delete protocol treats as success
// (spec §4.3 step a).
func IsMessageNotFound(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message to delete not found")
}

// ClassName returns the exception-class-name label an error reports for
// storage in PostAttempt.error_code (spec §3, §4.3(d)), mirroring
// aiogram's type(e).__name__. Errors outside this package's hierarchy
// report "" and fall through to Classify's substring rules.
func ClassName(err error) string {
	var cn classNamer
	if errors.As(err, &cn) {
		return cn.ClassName()
	}
	return ""
}

var serverHTTPCodes = []string{"500", "501", "502", "503", "504", "505"}

// Classify maps an SDK error to a Kind following spec §4.4's exact
// matching rules, ported from the original's classify_telegram_error.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	class := ClassName(err)
	msg := strings.ToLower(err.Error())

	if class == "TelegramNetworkError" || containsAny(msg, "request timeout", "timeout error", "network error", "connection") {
		return KindNetworkError
	}
	if class == "TelegramServerError" || containsAny(msg, "bad gateway", "server error") || containsAny(msg, serverHTTPCodes...) {
		return KindServerError
	}
	if class == "ChatNotFound" || strings.Contains(msg, "chat not found") {
		return KindChatNotFound
	}
	if strings.Contains(msg, "bot was kicked") {
		return KindBotKicked
	}
	if containsAny(msg, "bot was blocked", "bot is blocked") {
		return KindBotBlocked
	}
	if containsAny(msg, "user is deactivated", "user_deactivated") {
		return KindUserDeactivated
	}
	if class == "TelegramForbiddenError" && strings.Contains(msg, "forbidden") {
		return KindForbidden
	}
	return KindUnknown
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
