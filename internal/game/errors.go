package game

import (
	"errors"
)

// Error classes. Every error returned by Hub operations wraps exactly one of them.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("invalid request")
)

// Error is a client-facing failure: Text is shown to the user as a toast.
type Error struct {
	class error
	msg   string
	Text  string
}

func (e *Error) Error() string { return e.class.Error() + ": " + e.msg }

func (e *Error) Unwrap() error { return e.class }

func newError(class error, msg, text string) *Error {
	return &Error{class: class, msg: msg, Text: text}
}

var (
	ErrNotAuthenticated = newError(ErrUnauthorized, "login required", "Нужно войти.")
	ErrNotParticipant   = newError(ErrUnauthorized, "not a participant of this match", "Вы не участник этого матча.")

	ErrUserNotFound     = newError(ErrNotFound, "user not found", "Пользователь не найден.")
	ErrMatchNotFound    = newError(ErrNotFound, "match not found", "Матч не найден.")
	ErrTrainingNotFound = newError(ErrNotFound, "no training session", "Тренировка не найдена.")

	ErrInvalidMatchID     = newError(ErrValidation, "malformed match id", "Некорректный match_id.")
	ErrEmptyAnswer        = newError(ErrValidation, "empty answer", "Введите ответ.")
	ErrInvalidFilter      = newError(ErrValidation, "invalid filter value", "Некорректный фильтр.")
	ErrMatchNotRunning    = newError(ErrValidation, "match has not started", "Матч ещё не начался.")
	ErrTrainingNotRunning = newError(ErrValidation, "training is not running", "Тренировка не запущена.")
	ErrAlreadyInMatch     = newError(ErrValidation, "already playing a match", "Вы уже участвуете в матче.")
	ErrUnknownAction      = newError(ErrValidation, "unknown action", "Неизвестное действие.")
)

// ToastFor converts an operation error into the notice sent back to the client.
// Authorization and lookup failures are shown as danger, validation as warning.
func ToastFor(err error) (Event, bool) {
	if err == nil {
		return Event{}, false
	}
	var ge *Error
	if !errors.As(err, &ge) {
		return Toast(ToastDanger, "Что-то пошло не так."), true
	}
	if errors.Is(ge, ErrValidation) {
		return Toast(ToastWarning, ge.Text), true
	}
	return Toast(ToastDanger, ge.Text), true
}
