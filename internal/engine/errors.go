package engine

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/ledger"
)

// ErrorKind — класс отказа для метрик и транспортов.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindProgram     ErrorKind = "program"     // ядро отклонило инструкцию
	KindMalformed   ErrorKind = "malformed"   // конверт или инструкция не декодируются
	KindSignature   ErrorKind = "signature"   // подписи не сходятся с объявленными signer
	KindReadOnly    ErrorKind = "read_only"   // изменение аккаунта без флага writable
	KindExpired     ErrorKind = "expired"     // истек срок или повтор
	KindStopped     ErrorKind = "stopped"     // быстрый отказ по аварийной остановке
	KindNotFound    ErrorKind = "not_found"   // запись отсутствует
	KindConflict    ErrorKind = "conflict"    // запись уже выделена
	KindUnavailable ErrorKind = "unavailable" // предохранитель открыт
	KindTimeout     ErrorKind = "timeout"
	KindInternal    ErrorKind = "internal"
)

// Classify относит ошибку Submit/Allocate к одному классу.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, errRobotStopped):
		return KindStopped
	case errors.Is(err, domain.ErrInvalidInstruction):
		return KindMalformed
	case isProgramError(err):
		return KindProgram
	case errors.Is(err, ErrMalformedTransaction):
		return KindMalformed
	case errors.Is(err, ErrSignatureMissing), errors.Is(err, ErrInvalidSignature):
		return KindSignature
	case errors.Is(err, ErrAccountNotWritable):
		return KindReadOnly
	case errors.Is(err, ErrTransactionExpired), errors.Is(err, ErrDuplicateTransaction):
		return KindExpired
	case errors.Is(err, ledger.ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, ledger.ErrAccountExists):
		return KindConflict
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	default:
		return KindInternal
	}
}

func isProgramError(err error) bool {
	_, ok := domain.CodeOf(err)
	return ok
}

// isOutcome: ошибка, которая является ответом, а не сбоем хранилища.
// Такие ошибки не повторяются и не размыкают предохранитель.
func isOutcome(err error) bool {
	switch Classify(err) {
	case KindNone, KindProgram, KindMalformed, KindReadOnly, KindNotFound, KindConflict, KindStopped:
		return true
	}
	return false
}
