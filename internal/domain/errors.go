package domain

import "errors"

// ProgramError: ошибка, которой ядро прерывает вызов. Код стабилен и
// уходит наружу (журнал, API, gRPC), сообщение - только для людей.
type ProgramError struct {
	Code    uint32
	Message string
}

func (e *ProgramError) Error() string {
	return e.Message
}

// Ошибки авторизационного ядра. Коды совпадают с порядком перечисления
// в исходной программе, менять их нельзя.
var (
	ErrInvalidInstruction      = &ProgramError{Code: 0, Message: "invalid instruction"}
	ErrNotAuthorized           = &ProgramError{Code: 1, Message: "not authorized"}
	ErrAlreadyInitialized      = &ProgramError{Code: 2, Message: "already initialized"}
	ErrUninitializedAccount    = &ProgramError{Code: 3, Message: "uninitialized account"}
	ErrInvalidMerkleProof      = &ProgramError{Code: 4, Message: "invalid merkle proof"}
	ErrRobotAlreadyActive      = &ProgramError{Code: 5, Message: "robot already active"}
	ErrRobotNotActive          = &ProgramError{Code: 6, Message: "robot not active"}
	ErrInvalidRobotState       = &ProgramError{Code: 7, Message: "invalid robot state"}
	ErrPermissionDenied        = &ProgramError{Code: 8, Message: "permission denied"}
	ErrInvalidCredential       = &ProgramError{Code: 9, Message: "invalid credential"}
	ErrCommandExecutionFailed  = &ProgramError{Code: 10, Message: "command execution failed"}
	ErrInvalidAccountData      = &ProgramError{Code: 11, Message: "invalid account data"}
	ErrArithmeticOverflow      = &ProgramError{Code: 12, Message: "arithmetic overflow"}
	ErrInvalidControlAuthority = &ProgramError{Code: 13, Message: "invalid control authority"}
	ErrRobotOffline            = &ProgramError{Code: 14, Message: "robot offline"}
)

// Ошибки границы с хостом (проверки аккаунтов до выполнения действия).
var (
	ErrIncorrectProgramID   = &ProgramError{Code: 256, Message: "incorrect program id"}
	ErrNotEnoughAccountKeys = &ProgramError{Code: 257, Message: "not enough account keys"}
	ErrAccountNotRentExempt = &ProgramError{Code: 258, Message: "account not rent exempt"}
)

// CodeOf достает код ProgramError из цепочки обертки.
func CodeOf(err error) (uint32, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}
