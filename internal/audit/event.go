package audit

import "time"

const (
	StatusSuccess  = "SUCCESS"  // инструкция исполнена и зафиксирована
	StatusFailed   = "FAILED"   // ядро вернуло ошибку программы
	StatusRejected = "REJECTED" // отклонено хостом до вызова ядра
	StatusError    = "SYSTEM_ERROR"
)

// Event — одна попытка исполнения транзакции, успешная или нет.
type Event struct {
	ID          string  `json:"id"`          // UUID события
	TraceID     string  `json:"trace_id"`    // Сквозной ID запроса
	Instruction string  `json:"instruction"` // Имя варианта инструкции
	Robot       string  `json:"robot"`       // Ключ записи робота (hex), если известен
	Signer      string  `json:"signer"`      // Первый подписант
	Status      string  `json:"status"`
	ErrorCode   *uint32 `json:"error_code,omitempty"`
	Error       string  `json:"error,omitempty"`

	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
