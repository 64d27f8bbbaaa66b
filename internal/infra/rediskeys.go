package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "roby"
)

// Ключи для Sets (состояние)
const (
	RedisKeyStoppedRobots = RedisNamespace + ":robots:estop_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanEmergencyStop: сигналы "robot:on" / "robot:off" между инстансами шлюза.
	RedisChanEmergencyStop = RedisNamespace + ":robots:estop-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок прогрева
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}

// GetReplayKey: ключ защиты от повторной отправки транзакции.
func GetReplayKey(txID string) string {
	return fmt.Sprintf("%s:tx:%s", RedisNamespace, txID)
}
