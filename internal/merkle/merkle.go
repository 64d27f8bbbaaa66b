package merkle

/*
Файл merkle.go содержит хэш-примитивы и верификатор доказательств членства.

Листья дерева - это хэши (commitment) действующих credential-ов робота.
Корень хранится в записи Robot, доказательство приносит держатель credential-а.

Правило сортировки соседей: на каждом шаге меньшее (побайтово, беззнаково)
значение хэшируется первым. Верификатору не нужно знать, левый узел или правый,
но off-ledger генератор доказательств обязан следовать тому же правилу.
*/

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Size: размер хэша в байтах.
const Size = 32

// Hash — 32-байтовый Keccak-256 дайджест.
type Hash [Size]byte

// Zero: корень пустого дерева.
var Zero Hash

// HashLeaf вычисляет хэш произвольных данных (commitment credential-а до вставки в дерево).
func HashLeaf(data []byte) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashPair хэширует конкатенацию a||b строго в переданном порядке.
func HashPair(a, b Hash) Hash {
	var combined [2 * Size]byte
	copy(combined[:Size], a[:])
	copy(combined[Size:], b[:])
	return HashLeaf(combined[:])
}

// hashSorted считает узел дерева: меньший аргумент всегда идет первым.
func hashSorted(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return HashPair(a, b)
	}
	return HashPair(b, a)
}

// ComputeRoot строит бинарное дерево снизу вверх.
// Пары собираются слева направо; непарный последний узел уровня поднимается
// на следующий уровень без изменений (НЕ дублируется).
func ComputeRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Zero
	}

	level := make([]Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

func nextLevel(level []Hash) []Hash {
	next := make([]Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, hashSorted(level[i], level[i+1]))
		} else {
			next = append(next, level[i])
		}
	}
	return next
}

// Verify пересчитывает корень из листа и пути и сравнивает с доверенным корнем.
// Ошибок не бывает: несовпадение - это просто false.
func Verify(leaf Hash, proof []Hash, root Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashSorted(computed, sibling)
	}
	return computed == root
}

// String — hex-представление для логов и API.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero сообщает, что хэш состоит из нулей.
func (h Hash) IsZero() bool {
	return h == Zero
}

// MarshalText позволяет сериализовать Hash как hex-строку в JSON/YAML.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText разбирает hex-строку.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash разбирает 64-символьную hex-строку.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("merkle: parsing hash: %w", err)
	}
	if len(decoded) != Size {
		return h, fmt.Errorf("merkle: hash is %d bytes, want %d", len(decoded), Size)
	}
	copy(h[:], decoded)
	return h, nil
}
