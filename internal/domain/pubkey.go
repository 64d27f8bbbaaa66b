package domain

import (
	"encoding/hex"
	"fmt"
)

// PubkeyLen — длина идентификатора (ed25519 публичный ключ / адрес записи).
const PubkeyLen = 32

// Pubkey - 32-байтовая идентичность: владелец, authority, держатель credential-а
// или адрес записи в хранилище.
type Pubkey [PubkeyLen]byte

func (p Pubkey) String() string {
	return hex.EncodeToString(p[:])
}

func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePubkey разбирает hex-строку из 64 символов.
func ParsePubkey(s string) (Pubkey, error) {
	var p Pubkey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("domain: invalid pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeyLen {
		return p, fmt.Errorf("domain: pubkey is %d bytes, want %d", len(raw), PubkeyLen)
	}
	copy(p[:], raw)
	return p, nil
}

// PubkeyFromBytes копирует срез в Pubkey, проверяя длину.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != PubkeyLen {
		return p, fmt.Errorf("domain: pubkey is %d bytes, want %d", len(b), PubkeyLen)
	}
	copy(p[:], b)
	return p, nil
}
