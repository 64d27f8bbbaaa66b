package domain

import (
	"strconv"

	"github.com/xela07ax/roby-guard/internal/merkle"
)

// Credential: отзываемый, ограниченный во времени допуск одного держателя к одному роботу.
type Credential struct {
	Initialized     bool            `json:"initialized"`
	Owner           Pubkey          `json:"owner"`
	Robot           Pubkey          `json:"robot"`
	PermissionLevel PermissionLevel `json:"permission_level"`
	ValidFrom       int64           `json:"valid_from"`
	ValidUntil      int64           `json:"valid_until"`
	Revoked         bool            `json:"revoked"`
	CredentialHash  merkle.Hash     `json:"credential_hash"`
	Issuer          Pubkey          `json:"issuer"`
}

// IsValid: не отозван и now внутри [ValidFrom, ValidUntil] включительно.
// Членство в дереве и уровень прав проверяются отдельно.
func (c *Credential) IsValid(now int64) bool {
	return !c.Revoked && c.ValidFrom <= now && now <= c.ValidUntil
}

func (c *Credential) Pack(dst []byte) error {
	w := &writer{buf: dst}
	w.boolean(c.Initialized)
	w.fixed(c.Owner[:])
	w.fixed(c.Robot[:])
	w.u8(uint8(c.PermissionLevel))
	w.u64(uint64(c.ValidFrom))
	w.u64(uint64(c.ValidUntil))
	w.boolean(c.Revoked)
	w.fixed(c.CredentialHash[:])
	w.fixed(c.Issuer[:])
	return w.finish()
}

func UnpackCredential(src []byte) (*Credential, error) {
	rd := &reader{buf: src}
	c := &Credential{}

	c.Initialized = rd.boolean()
	rd.fixed(c.Owner[:])
	rd.fixed(c.Robot[:])
	c.PermissionLevel = PermissionLevel(rd.u8())
	c.ValidFrom = int64(rd.u64())
	c.ValidUntil = int64(rd.u64())
	c.Revoked = rd.boolean()
	rd.fixed(c.CredentialHash[:])
	rd.fixed(c.Issuer[:])

	if rd.err != nil {
		return nil, rd.err
	}
	if !c.PermissionLevel.Valid() {
		return nil, ErrInvalidAccountData
	}
	return c, nil
}

// CredentialCommitment — лист дерева для credential-а:
// keccak(owner || robot || level || decimal(validFrom) || decimal(validUntil)).
func CredentialCommitment(owner, robot Pubkey, level PermissionLevel, validFrom, validUntil int64) merkle.Hash {
	data := make([]byte, 0, 2*PubkeyLen+1+40)
	data = append(data, owner[:]...)
	data = append(data, robot[:]...)
	data = append(data, byte(level))
	data = strconv.AppendInt(data, validFrom, 10)
	data = strconv.AppendInt(data, validUntil, 10)
	return merkle.HashLeaf(data)
}
