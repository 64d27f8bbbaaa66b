package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/roby-guard/internal/merkle"
)

func key(b byte) Pubkey {
	var p Pubkey
	for i := range p {
		p[i] = b
	}
	return p
}

func TestLayoutSizes(t *testing.T) {
	assert.Equal(t, 732, RobotLen)
	assert.Equal(t, 147, CredentialLen)
	assert.Equal(t, 339, CommandLogLen)
}

func TestRobot_PackUnpack(t *testing.T) {
	r := NewRobot(key(1), key(2), key(3), merkle.HashLeaf([]byte("root")), "ipfs://robot")
	for i := 0; i < MaxOperators; i++ {
		r.ActiveOperators = append(r.ActiveOperators, key(byte(10+i)))
	}
	r.MetadataURI = string(make([]byte, MaxMetadataURILen))
	r.TotalCommandsExecuted = 42
	r.LastCommandTimestamp = -5

	slot := make([]byte, RobotLen)
	require.NoError(t, r.Pack(slot))

	got, err := UnpackRobot(slot)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestRobot_ZeroSlotIsUninitialized(t *testing.T) {
	got, err := UnpackRobot(make([]byte, RobotLen))
	require.NoError(t, err)
	assert.False(t, got.Initialized)
	assert.Empty(t, got.ActiveOperators)
}

func TestRobot_PackClearsTail(t *testing.T) {
	slot := make([]byte, RobotLen)
	for i := range slot {
		slot[i] = 0xff
	}
	r := NewRobot(key(1), key(1), key(9), merkle.Zero, "")
	require.NoError(t, r.Pack(slot))

	got, err := UnpackRobot(slot)
	require.NoError(t, err)
	assert.Equal(t, r.Owner, got.Owner)
	assert.Equal(t, byte(0), slot[RobotLen-1])
}

func TestRobot_SlotTooSmall(t *testing.T) {
	r := NewRobot(key(1), key(1), key(9), merkle.Zero, "uri")
	err := r.Pack(make([]byte, 100))
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	_, err = UnpackRobot(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestRobot_RejectsCorruptData(t *testing.T) {
	r := NewRobot(key(1), key(1), key(9), merkle.Zero, "")
	slot := make([]byte, RobotLen)
	require.NoError(t, r.Pack(slot))

	bad := append([]byte(nil), slot...)
	bad[0] = 7 // bool вне 0/1
	_, err := UnpackRobot(bad)
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	bad = append([]byte(nil), slot...)
	bad[1+32+32] = 9 // статус вне диапазона
	_, err = UnpackRobot(bad)
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	bad = append([]byte(nil), slot...)
	bad[1+32+32+1+32+32+8+8] = MaxOperators + 1 // операторов больше предела
	_, err = UnpackRobot(bad)
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	r.ActiveOperators = make([]Pubkey, MaxOperators+1)
	assert.ErrorIs(t, r.Pack(slot), ErrInvalidAccountData)
}

func TestCredential_PackUnpack(t *testing.T) {
	c := &Credential{
		Initialized:     true,
		Owner:           key(4),
		Robot:           key(5),
		PermissionLevel: PermissionAdministrator,
		ValidFrom:       100,
		ValidUntil:      200,
		CredentialHash:  merkle.HashLeaf([]byte("cred")),
		Issuer:          key(6),
	}
	slot := make([]byte, CredentialLen)
	require.NoError(t, c.Pack(slot))

	got, err := UnpackCredential(slot)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	assert.ErrorIs(t, c.Pack(make([]byte, CredentialLen-1)), ErrInvalidAccountData)

	slot[1+32+32] = 5
	_, err = UnpackCredential(slot)
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestCommandLog_PackUnpack(t *testing.T) {
	l := &CommandLog{
		Initialized: true,
		Robot:       key(1),
		Executor:    key(2),
		CommandType: CommandCalibrate,
		Timestamp:   1700000000,
		Parameters:  []byte{1, 2, 3},
		Success:     true,
	}
	slot := make([]byte, CommandLogLen)
	require.NoError(t, l.Pack(slot))

	got, err := UnpackCommandLog(slot)
	require.NoError(t, err)
	assert.Equal(t, l, got)

	l.Parameters = make([]byte, MaxParametersLen+1)
	assert.ErrorIs(t, l.Pack(slot), ErrInvalidAccountData)
}

func TestCredential_IsValidBoundaries(t *testing.T) {
	c := &Credential{ValidFrom: 100, ValidUntil: 200}
	assert.False(t, c.IsValid(99))
	assert.True(t, c.IsValid(100))
	assert.True(t, c.IsValid(150))
	assert.True(t, c.IsValid(200))
	assert.False(t, c.IsValid(201))

	c.Revoked = true
	assert.False(t, c.IsValid(150))
}

func TestCredential_IsValidProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("valid iff not revoked and inside the inclusive window", prop.ForAll(
		func(from, width, now int64, revoked bool) bool {
			c := &Credential{ValidFrom: from, ValidUntil: from + width, Revoked: revoked}
			want := !revoked && from <= now && now <= from+width
			return c.IsValid(now) == want
		},
		gen.Int64Range(-1<<40, 1<<40),
		gen.Int64Range(0, 1<<20),
		gen.Int64Range(-1<<41, 1<<41),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestCredentialCommitment(t *testing.T) {
	a := CredentialCommitment(key(1), key(2), PermissionOperator, 10, 20)
	assert.Equal(t, a, CredentialCommitment(key(1), key(2), PermissionOperator, 10, 20))
	assert.NotEqual(t, a, CredentialCommitment(key(1), key(2), PermissionAdministrator, 10, 20))
	assert.NotEqual(t, a, CredentialCommitment(key(1), key(2), PermissionOperator, 10, 21))

	owner, robot := key(1), key(2)
	var data []byte
	data = append(data, owner[:]...)
	data = append(data, robot[:]...)
	data = append(data, byte(PermissionOperator))
	data = append(data, "1020"...)
	assert.Equal(t, merkle.HashLeaf(data), a)
}

func TestEnums(t *testing.T) {
	s, err := RobotStatusFromCode(5)
	require.NoError(t, err)
	assert.Equal(t, StatusMaintenance, s)
	_, err = RobotStatusFromCode(6)
	assert.ErrorIs(t, err, ErrInvalidRobotState)

	lvl, err := ParsePermissionLevel("Operator")
	require.NoError(t, err)
	assert.Equal(t, PermissionOperator, lvl)
	assert.True(t, PermissionObserver < PermissionOperator)

	ct, err := ParseCommandType("update_config")
	require.NoError(t, err)
	assert.True(t, ct.Privileged())
	assert.False(t, CommandMove.Privileged())
	assert.Equal(t, "command(200)", CommandType(200).String())
}

func TestPubkeyText(t *testing.T) {
	p := key(0xab)
	parsed, err := ParsePubkey(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, parsed)

	_, err = ParsePubkey("00")
	assert.Error(t, err)
	_, err = PubkeyFromBytes(make([]byte, 31))
	assert.Error(t, err)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("processor: %w", ErrInvalidMerkleProof)
	code, ok := CodeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, uint32(4), code)
	assert.True(t, errors.Is(wrapped, ErrInvalidMerkleProof))

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}
