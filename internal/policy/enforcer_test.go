package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/roby-guard/internal/domain"
)

func TestAdministration(t *testing.T) {
	owner := domain.Pubkey{1}
	authority := domain.Pubkey{2}
	stranger := domain.Pubkey{3}
	robot := &domain.Robot{Owner: owner, Authority: authority}

	assert.True(t, CanAdminister(robot, owner))
	assert.True(t, CanAdminister(robot, authority))
	assert.False(t, CanAdminister(robot, stranger))

	assert.True(t, CanIssue(robot, authority))
	assert.False(t, CanIssue(robot, stranger))

	assert.True(t, CanOwn(robot, owner))
	assert.False(t, CanOwn(robot, authority))

	assert.True(t, IsAuthority(robot, authority))
	assert.False(t, IsAuthority(robot, owner))
}

func TestPermissionSufficient(t *testing.T) {
	cases := map[domain.PermissionLevel]bool{
		domain.PermissionNone:          false,
		domain.PermissionObserver:      false,
		domain.PermissionOperator:      true,
		domain.PermissionAdministrator: true,
		domain.PermissionOwner:         true,
	}
	for level, want := range cases {
		assert.Equal(t, want, PermissionSufficient(level), level.String())
	}
}

func TestCommandAllowed(t *testing.T) {
	assert.True(t, CommandAllowed(domain.PermissionOperator, domain.CommandEmergencyStop, false))
	assert.False(t, CommandAllowed(domain.PermissionOperator, domain.CommandEmergencyStop, true))
	assert.False(t, CommandAllowed(domain.PermissionOperator, domain.CommandUpdateConfig, true))
	assert.True(t, CommandAllowed(domain.PermissionAdministrator, domain.CommandUpdateConfig, true))
	assert.True(t, CommandAllowed(domain.PermissionOperator, domain.CommandMove, true))
	assert.False(t, CommandAllowed(domain.PermissionObserver, domain.CommandMove, false))
}
