package processor

import (
	"slices"

	"go.uber.org/zap"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/instruction"
	"github.com/xela07ax/roby-guard/internal/policy"
)

// initializeRobot. Аккаунты: robot, owner (signer), authority.
func (p *Processor) initializeRobot(c *call, ix instruction.InitializeRobot, r *Receipt) error {
	accs, err := c.accounts(3)
	if err != nil {
		return err
	}
	robotAcc, owner, authority := accs[0], accs[1], accs[2]

	if err := requireOwned(robotAcc); err != nil {
		return err
	}
	if err := requireSigner(owner); err != nil {
		return err
	}
	if !robotAcc.Exempt {
		return domain.ErrAccountNotRentExempt
	}
	if len(robotAcc.Data) < domain.RobotLen {
		return domain.ErrInvalidAccountData
	}

	existing, err := domain.UnpackRobot(robotAcc.Data)
	if err != nil {
		return err
	}
	if existing.Initialized {
		return domain.ErrAlreadyInitialized
	}
	if owner.Key.IsZero() || authority.Key.IsZero() {
		return domain.ErrInvalidControlAuthority
	}

	robot := domain.NewRobot(owner.Key, authority.Key, ix.RobotID, ix.MerkleRoot, ix.MetadataURI)
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}

	r.Robot = robotAcc.Key
	p.logger.Info("robot initialized",
		zap.Stringer("robot", robotAcc.Key),
		zap.Stringer("robot_id", ix.RobotID),
		zap.Stringer("owner", owner.Key),
		zap.Stringer("authority", authority.Key),
	)
	return nil
}

// issueCredential. Аккаунты: credential, robot, issuer (signer), recipient.
// Корень дерева не трогается: пока администратор не обновит merkle_root,
// новый credential ничего не авторизует.
func (p *Processor) issueCredential(c *call, ix instruction.IssueCredential, r *Receipt) error {
	accs, err := c.accounts(4)
	if err != nil {
		return err
	}
	credAcc, robotAcc, issuer, recipient := accs[0], accs[1], accs[2], accs[3]

	if err := requireOwned(credAcc, robotAcc); err != nil {
		return err
	}
	if err := requireSigner(issuer); err != nil {
		return err
	}

	robot, err := loadRobot(robotAcc)
	if err != nil {
		return err
	}
	if !policy.CanIssue(robot, issuer.Key) {
		return domain.ErrNotAuthorized
	}
	if !credAcc.Exempt {
		return domain.ErrAccountNotRentExempt
	}

	existing, err := domain.UnpackCredential(credAcc.Data)
	if err != nil {
		return err
	}
	if existing.Initialized {
		return domain.ErrAlreadyInitialized
	}

	cred := &domain.Credential{
		Initialized:     true,
		Owner:           recipient.Key,
		Robot:           robotAcc.Key,
		PermissionLevel: ix.PermissionLevel,
		ValidFrom:       ix.ValidFrom,
		ValidUntil:      ix.ValidUntil,
		CredentialHash:  ix.CredentialHash,
		Issuer:          issuer.Key,
	}
	if err := c.stage(0, cred.Pack); err != nil {
		return err
	}

	r.Robot = robotAcc.Key
	p.logger.Info("credential issued",
		zap.Stringer("credential", credAcc.Key),
		zap.Stringer("robot", robotAcc.Key),
		zap.Stringer("holder", recipient.Key),
		zap.Stringer("level", ix.PermissionLevel),
	)
	return nil
}

// revokeCredential. Аккаунты: credential, authority (signer), robot.
// Лист остается в дереве: отзыв действует только через флаг revoked.
func (p *Processor) revokeCredential(c *call, r *Receipt) error {
	accs, err := c.accounts(3)
	if err != nil {
		return err
	}
	credAcc, actor, robotAcc := accs[0], accs[1], accs[2]

	if err := requireOwned(credAcc, robotAcc); err != nil {
		return err
	}
	if err := requireSigner(actor); err != nil {
		return err
	}

	robot, err := loadRobot(robotAcc)
	if err != nil {
		return err
	}
	if !policy.CanIssue(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}

	cred, err := domain.UnpackCredential(credAcc.Data)
	if err != nil {
		return err
	}
	if !cred.Initialized {
		return domain.ErrUninitializedAccount
	}
	if cred.Robot != robotAcc.Key {
		return domain.ErrNotAuthorized
	}

	cred.Revoked = true
	if err := c.stage(0, cred.Pack); err != nil {
		return err
	}

	r.Robot = robotAcc.Key
	p.logger.Info("credential revoked", zap.Stringer("credential", credAcc.Key), zap.Stringer("robot", robotAcc.Key))
	return nil
}

// robotAdmin — общий пролог операций над записью робота.
// Аккаунты: robot, actor (signer).
func robotAdmin(c *call) (*Account, *Account, *domain.Robot, error) {
	accs, err := c.accounts(2)
	if err != nil {
		return nil, nil, nil, err
	}
	robotAcc, actor := accs[0], accs[1]

	if err := requireOwned(robotAcc); err != nil {
		return nil, nil, nil, err
	}
	if err := requireSigner(actor); err != nil {
		return nil, nil, nil, err
	}
	robot, err := loadRobot(robotAcc)
	if err != nil {
		return nil, nil, nil, err
	}
	return robotAcc, actor, robot, nil
}

// updateMerkleRoot заменяет корень без какой-либо проверки нового набора.
func (p *Processor) updateMerkleRoot(c *call, ix instruction.UpdateMerkleRoot, r *Receipt) error {
	robotAcc, actor, robot, err := robotAdmin(c)
	if err != nil {
		return err
	}
	if !policy.CanAdminister(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}

	robot.MerkleRoot = ix.NewMerkleRoot
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}
	r.Robot = robotAcc.Key
	p.logger.Info("merkle root updated", zap.Stringer("robot", robotAcc.Key), zap.Stringer("root", ix.NewMerkleRoot))
	return nil
}

func (p *Processor) transferAuthority(c *call, ix instruction.TransferAuthority, r *Receipt) error {
	robotAcc, actor, robot, err := robotAdmin(c)
	if err != nil {
		return err
	}
	if !policy.IsAuthority(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}
	if ix.NewAuthority.IsZero() {
		return domain.ErrInvalidControlAuthority
	}

	robot.Authority = ix.NewAuthority
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}
	r.Robot = robotAcc.Key
	p.logger.Info("authority transferred", zap.Stringer("robot", robotAcc.Key), zap.Stringer("authority", ix.NewAuthority))
	return nil
}

func (p *Processor) transferOwnership(c *call, ix instruction.TransferOwnership, r *Receipt) error {
	robotAcc, actor, robot, err := robotAdmin(c)
	if err != nil {
		return err
	}
	if !policy.CanOwn(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}
	if ix.NewOwner.IsZero() {
		return domain.ErrInvalidControlAuthority
	}

	robot.Owner = ix.NewOwner
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}
	r.Robot = robotAcc.Key
	p.logger.Info("ownership transferred", zap.Stringer("robot", robotAcc.Key), zap.Stringer("owner", ix.NewOwner))
	return nil
}

// addOperator: повтор - успешный no-op даже при заполненном наборе.
func (p *Processor) addOperator(c *call, ix instruction.AddOperator, r *Receipt) error {
	robotAcc, actor, robot, err := robotAdmin(c)
	if err != nil {
		return err
	}
	if !policy.CanAdminister(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}

	r.Robot = robotAcc.Key
	if robot.HasOperator(ix.Operator) {
		return nil
	}
	if len(robot.ActiveOperators) >= int(robot.MaxOperators) {
		return domain.ErrInvalidRobotState
	}

	robot.ActiveOperators = append(robot.ActiveOperators, ix.Operator)
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}
	p.logger.Info("operator added", zap.Stringer("robot", robotAcc.Key), zap.Stringer("operator", ix.Operator))
	return nil
}

// removeOperator: отсутствующий оператор - успешный no-op.
func (p *Processor) removeOperator(c *call, ix instruction.RemoveOperator, r *Receipt) error {
	robotAcc, actor, robot, err := robotAdmin(c)
	if err != nil {
		return err
	}
	if !policy.CanAdminister(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}

	r.Robot = robotAcc.Key
	if !robot.HasOperator(ix.Operator) {
		return nil
	}

	robot.ActiveOperators = slices.DeleteFunc(robot.ActiveOperators, func(op domain.Pubkey) bool {
		return op == ix.Operator
	})
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}
	p.logger.Info("operator removed", zap.Stringer("robot", robotAcc.Key), zap.Stringer("operator", ix.Operator))
	return nil
}

// emergencyStop ставит латч и переводит в Error из любого статуса.
// Текущий статус здесь намеренно не проверяется.
func (p *Processor) emergencyStop(c *call, r *Receipt) error {
	robotAcc, actor, robot, err := robotAdmin(c)
	if err != nil {
		return err
	}
	if !policy.CanAdminister(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}

	robot.EmergencyStop = true
	robot.Status = domain.StatusError
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}
	r.Robot = robotAcc.Key
	p.logger.Warn("emergency stop activated", zap.Stringer("robot", robotAcc.Key), zap.Stringer("actor", actor.Key))
	return nil
}

// resume снимает латч. Только точный authority.
func (p *Processor) resume(c *call, r *Receipt) error {
	robotAcc, actor, robot, err := robotAdmin(c)
	if err != nil {
		return err
	}
	if !policy.IsAuthority(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}

	robot.EmergencyStop = false
	robot.Status = domain.StatusIdle
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}
	r.Robot = robotAcc.Key
	p.logger.Info("robot resumed", zap.Stringer("robot", robotAcc.Key))
	return nil
}

func (p *Processor) updateRobotStatus(c *call, ix instruction.UpdateRobotStatus, r *Receipt) error {
	robotAcc, actor, robot, err := robotAdmin(c)
	if err != nil {
		return err
	}
	if !policy.CanAdminister(robot, actor.Key) {
		return domain.ErrNotAuthorized
	}

	status, err := domain.RobotStatusFromCode(ix.Status)
	if err != nil {
		return err
	}
	robot.Status = status
	if err := c.stage(0, robot.Pack); err != nil {
		return err
	}
	r.Robot = robotAcc.Key
	p.logger.Info("robot status updated", zap.Stringer("robot", robotAcc.Key), zap.Stringer("status", status))
	return nil
}
