package processor

import (
	"go.uber.org/zap"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/instruction"
	"github.com/xela07ax/roby-guard/internal/merkle"
	"github.com/xela07ax/roby-guard/internal/policy"
)

// Аккаунты ExecuteCommand: robot, executor (signer), credential, command_log.
const (
	execRobot = iota
	execExecutor
	execCredential
	execCommandLog
)

// executeCommand авторизует и фиксирует одну команду. Предусловия проверяются
// строго по порядку, первая ошибка побеждает:
//  1. робот инициализирован        -> UninitializedAccount
//  2. латч emergency_stop снят     -> RobotNotActive
//  3. credential инициализирован   -> InvalidCredential
//  4. credential действует сейчас  -> InvalidCredential
//  5. исполнитель = держатель      -> PermissionDenied
//  6. лист входит в merkle_root    -> InvalidMerkleProof
//  7. уровень прав достаточен      -> PermissionDenied
func (p *Processor) executeCommand(c *call, ix instruction.ExecuteCommand, r *Receipt) error {
	accs, err := c.accounts(4)
	if err != nil {
		return err
	}
	robotAcc, executor, credAcc, logAcc := accs[execRobot], accs[execExecutor], accs[execCredential], accs[execCommandLog]

	if err := requireOwned(robotAcc, credAcc); err != nil {
		return err
	}
	if err := requireSigner(executor); err != nil {
		return err
	}
	// слот журнала не может совпадать с записью робота или credential
	if logAcc.Key == robotAcc.Key || logAcc.Key == credAcc.Key {
		return domain.ErrInvalidAccountData
	}

	robot, err := loadRobot(robotAcc)
	if err != nil {
		return err
	}
	if robot.EmergencyStop {
		return domain.ErrRobotNotActive
	}

	cred, err := domain.UnpackCredential(credAcc.Data)
	if err != nil {
		return err
	}
	// Credential чужого робота не может авторизовать команду этому.
	if !cred.Initialized || cred.Robot != robotAcc.Key {
		return domain.ErrInvalidCredential
	}
	if !cred.IsValid(c.inv.Now) {
		return domain.ErrInvalidCredential
	}
	if cred.Owner != executor.Key {
		return domain.ErrPermissionDenied
	}
	if !merkle.Verify(cred.CredentialHash, ix.MerkleProof, robot.MerkleRoot) {
		return domain.ErrInvalidMerkleProof
	}
	if !policy.CommandAllowed(cred.PermissionLevel, ix.CommandType, p.strictCommandLevels) {
		return domain.ErrPermissionDenied
	}

	if robot.TotalCommandsExecuted == ^uint64(0) {
		return domain.ErrArithmeticOverflow
	}
	robot.TotalCommandsExecuted++
	robot.Status = domain.StatusExecuting
	robot.LastCommandTimestamp = c.inv.Now

	if err := c.stage(execRobot, robot.Pack); err != nil {
		return err
	}

	// Аудит по возможности: слот не нашей программы или слишком маленький
	// просто пропускается, команда при этом не отклоняется.
	if logAcc.Owned && len(logAcc.Data) >= domain.CommandLogLen {
		entry := &domain.CommandLog{
			Initialized: true,
			Robot:       robotAcc.Key,
			Executor:    executor.Key,
			CommandType: ix.CommandType,
			Timestamp:   c.inv.Now,
			Parameters:  ix.Parameters,
			Success:     true,
		}
		if err := c.stage(execCommandLog, entry.Pack); err != nil {
			return err
		}
		r.CommandLogged = true
	}

	r.Robot = robotAcc.Key
	p.logger.Info("command executed",
		zap.Stringer("robot", robotAcc.Key),
		zap.Stringer("executor", executor.Key),
		zap.Stringer("command", ix.CommandType),
		zap.Uint64("total", robot.TotalCommandsExecuted),
		zap.Bool("logged", r.CommandLogged),
	)
	return nil
}
