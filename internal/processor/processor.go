package processor

/*
Файл processor.go - детерминированный конечный автомат, который исполняет
ровно одну инструкцию над переданными хостом записями.

Контракт вызова:
- Хост передает упорядоченный список аккаунтов с флагами signer / owned,
  вердиктом об освобождении от платы за хранение и доверенное время.
- Все изменения сначала готовятся в отдельных буферах (stage) и копируются
  в Account.Data только если инструкция завершилась без ошибки.
- Ядро ничего не хранит между вызовами, не блокируется и не повторяет попыток.
*/

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/instruction"
)

// Account: одна запись, переданная хостом в вызов.
type Account struct {
	Key    domain.Pubkey
	Signer bool // хост проверил подпись этого ключа
	Owned  bool // запись принадлежит хранилищу программы
	Exempt bool // вердикт хоста: депозит покрывает размер записи
	Data   []byte
}

// Invocation: входные данные одного вызова.
type Invocation struct {
	Accounts []*Account
	Now      int64
}

// Receipt описывает результат успешного вызова.
type Receipt struct {
	Instruction   instruction.Tag
	Robot         domain.Pubkey
	Written       []domain.Pubkey
	CommandLogged bool
}

type Option func(*Processor)

// WithStrictCommandLevels включает требование уровня Administrator
// для команд EmergencyStop и UpdateConfig.
func WithStrictCommandLevels(on bool) Option {
	return func(p *Processor) { p.strictCommandLevels = on }
}

type Processor struct {
	logger              *zap.Logger
	strictCommandLevels bool
}

func New(logger *zap.Logger, opts ...Option) *Processor {
	p := &Processor{logger: logger.Named("processor")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// call — состояние одного вызова: аккаунты и подготовленные записи.
type call struct {
	inv    Invocation
	staged map[int][]byte
	order  []int
}

// Process исполняет инструкцию. При ошибке Account.Data не меняется.
func (p *Processor) Process(inv Invocation, ix instruction.Instruction) (*Receipt, error) {
	p.logger.Debug("instruction", zap.Stringer("tag", ix.Tag()), zap.Int("accounts", len(inv.Accounts)))

	c := &call{inv: inv, staged: make(map[int][]byte)}
	receipt := &Receipt{Instruction: ix.Tag()}

	var err error
	switch v := ix.(type) {
	case instruction.InitializeRobot:
		err = p.initializeRobot(c, v, receipt)
	case instruction.IssueCredential:
		err = p.issueCredential(c, v, receipt)
	case instruction.RevokeCredential:
		err = p.revokeCredential(c, receipt)
	case instruction.ExecuteCommand:
		err = p.executeCommand(c, v, receipt)
	case instruction.UpdateMerkleRoot:
		err = p.updateMerkleRoot(c, v, receipt)
	case instruction.TransferAuthority:
		err = p.transferAuthority(c, v, receipt)
	case instruction.AddOperator:
		err = p.addOperator(c, v, receipt)
	case instruction.RemoveOperator:
		err = p.removeOperator(c, v, receipt)
	case instruction.EmergencyStop:
		err = p.emergencyStop(c, receipt)
	case instruction.Resume:
		err = p.resume(c, receipt)
	case instruction.UpdateRobotStatus:
		err = p.updateRobotStatus(c, v, receipt)
	case instruction.TransferOwnership:
		err = p.transferOwnership(c, v, receipt)
	default:
		err = fmt.Errorf("%w: unsupported %T", domain.ErrInvalidInstruction, ix)
	}
	if err != nil {
		return nil, err
	}

	for _, i := range c.order {
		acc := c.inv.Accounts[i]
		copy(acc.Data, c.staged[i])
		receipt.Written = append(receipt.Written, acc.Key)
	}
	return receipt, nil
}

// accounts возвращает первые n аккаунтов или NotEnoughAccountKeys.
func (c *call) accounts(n int) ([]*Account, error) {
	if len(c.inv.Accounts) < n {
		return nil, domain.ErrNotEnoughAccountKeys
	}
	return c.inv.Accounts[:n], nil
}

// stage сериализует запись в буфер размера слота и откладывает копирование.
// Два разных индекса с одним ключом записывать нельзя: у них общий Data.
func (c *call) stage(i int, pack func([]byte) error) error {
	acc := c.inv.Accounts[i]
	for _, j := range c.order {
		if j != i && (c.inv.Accounts[j] == acc || c.inv.Accounts[j].Key == acc.Key) {
			return domain.ErrInvalidAccountData
		}
	}
	buf := make([]byte, len(acc.Data))
	if err := pack(buf); err != nil {
		return err
	}
	if _, seen := c.staged[i]; !seen {
		c.order = append(c.order, i)
	}
	c.staged[i] = buf
	return nil
}

func requireOwned(accs ...*Account) error {
	for _, a := range accs {
		if !a.Owned {
			return domain.ErrIncorrectProgramID
		}
	}
	return nil
}

func requireSigner(a *Account) error {
	if !a.Signer {
		return domain.ErrNotAuthorized
	}
	return nil
}

// loadRobot декодирует запись и требует, чтобы она была инициализирована.
func loadRobot(a *Account) (*domain.Robot, error) {
	robot, err := domain.UnpackRobot(a.Data)
	if err != nil {
		return nil, err
	}
	if !robot.Initialized {
		return nil, domain.ErrUninitializedAccount
	}
	return robot, nil
}
