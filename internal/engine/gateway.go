package engine

/*
Файл gateway.go - хост исполнения вокруг ядра (processor).

Конвейер Submit:
 1. Проверка подписей ed25519: каждый объявленный signer обязан подписать сообщение.
 2. Обязательный срок действия не дальше окна повторов, защита от повторов.
 3. Строгое декодирование инструкции до любых изменений.
 4. Быстрый отказ ExecuteCommand для роботов из реестра аварийных остановок.
 5. Store.Transact под CommitGuard: загрузка записей с блокировкой, вызов ядра
    с доверенным временем и вердиктом о депозите, запись только writable
    аккаунтов, атомарный commit. Любая ошибка откатывает всё.
 6. Журнал, метрики, рассылка сигнала EmergencyStop / Resume.
*/

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/roby-guard/internal/audit"
	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/instruction"
	"github.com/xela07ax/roby-guard/internal/ledger"
	"github.com/xela07ax/roby-guard/internal/processor"
)

// MaxSlotSize — верхняя граница размера выделяемой записи.
const MaxSlotSize = 10 * 1024

type Options struct {
	DepositPerByte uint64
	ReplayWindow   time.Duration
	MaxProofLength int
	Now            func() time.Time // доверенные часы хоста
}

// Deps: зависимости шлюза. Stops, Replay и Journal необязательны.
type Deps struct {
	Store     ledger.Store
	Processor *processor.Processor
	Guard     *CommitGuard
	Stops     *StopRegistry
	Replay    ReplayGuard
	Journal   audit.Auditor
	Metrics   *Metrics
}

type Gateway struct {
	store   ledger.Store
	proc    *processor.Processor
	decoder instruction.Decoder
	guard   *CommitGuard
	stops   *StopRegistry
	replay  ReplayGuard
	journal audit.Auditor
	metrics *Metrics
	opts    Options
	logger  *zap.Logger
}

func NewGateway(deps Deps, opts Options, logger *zap.Logger) *Gateway {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReplayWindow <= 0 {
		opts.ReplayWindow = 10 * time.Minute
	}
	if opts.MaxProofLength <= 0 {
		opts.MaxProofLength = instruction.DefaultMaxProofLength
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Journal == nil {
		deps.Journal = audit.Discard{}
	}
	logger = logger.Named("gateway")
	if deps.Guard == nil {
		deps.Guard = NewCommitGuard(ReliabilityConfig{}, nil, deps.Metrics, logger)
	}

	return &Gateway{
		store:   deps.Store,
		proc:    deps.Processor,
		decoder: instruction.Decoder{MaxProofLength: opts.MaxProofLength},
		guard:   deps.Guard,
		stops:   deps.Stops,
		replay:  deps.Replay,
		journal: deps.Journal,
		metrics: deps.Metrics,
		opts:    opts,
		logger:  logger,
	}
}

// Result: итог успешной обработки транзакции.
type Result struct {
	ID            string          `json:"id"`
	TraceID       string          `json:"trace_id"`
	Instruction   string          `json:"instruction"`
	Robot         domain.Pubkey   `json:"robot"`
	Written       []domain.Pubkey `json:"written"`
	CommandLogged bool            `json:"command_logged"`
	Simulated     bool            `json:"simulated,omitempty"`
}

// Submit исполняет транзакцию и фиксирует изменения.
func (g *Gateway) Submit(ctx context.Context, tx *Transaction) (*Result, error) {
	return g.handle(ctx, tx, false)
}

// Simulate прогоняет транзакцию через ядро без фиксации и без журнала.
func (g *Gateway) Simulate(ctx context.Context, tx *Transaction) (*Result, error) {
	return g.handle(ctx, tx, true)
}

func (g *Gateway) handle(ctx context.Context, tx *Transaction, simulate bool) (_ *Result, err error) {
	start := time.Now()
	res := &Result{
		ID:          uuid.New().String(),
		TraceID:     TraceIDFromContext(ctx),
		Instruction: "Unknown",
		Simulated:   simulate,
	}
	defer func() { g.finish(res, tx, start, err) }()

	signers, err := tx.Verify()
	if err != nil {
		return nil, err
	}

	now := g.opts.Now()
	if err := g.checkExpiry(tx.Message.Expiry, now); err != nil {
		return nil, err
	}

	ix, err := g.decoder.Decode(tx.Message.Instruction)
	if err != nil {
		return nil, err
	}
	res.Instruction = ix.Tag().String()
	if idx := robotIndex(ix.Tag()); idx < len(tx.Message.Accounts) {
		res.Robot = tx.Message.Accounts[idx].Key
	}

	if _, ok := ix.(instruction.ExecuteCommand); ok && g.stops != nil && g.stops.IsStopped(res.Robot) && g.stops.Confirm(ctx, res.Robot) {
		return nil, errRobotStopped
	}

	var receipt *processor.Receipt
	if simulate {
		receipt, err = g.simulate(ctx, tx, signers, ix, now)
	} else {
		receipt, err = g.commit(ctx, tx, signers, ix, now)
	}
	if err != nil {
		return nil, err
	}

	res.Robot = receipt.Robot
	res.Written = receipt.Written
	res.CommandLogged = receipt.CommandLogged

	if !simulate {
		g.afterCommit(ctx, ix, res.Robot)
	}
	return res, nil
}

// checkExpiry: срок обязателен и лежит в пределах окна повторов, иначе
// транзакцию можно повторить после истечения отметки.
func (g *Gateway) checkExpiry(expiry int64, now time.Time) error {
	if expiry == 0 {
		return fmt.Errorf("%w: expiry is required", ErrMalformedTransaction)
	}
	if now.Unix() > expiry {
		return ErrTransactionExpired
	}
	if limit := now.Add(g.opts.ReplayWindow).Unix(); expiry > limit {
		return fmt.Errorf("%w: expiry %d is beyond %s", ErrMalformedTransaction, expiry, g.opts.ReplayWindow)
	}
	return nil
}

func (g *Gateway) commit(ctx context.Context, tx *Transaction, signers map[domain.Pubkey]bool, ix instruction.Instruction, now time.Time) (*processor.Receipt, error) {
	txID := tx.ID()
	if g.replay != nil {
		// отметка живет дольше срока действия: после него повтор отсечет checkExpiry
		ttl := time.Unix(tx.Message.Expiry, 0).Sub(now) + time.Minute
		fresh, err := g.replay.Claim(ctx, txID, ttl)
		if err != nil {
			return nil, fmt.Errorf("replay guard: %w", err)
		}
		if !fresh {
			return nil, ErrDuplicateTransaction
		}
	}

	keys := keysOf(tx.Message.Accounts)
	var receipt *processor.Receipt
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		return g.store.Transact(ctx, keys, func(_ context.Context, recs map[domain.Pubkey]*ledger.Record) error {
			var err error
			receipt, err = g.invoke(recs, tx.Message.Accounts, signers, ix, now)
			return err
		})
	})
	if err != nil {
		// отметку снимаем только если ответ не окончательный: клиент может повторить
		if g.replay != nil && !isOutcome(err) {
			if rErr := g.replay.Release(context.Background(), txID); rErr != nil {
				g.logger.Warn("replay release failed", zap.Error(rErr))
			}
		}
		return nil, err
	}
	return receipt, nil
}

func (g *Gateway) simulate(ctx context.Context, tx *Transaction, signers map[domain.Pubkey]bool, ix instruction.Instruction, now time.Time) (*processor.Receipt, error) {
	recs := make(map[domain.Pubkey]*ledger.Record, len(tx.Message.Accounts))
	for _, key := range keysOf(tx.Message.Accounts) {
		rec, err := g.store.Get(ctx, key)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs[key] = rec
	}
	return g.invoke(recs, tx.Message.Accounts, signers, ix, now)
}

// invoke собирает вызов ядра из загруженных записей и переносит результат
// обратно в recs. Ключ из recs - запись программы, остальные - идентичности.
func (g *Gateway) invoke(
	recs map[domain.Pubkey]*ledger.Record,
	metas []AccountMeta,
	signers map[domain.Pubkey]bool,
	ix instruction.Instruction,
	now time.Time,
) (*processor.Receipt, error) {
	accounts := make(map[domain.Pubkey]*processor.Account, len(metas))
	writable := make(map[domain.Pubkey]bool, len(metas))
	inv := processor.Invocation{Accounts: make([]*processor.Account, len(metas)), Now: now.Unix()}

	for i, m := range metas {
		acc, ok := accounts[m.Key]
		if !ok {
			acc = &processor.Account{Key: m.Key, Signer: signers[m.Key]}
			if rec, owned := recs[m.Key]; owned {
				acc.Owned = true
				acc.Exempt = rec.Exempt(g.opts.DepositPerByte)
				acc.Data = bytes.Clone(rec.Data)
			}
			accounts[m.Key] = acc
		}
		writable[m.Key] = writable[m.Key] || m.Writable
		inv.Accounts[i] = acc
	}

	receipt, err := g.proc.Process(inv, ix)
	if err != nil {
		return nil, err
	}

	for key, acc := range accounts {
		rec, owned := recs[key]
		if !owned || bytes.Equal(rec.Data, acc.Data) {
			continue
		}
		if !writable[key] {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, key)
		}
		copy(rec.Data, acc.Data)
	}
	return receipt, nil
}

func (g *Gateway) afterCommit(ctx context.Context, ix instruction.Instruction, robot domain.Pubkey) {
	if g.stops == nil {
		return
	}
	var stopped bool
	switch ix.(type) {
	case instruction.EmergencyStop:
		stopped = true
	case instruction.Resume:
		stopped = false
	default:
		return
	}
	// изменение уже зафиксировано: сбой рассылки не отменяет транзакцию
	if err := g.stops.Publish(ctx, robot, stopped); err != nil {
		g.logger.Error("emergency stop signal not delivered", zap.Stringer("robot", robot), zap.Error(err))
	}
}

func (g *Gateway) finish(res *Result, tx *Transaction, start time.Time, err error) {
	duration := time.Since(start)
	kind := Classify(err)

	status := audit.StatusSuccess
	switch kind {
	case KindNone:
	case KindProgram, KindStopped:
		status = audit.StatusFailed
	case KindInternal, KindUnavailable, KindTimeout:
		status = audit.StatusError
	default:
		status = audit.StatusRejected
	}

	label := status
	if res.Simulated {
		label = "SIMULATED_" + status
	}
	g.metrics.InstructionsTotal.WithLabelValues(res.Instruction, label).Inc()
	g.metrics.InstructionDuration.WithLabelValues(res.Instruction, label).Observe(duration.Seconds())

	event := audit.Event{
		ID:          res.ID,
		TraceID:     res.TraceID,
		Instruction: res.Instruction,
		Signer:      firstSigner(tx),
		Status:      status,
		DurationMs:  duration.Milliseconds(),
		Timestamp:   start,
	}
	if !res.Robot.IsZero() {
		event.Robot = res.Robot.String()
	}

	if err != nil {
		g.metrics.ErrorTotal.WithLabelValues(string(kind)).Inc()
		event.Error = err.Error()
		if code, ok := domain.CodeOf(err); ok {
			event.ErrorCode = &code
			g.metrics.ProgramErrors.WithLabelValues(strconv.FormatUint(uint64(code), 10)).Inc()
		}
		g.logger.Debug("transaction rejected",
			zap.String("trace_id", res.TraceID),
			zap.String("instruction", res.Instruction),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	if !res.Simulated {
		g.journal.Log(event)
	}
}

// Allocate выделяет обнуленную запись программы размера size с депозитом deposit.
func (g *Gateway) Allocate(ctx context.Context, key domain.Pubkey, size int, deposit uint64) error {
	if key.IsZero() {
		return fmt.Errorf("%w: zero key", ErrMalformedTransaction)
	}
	if size <= 0 || size > MaxSlotSize {
		return fmt.Errorf("%w: slot size %d", ErrMalformedTransaction, size)
	}

	rec := &ledger.Record{Key: key, Data: make([]byte, size), Deposit: deposit}
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		return g.store.Allocate(ctx, rec)
	})
	if err != nil {
		g.metrics.ErrorTotal.WithLabelValues(string(Classify(err))).Inc()
		return err
	}
	g.logger.Info("account allocated",
		zap.Stringer("key", key),
		zap.Int("size", size),
		zap.Uint64("deposit", deposit),
		zap.Bool("exempt", rec.Exempt(g.opts.DepositPerByte)),
	)
	return nil
}

// Account возвращает запись программы по ключу.
func (g *Gateway) Account(ctx context.Context, key domain.Pubkey) (*ledger.Record, error) {
	return g.store.Get(ctx, key)
}

// DepositFor — минимальный депозит, освобождающий запись размера size.
func (g *Gateway) DepositFor(size int) uint64 {
	return uint64(size) * g.opts.DepositPerByte
}

// robotIndex: позиция записи робота в списке аккаунтов инструкции.
func robotIndex(tag instruction.Tag) int {
	switch tag {
	case instruction.TagIssueCredential:
		return 1
	case instruction.TagRevokeCredential:
		return 2
	default:
		return 0
	}
}

func keysOf(metas []AccountMeta) []domain.Pubkey {
	keys := make([]domain.Pubkey, len(metas))
	for i, m := range metas {
		keys[i] = m.Key
	}
	return keys
}

func firstSigner(tx *Transaction) string {
	for _, m := range tx.Message.Accounts {
		if m.Signer {
			return m.Key.String()
		}
	}
	return ""
}
