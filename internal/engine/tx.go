package engine

/*
Файл tx.go - конверт транзакции хоста.

Message перечисляет аккаунты вызова с флагами signer / writable и несет
закодированную инструкцию. Подписи ed25519 ставятся над детерминированным
CBOR сообщения, поэтому клиент и шлюз получают одинаковые байты.
*/

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/xela07ax/roby-guard/internal/codec"
	"github.com/xela07ax/roby-guard/internal/domain"
)

// MaxAccounts: верхняя граница списка аккаунтов одного сообщения.
const MaxAccounts = 16

var (
	ErrMalformedTransaction = errors.New("engine: malformed transaction")
	ErrSignatureMissing     = errors.New("engine: signature missing for declared signer")
	ErrInvalidSignature     = errors.New("engine: invalid signature")
	ErrAccountNotWritable   = errors.New("engine: instruction modified a read-only account")
	ErrTransactionExpired   = errors.New("engine: transaction expired")
	ErrDuplicateTransaction = errors.New("engine: transaction already processed")
)

type AccountMeta struct {
	Key      domain.Pubkey
	Signer   bool
	Writable bool
}

type Message struct {
	Accounts    []AccountMeta
	Instruction []byte
	// Expiry — unix-время, после которого шлюз отклоняет транзакцию. Обязателен,
	// не дальше ReplayWindow от момента подачи.
	Expiry int64
	Nonce  uint64
}

type Signature struct {
	Key domain.Pubkey
	Sig []byte
}

type Transaction struct {
	Message    Message
	Signatures []Signature
}

// Формы на проводе: ключи - байтовые строки фиксированной длины.
type wireMeta struct {
	Key      []byte `cbor:"key"`
	Signer   bool   `cbor:"signer"`
	Writable bool   `cbor:"writable"`
}

type wireMessage struct {
	Accounts    []wireMeta `cbor:"accounts"`
	Instruction []byte     `cbor:"instruction"`
	Expiry      int64      `cbor:"expiry,omitempty"`
	Nonce       uint64     `cbor:"nonce,omitempty"`
}

type wireSignature struct {
	Key []byte `cbor:"key"`
	Sig []byte `cbor:"sig"`
}

type wireTransaction struct {
	Message    wireMessage     `cbor:"message"`
	Signatures []wireSignature `cbor:"signatures"`
}

func (m *Message) wire() wireMessage {
	w := wireMessage{
		Accounts:    make([]wireMeta, len(m.Accounts)),
		Instruction: m.Instruction,
		Expiry:      m.Expiry,
		Nonce:       m.Nonce,
	}
	if w.Instruction == nil {
		w.Instruction = []byte{}
	}
	for i, a := range m.Accounts {
		w.Accounts[i] = wireMeta{Key: a.Key[:], Signer: a.Signer, Writable: a.Writable}
	}
	return w
}

// SigningBytes: байты, над которыми ставится подпись.
func (m *Message) SigningBytes() ([]byte, error) {
	return codec.Marshal(m.wire())
}

// Sign добавляет подпись ключа priv. Ключ должен быть объявлен signer.
func (tx *Transaction) Sign(priv ed25519.PrivateKey) error {
	pub, err := domain.PubkeyFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return err
	}
	declared := false
	for _, m := range tx.Message.Accounts {
		if m.Key == pub && m.Signer {
			declared = true
			break
		}
	}
	if !declared {
		return fmt.Errorf("%w: %s is not a declared signer", ErrMalformedTransaction, pub)
	}

	msg, err := tx.Message.SigningBytes()
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, Signature{Key: pub, Sig: ed25519.Sign(priv, msg)})
	return nil
}

// Verify проверяет все подписи и возвращает множество подтвержденных подписантов.
// Каждый аккаунт с флагом Signer обязан иметь действительную подпись.
func (tx *Transaction) Verify() (map[domain.Pubkey]bool, error) {
	if len(tx.Message.Accounts) == 0 || len(tx.Message.Accounts) > MaxAccounts {
		return nil, fmt.Errorf("%w: %d accounts", ErrMalformedTransaction, len(tx.Message.Accounts))
	}
	msg, err := tx.Message.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	verified := make(map[domain.Pubkey]bool, len(tx.Signatures))
	for _, s := range tx.Signatures {
		if len(s.Sig) != ed25519.SignatureSize || !ed25519.Verify(s.Key[:], msg, s.Sig) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, s.Key)
		}
		verified[s.Key] = true
	}

	signers := make(map[domain.Pubkey]bool)
	for _, m := range tx.Message.Accounts {
		if !m.Signer {
			continue
		}
		if !verified[m.Key] {
			return nil, fmt.Errorf("%w: %s", ErrSignatureMissing, m.Key)
		}
		signers[m.Key] = true
	}
	return signers, nil
}

// ID возвращает идентификатор транзакции для защиты от повторов: первая подпись
// (или хэш сообщения, если подписей нет).
func (tx *Transaction) ID() string {
	if len(tx.Signatures) > 0 {
		return fmt.Sprintf("%x", tx.Signatures[0].Sig)
	}
	msg, err := tx.Message.SigningBytes()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", msg)
}

func EncodeTransaction(tx *Transaction) ([]byte, error) {
	w := wireTransaction{
		Message:    tx.Message.wire(),
		Signatures: make([]wireSignature, len(tx.Signatures)),
	}
	for i, s := range tx.Signatures {
		w.Signatures[i] = wireSignature{Key: s.Key[:], Sig: s.Sig}
	}
	return codec.Marshal(w)
}

func DecodeTransaction(data []byte) (*Transaction, error) {
	var w wireTransaction
	if err := codec.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if len(w.Message.Accounts) > MaxAccounts {
		return nil, fmt.Errorf("%w: %d accounts", ErrMalformedTransaction, len(w.Message.Accounts))
	}

	tx := &Transaction{
		Message: Message{
			Accounts:    make([]AccountMeta, len(w.Message.Accounts)),
			Instruction: w.Message.Instruction,
			Expiry:      w.Message.Expiry,
			Nonce:       w.Message.Nonce,
		},
		Signatures: make([]Signature, len(w.Signatures)),
	}
	for i, a := range w.Message.Accounts {
		key, err := domain.PubkeyFromBytes(a.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: account %d: %v", ErrMalformedTransaction, i, err)
		}
		tx.Message.Accounts[i] = AccountMeta{Key: key, Signer: a.Signer, Writable: a.Writable}
	}
	for i, s := range w.Signatures {
		key, err := domain.PubkeyFromBytes(s.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", ErrMalformedTransaction, i, err)
		}
		tx.Signatures[i] = Signature{Key: key, Sig: s.Sig}
	}
	return tx, nil
}
