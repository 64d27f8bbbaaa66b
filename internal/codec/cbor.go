// Package codec - единая CBOR кодировка всего, что пересекает границу хоста:
// конверт инструкции, сообщение транзакции и подписи.
//
// Кодирование детерминированное (Core Deterministic Encoding, RFC 8949 §4.2),
// поэтому подпись над Marshal(message) воспроизводима на любой стороне.
// Декодер строгий: дубликаты ключей и незнакомые поля - ошибка.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  4096,
		MaxMapPairs:       256,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type RawMessage = cbor.RawMessage

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose выдает человекочитаемое представление (для robyctl и логов).
func Diagnose(data []byte) (string, error) {
	s, err := cbor.Diagnose(data)
	if err != nil {
		return "", fmt.Errorf("codec: diagnose: %w", err)
	}
	return s, nil
}
