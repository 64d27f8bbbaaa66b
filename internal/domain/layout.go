package domain

import "encoding/binary"

/*
Файл layout.go описывает бинарную раскладку записей в слотах фиксированного размера.

Формат Borsh-совместимый: little-endian, bool - один байт (0/1), enum - u8,
Vec/String - u32 длина + байты. Хвост слота после записи заполняется нулями.
Полностью нулевой слот читается как неинициализированная запись.
*/

const (
	// MaxOperators — предел набора операторов робота.
	MaxOperators = 10
	// MaxMetadataURILen: предел metadata_uri в байтах.
	MaxMetadataURILen = 256
	// MaxParametersLen: предел параметров команды в байтах.
	MaxParametersLen = 256

	// RobotLen — максимальный размер записи Robot.
	RobotLen = 1 + 32 + 32 + 1 + 32 + 32 + 8 + 8 + (4 + 32*MaxOperators) + 1 + 1 + (4 + MaxMetadataURILen)
	// CredentialLen: размер записи Credential.
	CredentialLen = 1 + 32 + 32 + 1 + 8 + 8 + 1 + 32 + 32
	// CommandLogLen: максимальный размер записи CommandLog.
	CommandLogLen = 1 + 32 + 32 + 1 + 8 + (4 + MaxParametersLen) + 1 + 4
)

type writer struct {
	buf []byte
	off int
	err error
}

func (w *writer) need(n int) bool {
	if w.err != nil {
		return false
	}
	if w.off+n > len(w.buf) {
		w.err = ErrInvalidAccountData
		return false
	}
	return true
}

func (w *writer) u8(v uint8) {
	if w.need(1) {
		w.buf[w.off] = v
		w.off++
	}
}

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u32(v uint32) {
	if w.need(4) {
		binary.LittleEndian.PutUint32(w.buf[w.off:], v)
		w.off += 4
	}
}

func (w *writer) u64(v uint64) {
	if w.need(8) {
		binary.LittleEndian.PutUint64(w.buf[w.off:], v)
		w.off += 8
	}
}

func (w *writer) fixed(b []byte) {
	if w.need(len(b)) {
		copy(w.buf[w.off:], b)
		w.off += len(b)
	}
}

func (w *writer) vec(b []byte) {
	w.u32(uint32(len(b)))
	w.fixed(b)
}

// finish обнуляет хвост слота, чтобы в нем не оставалось старых байтов.
func (w *writer) finish() error {
	if w.err != nil {
		return w.err
	}
	clear(w.buf[w.off:])
	return nil
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = ErrInvalidAccountData
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) boolean() bool {
	switch r.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail()
		return false
	}
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) fixed(dst []byte) {
	if b := r.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

// vec читает u32 длину и байты, отклоняя длину больше limit.
func (r *reader) vec(limit int) []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if int64(n) > int64(limit) {
		r.fail()
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = ErrInvalidAccountData
	}
}
