package domain

import (
	"slices"

	"github.com/xela07ax/roby-guard/internal/merkle"
)

// Robot: запись одного робота. Инициализируется ровно один раз на слот,
// после этого Owner и Authority не пустые.
type Robot struct {
	Initialized           bool        `json:"initialized"`
	Owner                 Pubkey      `json:"owner"`
	Authority             Pubkey      `json:"authority"`
	Status                RobotStatus `json:"status"`
	RobotID               Pubkey      `json:"robot_id"`
	MerkleRoot            merkle.Hash `json:"merkle_root"`
	LastCommandTimestamp  int64       `json:"last_command_timestamp"`
	TotalCommandsExecuted uint64      `json:"total_commands_executed"`
	ActiveOperators       []Pubkey    `json:"active_operators"`
	MaxOperators          uint8       `json:"max_operators"`
	EmergencyStop         bool        `json:"emergency_stop"`
	MetadataURI           string      `json:"metadata_uri"`
}

// NewRobot собирает только что инициализированную запись: статус Idle, латч снят.
func NewRobot(owner, authority, robotID Pubkey, root merkle.Hash, metadataURI string) *Robot {
	return &Robot{
		Initialized:  true,
		Owner:        owner,
		Authority:    authority,
		Status:       StatusIdle,
		RobotID:      robotID,
		MerkleRoot:   root,
		MaxOperators: MaxOperators,
		MetadataURI:  metadataURI,
	}
}

// HasOperator сообщает, есть ли id в наборе операторов.
func (r *Robot) HasOperator(id Pubkey) bool {
	return slices.Contains(r.ActiveOperators, id)
}

// Pack пишет запись в слот dst. Слот меньше сериализованной записи - InvalidAccountData.
func (r *Robot) Pack(dst []byte) error {
	if len(r.ActiveOperators) > MaxOperators || len(r.MetadataURI) > MaxMetadataURILen {
		return ErrInvalidAccountData
	}

	w := &writer{buf: dst}
	w.boolean(r.Initialized)
	w.fixed(r.Owner[:])
	w.fixed(r.Authority[:])
	w.u8(uint8(r.Status))
	w.fixed(r.RobotID[:])
	w.fixed(r.MerkleRoot[:])
	w.u64(uint64(r.LastCommandTimestamp))
	w.u64(r.TotalCommandsExecuted)
	w.u32(uint32(len(r.ActiveOperators)))
	for _, op := range r.ActiveOperators {
		w.fixed(op[:])
	}
	w.u8(r.MaxOperators)
	w.boolean(r.EmergencyStop)
	w.vec([]byte(r.MetadataURI))
	return w.finish()
}

// UnpackRobot читает запись из слота. Нулевой слот дает неинициализированный Robot.
func UnpackRobot(src []byte) (*Robot, error) {
	rd := &reader{buf: src}
	r := &Robot{}

	r.Initialized = rd.boolean()
	rd.fixed(r.Owner[:])
	rd.fixed(r.Authority[:])
	r.Status = RobotStatus(rd.u8())
	rd.fixed(r.RobotID[:])
	rd.fixed(r.MerkleRoot[:])
	r.LastCommandTimestamp = int64(rd.u64())
	r.TotalCommandsExecuted = rd.u64()

	count := rd.u32()
	if rd.err == nil && count > MaxOperators {
		rd.fail()
	}
	if rd.err == nil && count > 0 {
		r.ActiveOperators = make([]Pubkey, count)
		for i := range r.ActiveOperators {
			rd.fixed(r.ActiveOperators[i][:])
		}
	}

	r.MaxOperators = rd.u8()
	r.EmergencyStop = rd.boolean()
	r.MetadataURI = string(rd.vec(MaxMetadataURILen))

	if rd.err != nil {
		return nil, rd.err
	}
	if !r.Status.Valid() || r.MaxOperators > MaxOperators {
		return nil, ErrInvalidAccountData
	}
	return r, nil
}
