package domain

// CommandLog: запись об успешно исполненной команде. Слот переиспользуется,
// это не растущий журнал.
type CommandLog struct {
	Initialized bool        `json:"initialized"`
	Robot       Pubkey      `json:"robot"`
	Executor    Pubkey      `json:"executor"`
	CommandType CommandType `json:"command_type"`
	Timestamp   int64       `json:"timestamp"`
	Parameters  []byte      `json:"parameters"`
	Success     bool        `json:"success"`
	ErrorCode   uint32      `json:"error_code"`
}

func (l *CommandLog) Pack(dst []byte) error {
	if len(l.Parameters) > MaxParametersLen {
		return ErrInvalidAccountData
	}

	w := &writer{buf: dst}
	w.boolean(l.Initialized)
	w.fixed(l.Robot[:])
	w.fixed(l.Executor[:])
	w.u8(uint8(l.CommandType))
	w.u64(uint64(l.Timestamp))
	w.vec(l.Parameters)
	w.boolean(l.Success)
	w.u32(l.ErrorCode)
	return w.finish()
}

func UnpackCommandLog(src []byte) (*CommandLog, error) {
	rd := &reader{buf: src}
	l := &CommandLog{}

	l.Initialized = rd.boolean()
	rd.fixed(l.Robot[:])
	rd.fixed(l.Executor[:])
	l.CommandType = CommandType(rd.u8())
	l.Timestamp = int64(rd.u64())
	l.Parameters = rd.vec(MaxParametersLen)
	l.Success = rd.boolean()
	l.ErrorCode = rd.u32()

	if rd.err != nil {
		return nil, rd.err
	}
	if !l.CommandType.Valid() {
		return nil, ErrInvalidAccountData
	}
	return l, nil
}
