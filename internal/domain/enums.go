package domain

import (
	"fmt"
	"strings"
)

// RobotStatus: жизненный цикл робота. Латч emergency_stop от статуса не зависит.
type RobotStatus uint8

const (
	StatusOffline RobotStatus = iota
	StatusIdle
	StatusActive
	StatusExecuting
	StatusError
	StatusMaintenance
)

var robotStatusNames = [...]string{"offline", "idle", "active", "executing", "error", "maintenance"}

// RobotStatusFromCode принимает только коды 0..5.
func RobotStatusFromCode(code uint8) (RobotStatus, error) {
	if int(code) >= len(robotStatusNames) {
		return 0, ErrInvalidRobotState
	}
	return RobotStatus(code), nil
}

func (s RobotStatus) Valid() bool { return int(s) < len(robotStatusNames) }

func (s RobotStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", uint8(s))
	}
	return robotStatusNames[s]
}

func (s RobotStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RobotStatus) UnmarshalText(text []byte) error {
	for i, name := range robotStatusNames {
		if strings.EqualFold(name, string(text)) {
			*s = RobotStatus(i)
			return nil
		}
	}
	return fmt.Errorf("domain: unknown robot status %q", text)
}

// PermissionLevel - упорядоченная шкала: None < Observer < Operator < Administrator < Owner.
type PermissionLevel uint8

const (
	PermissionNone PermissionLevel = iota
	PermissionObserver
	PermissionOperator
	PermissionAdministrator
	PermissionOwner
)

var permissionNames = [...]string{"none", "observer", "operator", "administrator", "owner"}

func (l PermissionLevel) Valid() bool { return int(l) < len(permissionNames) }

func (l PermissionLevel) String() string {
	if !l.Valid() {
		return fmt.Sprintf("permission(%d)", uint8(l))
	}
	return permissionNames[l]
}

func (l PermissionLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *PermissionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParsePermissionLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParsePermissionLevel понимает имя уровня без учета регистра.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	for i, name := range permissionNames {
		if strings.EqualFold(name, s) {
			return PermissionLevel(i), nil
		}
	}
	return 0, fmt.Errorf("domain: unknown permission level %q", s)
}

// CommandType — вид команды роботу. На авторизацию влияет только в строгом режиме.
type CommandType uint8

const (
	CommandMove CommandType = iota
	CommandRotate
	CommandGrab
	CommandRelease
	CommandEmergencyStop
	CommandReset
	CommandCalibrate
	CommandUpdateConfig
	CommandCustom
)

var commandNames = [...]string{"move", "rotate", "grab", "release", "emergency_stop", "reset", "calibrate", "update_config", "custom"}

func (c CommandType) Valid() bool { return int(c) < len(commandNames) }

func (c CommandType) String() string {
	if !c.Valid() {
		return fmt.Sprintf("command(%d)", uint8(c))
	}
	return commandNames[c]
}

// Privileged: команды, которым в строгом режиме нужен уровень Administrator.
func (c CommandType) Privileged() bool {
	return c == CommandEmergencyStop || c == CommandUpdateConfig
}

func (c CommandType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CommandType) UnmarshalText(text []byte) error {
	parsed, err := ParseCommandType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseCommandType(s string) (CommandType, error) {
	for i, name := range commandNames {
		if strings.EqualFold(name, s) {
			return CommandType(i), nil
		}
	}
	return 0, fmt.Errorf("domain: unknown command type %q", s)
}
