// Package instruction описывает действие, которое несет один вызов ядра,
// и строгий декодер конверта.
//
// Инструкция - закрытое объединение из двенадцати вариантов. Внешняя
// реализация интерфейса невозможна (неэкспортируемый маркер), поэтому
// switch по типу в процессоре покрывает все варианты.
package instruction

import (
	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/merkle"
)

// Tag — дискриминатор варианта на проводе. Значения совпадают с порядком
// вариантов в исходной программе.
type Tag uint8

const (
	TagInitializeRobot Tag = iota
	TagIssueCredential
	TagRevokeCredential
	TagExecuteCommand
	TagUpdateMerkleRoot
	TagTransferAuthority
	TagAddOperator
	TagRemoveOperator
	TagEmergencyStop
	TagResume
	TagUpdateRobotStatus
	TagTransferOwnership
)

var tagNames = [...]string{
	"InitializeRobot", "IssueCredential", "RevokeCredential", "ExecuteCommand",
	"UpdateMerkleRoot", "TransferAuthority", "AddOperator", "RemoveOperator",
	"EmergencyStop", "Resume", "UpdateRobotStatus", "TransferOwnership",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "Unknown"
}

// Instruction: один из вариантов ниже.
type Instruction interface {
	Tag() Tag
	sealed()
}

type InitializeRobot struct {
	RobotID     domain.Pubkey
	MerkleRoot  merkle.Hash
	MetadataURI string
}

type IssueCredential struct {
	PermissionLevel domain.PermissionLevel
	ValidFrom       int64
	ValidUntil      int64
	CredentialHash  merkle.Hash
}

type RevokeCredential struct{}

type ExecuteCommand struct {
	CommandType domain.CommandType
	Parameters  []byte
	MerkleProof []merkle.Hash
}

type UpdateMerkleRoot struct {
	NewMerkleRoot merkle.Hash
}

type TransferAuthority struct {
	NewAuthority domain.Pubkey
}

type AddOperator struct {
	Operator domain.Pubkey
}

type RemoveOperator struct {
	Operator domain.Pubkey
}

type EmergencyStop struct{}

type Resume struct{}

// UpdateRobotStatus несет сырой код: проверка диапазона 0..5 - дело ядра.
type UpdateRobotStatus struct {
	Status uint8
}

type TransferOwnership struct {
	NewOwner domain.Pubkey
}

func (InitializeRobot) Tag() Tag   { return TagInitializeRobot }
func (IssueCredential) Tag() Tag   { return TagIssueCredential }
func (RevokeCredential) Tag() Tag  { return TagRevokeCredential }
func (ExecuteCommand) Tag() Tag    { return TagExecuteCommand }
func (UpdateMerkleRoot) Tag() Tag  { return TagUpdateMerkleRoot }
func (TransferAuthority) Tag() Tag { return TagTransferAuthority }
func (AddOperator) Tag() Tag       { return TagAddOperator }
func (RemoveOperator) Tag() Tag    { return TagRemoveOperator }
func (EmergencyStop) Tag() Tag     { return TagEmergencyStop }
func (Resume) Tag() Tag            { return TagResume }
func (UpdateRobotStatus) Tag() Tag { return TagUpdateRobotStatus }
func (TransferOwnership) Tag() Tag { return TagTransferOwnership }

func (InitializeRobot) sealed()   {}
func (IssueCredential) sealed()   {}
func (RevokeCredential) sealed()  {}
func (ExecuteCommand) sealed()    {}
func (UpdateMerkleRoot) sealed()  {}
func (TransferAuthority) sealed() {}
func (AddOperator) sealed()       {}
func (RemoveOperator) sealed()    {}
func (EmergencyStop) sealed()     {}
func (Resume) sealed()            {}
func (UpdateRobotStatus) sealed() {}
func (TransferOwnership) sealed() {}
