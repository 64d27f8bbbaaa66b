package main

import (
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/engine"
	"github.com/xela07ax/roby-guard/internal/instruction"
	"github.com/xela07ax/roby-guard/internal/merkle"
)

// txFile: YAML описание транзакции для `robyctl tx build`.
//
//	instruction:
//	  type: ExecuteCommand
//	  command_type: move
//	  parameters: "0a0b"
//	  merkle_proof: [<hex>, <hex>]
//	accounts:
//	  - {key: <hex>, writable: true}
//	  - {key: <hex>, signer: true}
//	expiry: 1700000600 # unix; без поля берется now + --ttl
//	nonce: 7
type txFile struct {
	Instruction ixFile        `yaml:"instruction"`
	Accounts    []accountFile `yaml:"accounts"`
	Expiry      int64         `yaml:"expiry"`
	Nonce       uint64        `yaml:"nonce"`
}

type accountFile struct {
	Key      string `yaml:"key"`
	Signer   bool   `yaml:"signer"`
	Writable bool   `yaml:"writable"`
}

// ixFile — плоский набор полей всех вариантов; читаются только поля варианта Type.
type ixFile struct {
	Type string `yaml:"type"`

	RobotID     string `yaml:"robot_id"`
	MerkleRoot  string `yaml:"merkle_root"`
	MetadataURI string `yaml:"metadata_uri"`

	PermissionLevel string `yaml:"permission_level"`
	ValidFrom       int64  `yaml:"valid_from"`
	ValidUntil      int64  `yaml:"valid_until"`
	CredentialHash  string `yaml:"credential_hash"`

	CommandType string   `yaml:"command_type"`
	Parameters  string   `yaml:"parameters"` // hex
	MerkleProof []string `yaml:"merkle_proof"`

	// новый authority, оператор или новый владелец
	Key    string `yaml:"key"`
	Status uint8  `yaml:"status"`
}

func parseTxFile(data []byte) (*engine.Transaction, error) {
	var f txFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tx file: %w", err)
	}

	ix, err := f.Instruction.build()
	if err != nil {
		return nil, err
	}
	raw, err := instruction.Encode(ix)
	if err != nil {
		return nil, err
	}

	metas := make([]engine.AccountMeta, len(f.Accounts))
	for i, a := range f.Accounts {
		key, err := domain.ParsePubkey(a.Key)
		if err != nil {
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
		metas[i] = engine.AccountMeta{Key: key, Signer: a.Signer, Writable: a.Writable}
	}

	return &engine.Transaction{Message: engine.Message{
		Accounts:    metas,
		Instruction: raw,
		Expiry:      f.Expiry,
		Nonce:       f.Nonce,
	}}, nil
}

func (f ixFile) build() (instruction.Instruction, error) {
	switch f.Type {
	case "InitializeRobot":
		robotID, err := domain.ParsePubkey(f.RobotID)
		if err != nil {
			return nil, fmt.Errorf("robot_id: %w", err)
		}
		root, err := merkle.ParseHash(f.MerkleRoot)
		if err != nil {
			return nil, fmt.Errorf("merkle_root: %w", err)
		}
		return instruction.InitializeRobot{RobotID: robotID, MerkleRoot: root, MetadataURI: f.MetadataURI}, nil

	case "IssueCredential":
		lvl, err := domain.ParsePermissionLevel(f.PermissionLevel)
		if err != nil {
			return nil, err
		}
		h, err := merkle.ParseHash(f.CredentialHash)
		if err != nil {
			return nil, fmt.Errorf("credential_hash: %w", err)
		}
		return instruction.IssueCredential{PermissionLevel: lvl, ValidFrom: f.ValidFrom, ValidUntil: f.ValidUntil, CredentialHash: h}, nil

	case "RevokeCredential":
		return instruction.RevokeCredential{}, nil

	case "ExecuteCommand":
		ct, err := domain.ParseCommandType(f.CommandType)
		if err != nil {
			return nil, err
		}
		params, err := hex.DecodeString(f.Parameters)
		if err != nil {
			return nil, fmt.Errorf("parameters: %w", err)
		}
		proof, err := parseHashes(f.MerkleProof)
		if err != nil {
			return nil, fmt.Errorf("merkle_proof: %w", err)
		}
		return instruction.ExecuteCommand{CommandType: ct, Parameters: params, MerkleProof: proof}, nil

	case "UpdateMerkleRoot":
		root, err := merkle.ParseHash(f.MerkleRoot)
		if err != nil {
			return nil, fmt.Errorf("merkle_root: %w", err)
		}
		return instruction.UpdateMerkleRoot{NewMerkleRoot: root}, nil

	case "TransferAuthority", "AddOperator", "RemoveOperator", "TransferOwnership":
		key, err := domain.ParsePubkey(f.Key)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		switch f.Type {
		case "TransferAuthority":
			return instruction.TransferAuthority{NewAuthority: key}, nil
		case "AddOperator":
			return instruction.AddOperator{Operator: key}, nil
		case "RemoveOperator":
			return instruction.RemoveOperator{Operator: key}, nil
		default:
			return instruction.TransferOwnership{NewOwner: key}, nil
		}

	case "EmergencyStop":
		return instruction.EmergencyStop{}, nil
	case "Resume":
		return instruction.Resume{}, nil
	case "UpdateRobotStatus":
		return instruction.UpdateRobotStatus{Status: f.Status}, nil
	}
	return nil, fmt.Errorf("unknown instruction type %q", f.Type)
}
