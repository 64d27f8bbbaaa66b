package instruction

import (
	"fmt"

	"github.com/xela07ax/roby-guard/internal/codec"
	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/merkle"
)

// DefaultMaxProofLength: путь на 32 уровня покрывает 2^32 листьев.
const DefaultMaxProofLength = 32

const (
	cborNull      = 0xf6
	cborUndefined = 0xf7
)

// envelope — конверт на проводе: тег варианта и тело варианта.
type envelope struct {
	Tag  uint8            `cbor:"tag"`
	Body codec.RawMessage `cbor:"body,omitempty"`
}

type initializeRobotBody struct {
	RobotID     []byte `cbor:"robot_id"`
	MerkleRoot  []byte `cbor:"merkle_root"`
	MetadataURI string `cbor:"metadata_uri"`
}

type issueCredentialBody struct {
	PermissionLevel uint8  `cbor:"permission_level"`
	ValidFrom       int64  `cbor:"valid_from"`
	ValidUntil      int64  `cbor:"valid_until"`
	CredentialHash  []byte `cbor:"credential_hash"`
}

type executeCommandBody struct {
	CommandType uint8    `cbor:"command_type"`
	Parameters  []byte   `cbor:"parameters"`
	MerkleProof [][]byte `cbor:"merkle_proof"`
}

type updateMerkleRootBody struct {
	NewMerkleRoot []byte `cbor:"new_merkle_root"`
}

type transferAuthorityBody struct {
	NewAuthority []byte `cbor:"new_authority"`
}

type operatorBody struct {
	Operator []byte `cbor:"operator"`
}

type updateRobotStatusBody struct {
	Status uint8 `cbor:"status"`
}

type transferOwnershipBody struct {
	NewOwner []byte `cbor:"new_owner"`
}

// Encode сериализует инструкцию в детерминированный CBOR.
func Encode(ix Instruction) ([]byte, error) {
	var body any
	switch v := ix.(type) {
	case InitializeRobot:
		body = initializeRobotBody{RobotID: v.RobotID[:], MerkleRoot: v.MerkleRoot[:], MetadataURI: v.MetadataURI}
	case IssueCredential:
		body = issueCredentialBody{
			PermissionLevel: uint8(v.PermissionLevel),
			ValidFrom:       v.ValidFrom,
			ValidUntil:      v.ValidUntil,
			CredentialHash:  v.CredentialHash[:],
		}
	case ExecuteCommand:
		proof := make([][]byte, len(v.MerkleProof))
		for i := range v.MerkleProof {
			proof[i] = v.MerkleProof[i][:]
		}
		params := v.Parameters
		if params == nil {
			params = []byte{}
		}
		body = executeCommandBody{CommandType: uint8(v.CommandType), Parameters: params, MerkleProof: proof}
	case UpdateMerkleRoot:
		body = updateMerkleRootBody{NewMerkleRoot: v.NewMerkleRoot[:]}
	case TransferAuthority:
		body = transferAuthorityBody{NewAuthority: v.NewAuthority[:]}
	case AddOperator:
		body = operatorBody{Operator: v.Operator[:]}
	case RemoveOperator:
		body = operatorBody{Operator: v.Operator[:]}
	case UpdateRobotStatus:
		body = updateRobotStatusBody{Status: v.Status}
	case TransferOwnership:
		body = transferOwnershipBody{NewOwner: v.NewOwner[:]}
	case RevokeCredential, EmergencyStop, Resume:
	default:
		return nil, fmt.Errorf("instruction: cannot encode %T", ix)
	}

	env := envelope{Tag: uint8(ix.Tag())}
	if body != nil {
		raw, err := codec.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("instruction: encoding %s body: %w", ix.Tag(), err)
		}
		env.Body = raw
	}
	return codec.Marshal(env)
}

// Decoder: строгий декодер границы. Любой незнакомый тег, лишнее поле
// или неверная длина - ErrInvalidInstruction, до каких-либо изменений.
type Decoder struct {
	MaxProofLength int
}

// Decode декодирует с пределами по умолчанию.
func Decode(data []byte) (Instruction, error) {
	return Decoder{MaxProofLength: DefaultMaxProofLength}.Decode(data)
}

func (d Decoder) Decode(data []byte) (Instruction, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, invalid("envelope: %v", err)
	}

	tag := Tag(env.Tag)
	switch tag {
	case TagRevokeCredential, TagEmergencyStop, TagResume:
		if len(env.Body) != 0 {
			return nil, invalid("%s carries no body", tag)
		}
	default:
		if int(tag) >= len(tagNames) {
			return nil, invalid("unknown tag %d", env.Tag)
		}
		if len(env.Body) == 0 || env.Body[0] == cborNull || env.Body[0] == cborUndefined {
			return nil, invalid("%s: missing body", tag)
		}
	}

	switch tag {
	case TagInitializeRobot:
		var b initializeRobotBody
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, invalid("%s: %v", tag, err)
		}
		if len(b.MetadataURI) > domain.MaxMetadataURILen {
			return nil, invalid("%s: metadata_uri is %d bytes", tag, len(b.MetadataURI))
		}
		ix := InitializeRobot{MetadataURI: b.MetadataURI}
		if err := fixed(ix.RobotID[:], b.RobotID, "robot_id"); err != nil {
			return nil, err
		}
		if err := fixed(ix.MerkleRoot[:], b.MerkleRoot, "merkle_root"); err != nil {
			return nil, err
		}
		return ix, nil

	case TagIssueCredential:
		var b issueCredentialBody
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, invalid("%s: %v", tag, err)
		}
		ix := IssueCredential{
			PermissionLevel: domain.PermissionLevel(b.PermissionLevel),
			ValidFrom:       b.ValidFrom,
			ValidUntil:      b.ValidUntil,
		}
		if !ix.PermissionLevel.Valid() {
			return nil, invalid("%s: permission level %d", tag, b.PermissionLevel)
		}
		if err := fixed(ix.CredentialHash[:], b.CredentialHash, "credential_hash"); err != nil {
			return nil, err
		}
		return ix, nil

	case TagRevokeCredential:
		return RevokeCredential{}, nil

	case TagExecuteCommand:
		var b executeCommandBody
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, invalid("%s: %v", tag, err)
		}
		ix := ExecuteCommand{CommandType: domain.CommandType(b.CommandType), Parameters: b.Parameters}
		if !ix.CommandType.Valid() {
			return nil, invalid("%s: command type %d", tag, b.CommandType)
		}
		if len(b.Parameters) > domain.MaxParametersLen {
			return nil, invalid("%s: parameters are %d bytes", tag, len(b.Parameters))
		}
		if d.MaxProofLength > 0 && len(b.MerkleProof) > d.MaxProofLength {
			return nil, invalid("%s: proof has %d elements", tag, len(b.MerkleProof))
		}
		ix.MerkleProof = make([]merkle.Hash, len(b.MerkleProof))
		for i, el := range b.MerkleProof {
			if err := fixed(ix.MerkleProof[i][:], el, "merkle_proof"); err != nil {
				return nil, err
			}
		}
		return ix, nil

	case TagUpdateMerkleRoot:
		var b updateMerkleRootBody
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, invalid("%s: %v", tag, err)
		}
		var ix UpdateMerkleRoot
		if err := fixed(ix.NewMerkleRoot[:], b.NewMerkleRoot, "new_merkle_root"); err != nil {
			return nil, err
		}
		return ix, nil

	case TagTransferAuthority:
		var b transferAuthorityBody
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, invalid("%s: %v", tag, err)
		}
		var ix TransferAuthority
		if err := fixed(ix.NewAuthority[:], b.NewAuthority, "new_authority"); err != nil {
			return nil, err
		}
		return ix, nil

	case TagAddOperator, TagRemoveOperator:
		var b operatorBody
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, invalid("%s: %v", tag, err)
		}
		var op domain.Pubkey
		if err := fixed(op[:], b.Operator, "operator"); err != nil {
			return nil, err
		}
		if tag == TagAddOperator {
			return AddOperator{Operator: op}, nil
		}
		return RemoveOperator{Operator: op}, nil

	case TagEmergencyStop:
		return EmergencyStop{}, nil

	case TagResume:
		return Resume{}, nil

	case TagUpdateRobotStatus:
		var b updateRobotStatusBody
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, invalid("%s: %v", tag, err)
		}
		return UpdateRobotStatus{Status: b.Status}, nil

	case TagTransferOwnership:
		var b transferOwnershipBody
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, invalid("%s: %v", tag, err)
		}
		var ix TransferOwnership
		if err := fixed(ix.NewOwner[:], b.NewOwner, "new_owner"); err != nil {
			return nil, err
		}
		return ix, nil
	}

	return nil, invalid("unknown tag %d", env.Tag)
}

func fixed(dst, src []byte, field string) error {
	if len(src) != len(dst) {
		return invalid("%s is %d bytes, want %d", field, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInstruction, fmt.Sprintf(format, args...))
}
