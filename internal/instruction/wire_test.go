package instruction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/roby-guard/internal/codec"
	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/merkle"
)

func TestEncodeDecode_AllVariants(t *testing.T) {
	root := merkle.HashLeaf([]byte("root"))
	all := []Instruction{
		InitializeRobot{RobotID: domain.Pubkey{1}, MerkleRoot: root, MetadataURI: "ipfs://x"},
		IssueCredential{PermissionLevel: domain.PermissionOperator, ValidFrom: 1, ValidUntil: 2, CredentialHash: root},
		RevokeCredential{},
		ExecuteCommand{CommandType: domain.CommandGrab, Parameters: []byte{9}, MerkleProof: []merkle.Hash{root, merkle.Zero}},
		UpdateMerkleRoot{NewMerkleRoot: root},
		TransferAuthority{NewAuthority: domain.Pubkey{2}},
		AddOperator{Operator: domain.Pubkey{3}},
		RemoveOperator{Operator: domain.Pubkey{4}},
		EmergencyStop{},
		Resume{},
		UpdateRobotStatus{Status: 9},
		TransferOwnership{NewOwner: domain.Pubkey{5}},
	}
	require.Len(t, all, len(tagNames))

	for _, ix := range all {
		t.Run(ix.Tag().String(), func(t *testing.T) {
			data, err := Encode(ix)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, ix, got)
		})
	}
}

func TestDecode_RejectsMalformed(t *testing.T) {
	raw := func(v any) []byte {
		b, err := codec.Marshal(v)
		require.NoError(t, err)
		return b
	}
	withBody := func(tag Tag, body any) []byte {
		return raw(envelope{Tag: uint8(tag), Body: raw(body)})
	}

	cases := map[string][]byte{
		"garbage":          {0xff, 0x00},
		"unknown tag":      raw(envelope{Tag: 12}),
		"missing body":     raw(envelope{Tag: uint8(TagAddOperator)}),
		"null body":        raw(envelope{Tag: uint8(TagAddOperator), Body: []byte{0xf6}}),
		"body on resume":   withBody(TagResume, operatorBody{Operator: make([]byte, 32)}),
		"short pubkey":     withBody(TagAddOperator, operatorBody{Operator: make([]byte, 31)}),
		"unknown field":    withBody(TagAddOperator, map[string]any{"operator": make([]byte, 32), "extra": 1}),
		"bad level":        withBody(TagIssueCredential, issueCredentialBody{PermissionLevel: 5, CredentialHash: make([]byte, 32)}),
		"bad command type": withBody(TagExecuteCommand, executeCommandBody{CommandType: 9, Parameters: []byte{}}),
		"long parameters":  withBody(TagExecuteCommand, executeCommandBody{Parameters: make([]byte, domain.MaxParametersLen+1)}),
		"long metadata": withBody(TagInitializeRobot, initializeRobotBody{
			RobotID: make([]byte, 32), MerkleRoot: make([]byte, 32), MetadataURI: string(make([]byte, 257)),
		}),
		"short proof element": withBody(TagExecuteCommand, executeCommandBody{Parameters: []byte{}, MerkleProof: [][]byte{make([]byte, 31)}}),
		"status overflow":     withBody(TagUpdateRobotStatus, map[string]any{"status": 300}),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInstruction)
		})
	}
}

func TestDecoder_MaxProofLength(t *testing.T) {
	proof := make([]merkle.Hash, 3)
	data, err := Encode(ExecuteCommand{MerkleProof: proof})
	require.NoError(t, err)

	_, err = Decoder{MaxProofLength: 2}.Decode(data)
	assert.ErrorIs(t, err, domain.ErrInvalidInstruction)

	_, err = Decoder{MaxProofLength: 3}.Decode(data)
	assert.NoError(t, err)
}
