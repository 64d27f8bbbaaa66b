package main

import (
	"bytes"
	"crypto/ed25519"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/engine"
	"github.com/xela07ax/roby-guard/internal/instruction"
	"github.com/xela07ax/roby-guard/internal/merkle"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func keygen(t *testing.T, dir, name string) (string, domain.Pubkey) {
	t.Helper()
	path := filepath.Join(dir, name)
	out, err := run(t, "keygen", "--out", path)
	require.NoError(t, err)

	pub, err := domain.ParsePubkey(strings.TrimSpace(out))
	require.NoError(t, err)

	priv, err := loadSigner(path)
	require.NoError(t, err)
	derived, _ := domain.PubkeyFromBytes(priv.Public().(ed25519.PublicKey))
	require.Equal(t, pub, derived)
	return path, pub
}

func TestCredentialHash(t *testing.T) {
	owner, robot := domain.Pubkey{1}, domain.Pubkey{2}
	out, err := run(t, "credential-hash",
		"--owner", owner.String(), "--robot", robot.String(),
		"--level", "administrator", "--from", "100", "--until", "200")
	require.NoError(t, err)

	want := domain.CredentialCommitment(owner, robot, domain.PermissionAdministrator, 100, 200)
	assert.Equal(t, want.String(), strings.TrimSpace(out))

	_, err = run(t, "credential-hash", "--owner", owner.String(), "--robot", robot.String(), "--level", "god")
	assert.Error(t, err)
}

func TestMerkleRootAndProof(t *testing.T) {
	leaves := []merkle.Hash{merkle.HashLeaf([]byte("a")), merkle.HashLeaf([]byte("b")), merkle.HashLeaf([]byte("c"))}
	args := make([]string, len(leaves))
	for i, l := range leaves {
		args[i] = l.String()
	}

	out, err := run(t, append([]string{"merkle", "root"}, args...)...)
	require.NoError(t, err)
	root, err := merkle.ParseHash(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, merkle.ComputeRoot(leaves), root)

	out, err = run(t, append([]string{"merkle", "proof", "--index", "2"}, args...)...)
	require.NoError(t, err)
	proof, err := parseHashes(strings.Fields(out))
	require.NoError(t, err)
	assert.True(t, merkle.Verify(leaves[2], proof, root))

	_, err = run(t, "merkle", "proof", "--index", "5", args[0])
	assert.Error(t, err)
}

func TestTxBuildDecodeSubmit(t *testing.T) {
	dir := t.TempDir()
	ownerKey, owner := keygen(t, dir, "owner.key")
	robot := domain.Pubkey{0xA1}
	root := merkle.HashLeaf([]byte("leaf"))

	spec := "instruction:\n" +
		"  type: InitializeRobot\n" +
		"  robot_id: " + domain.Pubkey{9}.String() + "\n" +
		"  merkle_root: " + root.String() + "\n" +
		"  metadata_uri: ipfs://arm\n" +
		"accounts:\n" +
		"  - {key: " + robot.String() + ", writable: true}\n" +
		"  - {key: " + owner.String() + ", signer: true}\n" +
		"  - {key: " + domain.Pubkey{0xAA}.String() + "}\n" +
		"nonce: 3\n"
	specPath := filepath.Join(dir, "init.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte(spec), 0o600))

	txPath := filepath.Join(dir, "init.cbor")
	_, err := run(t, "tx", "build", "-f", specPath, "-o", txPath, "-k", ownerKey)
	require.NoError(t, err)

	tx, err := readTx(txPath)
	require.NoError(t, err)
	signers, err := tx.Verify()
	require.NoError(t, err)
	assert.True(t, signers[owner])
	assert.InDelta(t, time.Now().Add(5*time.Minute).Unix(), tx.Message.Expiry, 5)

	ix, err := instruction.Decode(tx.Message.Instruction)
	require.NoError(t, err)
	assert.Equal(t, instruction.InitializeRobot{RobotID: domain.Pubkey{9}, MerkleRoot: root, MetadataURI: "ipfs://arm"}, ix)

	out, err := run(t, "tx", "decode", txPath)
	require.NoError(t, err)
	assert.Contains(t, out, "signatures: ok")

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if _, err := engine.DecodeTransaction(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"instruction":"InitializeRobot"}`))
	}))
	defer srv.Close()

	out, err = run(t, "tx", "submit", "--endpoint", srv.URL, "--simulate", txPath)
	require.NoError(t, err)
	assert.Equal(t, "/v1/transactions/simulate", gotPath)
	assert.Contains(t, out, "InitializeRobot")
}

func TestTxSignRejectsUndeclaredSigner(t *testing.T) {
	dir := t.TempDir()
	_, owner := keygen(t, dir, "owner.key")
	strangerKey, _ := keygen(t, dir, "stranger.key")

	spec := "instruction: {type: EmergencyStop}\n" +
		"accounts:\n" +
		"  - {key: " + domain.Pubkey{0xA1}.String() + ", writable: true}\n" +
		"  - {key: " + owner.String() + ", signer: true}\n"
	specPath := filepath.Join(dir, "stop.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte(spec), 0o600))

	txPath := filepath.Join(dir, "stop.cbor")
	_, err := run(t, "tx", "build", "-f", specPath, "-o", txPath)
	require.NoError(t, err)

	_, err = run(t, "tx", "sign", txPath, "-k", strangerKey)
	assert.ErrorIs(t, err, engine.ErrMalformedTransaction)

	out, err := run(t, "tx", "decode", txPath)
	require.NoError(t, err)
	assert.Contains(t, out, "signatures: ")
	assert.NotContains(t, out, "signatures: ok")
}

func TestIxFile_Build(t *testing.T) {
	op := domain.Pubkey{5}
	cases := []struct {
		in   ixFile
		want instruction.Instruction
	}{
		{ixFile{Type: "AddOperator", Key: op.String()}, instruction.AddOperator{Operator: op}},
		{ixFile{Type: "RemoveOperator", Key: op.String()}, instruction.RemoveOperator{Operator: op}},
		{ixFile{Type: "TransferOwnership", Key: op.String()}, instruction.TransferOwnership{NewOwner: op}},
		{ixFile{Type: "UpdateRobotStatus", Status: 3}, instruction.UpdateRobotStatus{Status: 3}},
		{ixFile{Type: "Resume"}, instruction.Resume{}},
		{ixFile{Type: "ExecuteCommand", CommandType: "grab", Parameters: "0a0b"},
			instruction.ExecuteCommand{CommandType: domain.CommandGrab, Parameters: []byte{0x0a, 0x0b}, MerkleProof: []merkle.Hash{}}},
	}
	for _, tc := range cases {
		t.Run(tc.in.Type, func(t *testing.T) {
			got, err := tc.in.build()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ixFile{Type: "Teleport"}.build()
	assert.Error(t, err)
	_, err = ixFile{Type: "AddOperator", Key: "zz"}.build()
	assert.Error(t, err)
}
