package merkle

import (
	"encoding/binary"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLeaves(seed int64, n int) []Hash {
	leaves := make([]Hash, n)
	buf := make([]byte, 16)
	for i := range leaves {
		binary.LittleEndian.PutUint64(buf[:8], uint64(seed))
		binary.LittleEndian.PutUint64(buf[8:], uint64(i))
		leaves[i] = HashLeaf(buf)
	}
	return leaves
}

func TestComputeRoot_EmptyAndSingle(t *testing.T) {
	assert.Equal(t, Zero, ComputeRoot(nil))
	assert.True(t, ComputeRoot([]Hash{}).IsZero())

	x := HashLeaf([]byte("credential_1"))
	assert.Equal(t, x, ComputeRoot([]Hash{x}))
}

func TestHashPair_IsPositional(t *testing.T) {
	a := HashLeaf([]byte("a"))
	b := HashLeaf([]byte("b"))
	assert.NotEqual(t, HashPair(a, b), HashPair(b, a))
}

func TestHashLeaf_Keccak256(t *testing.T) {
	// keccak256("") - известный вектор
	want, err := ParseHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
	require.NoError(t, err)
	assert.Equal(t, want, HashLeaf(nil))
}

func TestComputeRoot_OddNodeIsPromoted(t *testing.T) {
	leaves := makeLeaves(7, 3)

	promoted := ComputeRoot(leaves)
	assert.Equal(t, hashSorted(hashSorted(leaves[0], leaves[1]), leaves[2]), promoted)

	// Реализация с дублированием последнего узла дает другой корень.
	selfPaired := hashSorted(hashSorted(leaves[0], leaves[1]), hashSorted(leaves[2], leaves[2]))
	assert.NotEqual(t, selfPaired, promoted)
}

func TestVerify_FourLeaves(t *testing.T) {
	l1 := HashLeaf([]byte("credential_1"))
	l2 := HashLeaf([]byte("credential_2"))
	l3 := HashLeaf([]byte("credential_3"))
	l4 := HashLeaf([]byte("credential_4"))
	root := ComputeRoot([]Hash{l1, l2, l3, l4})

	assert.True(t, Verify(l1, []Hash{l2, hashSorted(l3, l4)}, root))
	assert.True(t, Verify(l2, []Hash{l1, hashSorted(l3, l4)}, root))
	// Порядок соседей внутри пары не важен.
	assert.True(t, Verify(l4, []Hash{l3, hashSorted(l2, l1)}, root))

	assert.False(t, Verify(l1, []Hash{HashLeaf([]byte("wrong"))}, root))
	assert.False(t, Verify(l1, nil, root))
	assert.False(t, Verify(HashLeaf([]byte("stranger")), []Hash{l2, hashSorted(l3, l4)}, root))
}

func TestVerify_EmptyProofSingleLeaf(t *testing.T) {
	x := HashLeaf([]byte("only"))
	assert.True(t, Verify(x, nil, ComputeRoot([]Hash{x})))
}

func TestTree_ProofMatchesVerify(t *testing.T) {
	for n := 1; n <= 17; n++ {
		leaves := makeLeaves(int64(n), n)
		tree := NewTree(leaves)
		require.Equal(t, ComputeRoot(leaves), tree.Root(), "n=%d", n)
		require.Equal(t, n, tree.Len())

		for i := range leaves {
			proof, err := tree.Proof(i)
			require.NoError(t, err)
			assert.True(t, Verify(leaves[i], proof, tree.Root()), "n=%d i=%d", n, i)
		}
	}
}

func TestTree_ProofOutOfRange(t *testing.T) {
	tree := NewTree(makeLeaves(1, 4))
	_, err := tree.Proof(4)
	assert.Error(t, err)
	_, err = tree.Proof(-1)
	assert.Error(t, err)

	empty := NewTree(nil)
	assert.Equal(t, Zero, empty.Root())
	_, err = empty.Proof(0)
	assert.Error(t, err)
	assert.Equal(t, -1, empty.IndexOf(Zero))
}

func TestTree_IndexOf(t *testing.T) {
	leaves := makeLeaves(3, 5)
	tree := NewTree(leaves)
	assert.Equal(t, 3, tree.IndexOf(leaves[3]))
	assert.Equal(t, -1, tree.IndexOf(HashLeaf([]byte("missing"))))

	leaf, err := tree.Leaf(2)
	require.NoError(t, err)
	assert.Equal(t, leaves[2], leaf)
}

func TestParseHash(t *testing.T) {
	h := HashLeaf([]byte("roundtrip"))
	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHash("abcd")
	assert.Error(t, err)
	_, err = ParseHash("zz")
	assert.Error(t, err)

	var text Hash
	require.NoError(t, text.UnmarshalText([]byte(h.String())))
	assert.Equal(t, h, text)
}

func TestMerkleProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every leaf verifies against the computed root", prop.ForAll(
		func(n int, seed int64) bool {
			leaves := makeLeaves(seed, n)
			root := ComputeRoot(leaves)
			tree := NewTree(leaves)
			for i := range leaves {
				proof, err := tree.Proof(i)
				if err != nil || !Verify(leaves[i], proof, root) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 64),
		gen.Int64(),
	))

	properties.Property("flipping one bit of any proof element breaks verification", prop.ForAll(
		func(n int, seed int64, pick int, bit uint8) bool {
			leaves := makeLeaves(seed, n)
			tree := NewTree(leaves)
			i := pick % n
			proof, err := tree.Proof(i)
			if err != nil {
				return false
			}
			if len(proof) == 0 {
				return true
			}

			tampered := make([]Hash, len(proof))
			copy(tampered, proof)
			el := pick % len(tampered)
			tampered[el][int(bit)%Size] ^= 1 << (bit % 8)
			return !Verify(leaves[i], tampered, tree.Root())
		},
		gen.IntRange(2, 64),
		gen.Int64(),
		gen.IntRange(0, 1<<20),
		gen.UInt8(),
	))

	properties.Property("sorted combine is symmetric", prop.ForAll(
		func(a, b []byte) bool {
			x, y := HashLeaf(a), HashLeaf(b)
			return hashSorted(x, y) == hashSorted(y, x)
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
