package merkle

import "fmt"

// Tree - off-ledger построитель дерева: хранит все уровни, чтобы выдавать
// держателям credential-ов пути доказательства. Корень совпадает с ComputeRoot.
type Tree struct {
	layers [][]Hash
}

// NewTree строит дерево по готовым листьям (хэшам credential-ов).
func NewTree(leaves []Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}

	first := make([]Hash, len(leaves))
	copy(first, leaves)

	t := &Tree{layers: [][]Hash{first}}
	level := first
	for len(level) > 1 {
		level = nextLevel(level)
		t.layers = append(t.layers, level)
	}
	return t
}

// Root возвращает корень (нулевой для пустого дерева).
func (t *Tree) Root() Hash {
	if len(t.layers) == 0 {
		return Zero
	}
	return t.layers[len(t.layers)-1][0]
}

// Len: количество листьев.
func (t *Tree) Len() int {
	if len(t.layers) == 0 {
		return 0
	}
	return len(t.layers[0])
}

// Leaf возвращает лист по индексу.
func (t *Tree) Leaf(index int) (Hash, error) {
	if index < 0 || index >= t.Len() {
		return Zero, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, t.Len())
	}
	return t.layers[0][index], nil
}

// Proof собирает путь для листа с индексом index.
// Поднятый без пары узел не дает элемента пути на своем уровне.
func (t *Tree) Proof(index int) ([]Hash, error) {
	if index < 0 || index >= t.Len() {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, t.Len())
	}

	proof := make([]Hash, 0, len(t.layers))
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := index ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		index /= 2
	}
	return proof, nil
}

// IndexOf ищет лист и возвращает его индекс или -1.
func (t *Tree) IndexOf(leaf Hash) int {
	if t.Len() == 0 {
		return -1
	}
	for i, l := range t.layers[0] {
		if l == leaf {
			return i
		}
	}
	return -1
}
