// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkle tree used to commit
// to the ordered transactions and receipts of a block.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ZeroRoot is the root reported for a tree built from no values. Blocks are
// allowed to carry no transactions so the empty tree needs a stable root.
const ZeroRoot = "0x0000000000000000000000000000000000000000000000000000000000000000"

// Set of error variables for proofs.
var (
	ErrNotFound     = errors.New("unable to find data in tree")
	ErrInvalidProof = errors.New("proof doesn't lead to the root")
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint. The merkle root commits to
// the number of values along with the hash of the root node, so a list
// padded with copies of its last value gets a different root.
type Tree[T Hashable[T]] struct {
	Root         *Node[T]
	Leafs        []*Node[T]
	MerkleRoot   []byte
	values       []T
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	if len(t.MerkleRoot) == 0 {
		return ZeroRoot
	}

	return hexutil.Encode(t.MerkleRoot)
}

// Values returns the values the tree was built from in their original order.
func (t *Tree[T]) Values() []T {
	values := make([]T, len(t.values))
	copy(values, t.values)
	return values
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a value is in the tree. An order of 0 means the proof
// hash comes first, an order of 1 means it comes second.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		var merkleProof [][]byte
		var order []int64

		for parent := node.Parent; parent != nil; parent = parent.Parent {
			if bytes.Equal(parent.Left.Hash, node.Hash) {
				merkleProof = append(merkleProof, parent.Right.Hash)
				order = append(order, 1)
			} else {
				merkleProof = append(merkleProof, parent.Left.Hash)
				order = append(order, 0)
			}
			node = parent
		}

		return merkleProof, order, nil
	}

	return nil, nil, ErrNotFound
}

// VerifyProof checks the proof returned by Proof leads from the value to the
// merkle root of a tree holding count values. The tree must have been built
// with the default hash strategy.
func VerifyProof[T Hashable[T]](value T, count int, proof [][]byte, order []int64, root []byte) error {
	if count <= 0 || len(proof) != len(order) {
		return ErrInvalidProof
	}

	hash, err := value.Hash()
	if err != nil {
		return err
	}

	for i := range proof {
		h := sha256.New()
		switch order[i] {
		case 0:
			h.Write(proof[i])
			h.Write(hash)
		default:
			h.Write(hash)
			h.Write(proof[i])
		}
		hash = h.Sum(nil)
	}

	committed, err := commitCount(sha256.New, count, hash)
	if err != nil {
		return err
	}

	if !bytes.Equal(committed, root) {
		return ErrInvalidProof
	}

	return nil
}

// =============================================================================

// generate constructs the leafs and nodes of the tree from the specified data.
func (t *Tree[T]) generate(values []T) error {
	t.values = values
	if len(values) == 0 {
		return nil
	}

	leafs := make([]*Node[T], 0, len(values)+1)
	for _, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}

		leafs = append(leafs, &Node[T]{
			Hash:  hash,
			Value: value,
			Tree:  t,
		})
	}

	// An odd number of leafs duplicates the last one to balance the tree.
	if len(leafs)%2 == 1 {
		last := leafs[len(leafs)-1]
		leafs = append(leafs, &Node[T]{
			Hash:  last.Hash,
			Value: last.Value,
			Tree:  t,
		})
	}

	root, err := buildIntermediate(leafs, t)
	if err != nil {
		return err
	}

	merkleRoot, err := commitCount(t.hashStrategy, len(values), root.Hash)
	if err != nil {
		return err
	}

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = merkleRoot

	return nil
}

// commitCount hashes the number of values together with the root node hash.
func commitCount(hashStrategy func() hash.Hash, count int, rootHash []byte) ([]byte, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(count))

	h := hashStrategy()
	if _, err := h.Write(append(buf[:], rootHash...)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// =============================================================================

// Node represents a node, root, or leaf in the tree.
type Node[T Hashable[T]] struct {
	Tree   *Tree[T]
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   []byte
	Value  T
}

// buildIntermediate constructs the intermediate and root levels of the tree
// for the given list of nodes and returns the root node.
func buildIntermediate[T Hashable[T]](nl []*Node[T], t *Tree[T]) (*Node[T], error) {
	var nodes []*Node[T]

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		if i+1 == len(nl) {
			right = i
		}

		h := t.hashStrategy()
		chash := append(append([]byte{}, nl[left].Hash...), nl[right].Hash...)
		if _, err := h.Write(chash); err != nil {
			return nil, err
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			Hash:  h.Sum(nil),
			Tree:  t,
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n

		if len(nl) == 2 {
			return &n, nil
		}
	}

	return buildIntermediate(nodes, t)
}
