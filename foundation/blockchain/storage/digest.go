package storage

import (
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"
)

// digestOf calculates a blake2b digest over the state. Keys are visited in
// sorted order and every key and value is length prefixed so two different
// states can't produce the same byte stream.
func digestOf(state map[string][]byte) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var prefix [binary.MaxVarintLen64]byte
	for _, k := range keys {
		v := state[k]

		n := binary.PutUvarint(prefix[:], uint64(len(k)))
		h.Write(prefix[:n])
		h.Write([]byte(k))

		n = binary.PutUvarint(prefix[:], uint64(len(v)))
		h.Write(prefix[:n])
		h.Write(v)
	}

	return hexutil.Encode(h.Sum(nil)), nil
}
