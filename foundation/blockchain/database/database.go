// Package database defines the blocks, transactions and receipts that make up
// the chain and the behavior required to persist them.
package database

import "errors"

// ErrNotFound is returned by a Store when the requested block doesn't exist.
var ErrNotFound = errors.New("block not found")

// ErrOutOfOrder is returned by a Store when a block isn't the next number.
var ErrOutOfOrder = errors.New("block is out of order")

// Store interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Store interface {
	Save(blockData BlockData) error
	LoadByNumber(num uint64) (BlockData, error)
	LoadByHash(hash string) (BlockData, error)
	ForEach() Iterator
	Truncate(after uint64) error
	Close() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}
