// Package nameservice reads a folder of key files and provides names for
// the accounts they hold. The name of an account is its key file name.
package nameservice

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/identity"
)

const keyExtension = ".ecdsa"

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[database.AccountID]string
}

// New constructs a name service with the accounts of the key files found
// under root. A root that doesn't exist gives an empty name service.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[database.AccountID]string),
	}

	if root == "" {
		return &ns, nil
	}

	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return &ns, nil
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != keyExtension {
			return nil
		}

		key, err := identity.Load(fileName)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}

		ns.accounts[normalize(key.Account())] = strings.TrimSuffix(filepath.Base(fileName), keyExtension)

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account. An account without
// a name is returned as is.
func (ns *NameService) Lookup(accountID database.AccountID) string {
	name, exists := ns.accounts[normalize(accountID)]
	if !exists {
		return string(accountID)
	}
	return name
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[database.AccountID]string {
	cpy := make(map[database.AccountID]string, len(ns.accounts))
	for accountID, name := range ns.accounts {
		cpy[accountID] = name
	}
	return cpy
}

// normalize lets mixed case hex accounts resolve to the same name.
func normalize(accountID database.AccountID) database.AccountID {
	return database.AccountID(strings.ToLower(string(accountID)))
}
