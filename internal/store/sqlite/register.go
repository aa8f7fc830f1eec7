// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ccgate-dev/ccgate/internal/store"
)

// DBFileName is the gateway database file inside the data directory.
const DBFileName = "ccgate.db"

func init() {
	store.RegisterBackend("sqlite", newGatewayStore)
}

func newGatewayStore(dataPath string) (store.GatewayStore, error) {
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", dataPath, err)
	}
	gs, err := NewGatewayStore(filepath.Join(dataPath, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("creating gateway store: %w", err)
	}
	return gs, nil
}
