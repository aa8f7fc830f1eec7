// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexSuffix names the entry holding the JSON list of keys of a service.
// The OS keyrings cannot enumerate entries, so List reads this index.
const indexSuffix = "::index"

// KeyringStore is a Store on the OS keyring (Keychain, secret-service or
// Credential Manager).
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func checkRef(op, service, key string) error {
	if service == "" {
		return ccgerr.Errorf(ccgerr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return ccgerr.Errorf(ccgerr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkRef("store", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return ccgerr.Wrapf(err, ccgerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return s.updateIndex(service, func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkRef("retrieve", service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", ccgerr.Errorf(ccgerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return "", ccgerr.Wrapf(err, ccgerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkRef("delete", service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return ccgerr.Errorf(ccgerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return ccgerr.Wrapf(err, ccgerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}
	return s.updateIndex(service, func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})
}

// List returns the key names stored under service, in insertion order.
func (s *KeyringStore) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, ccgerr.Wrapf(err, ccgerr.CodeSecretListFailure, "reading key index of %s", service)
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, ccgerr.Wrapf(err, ccgerr.CodeSecretListFailure, "decoding key index of %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) updateIndex(service string, edit func([]string) []string) error {
	keys, err := s.List(service)
	if err != nil {
		return err
	}
	keys = edit(keys)

	indexKey := service + indexSuffix
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return ccgerr.Wrapf(err, ccgerr.CodeSecretListFailure, "encoding key index of %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return ccgerr.Wrapf(err, ccgerr.CodeSecretListFailure, "writing key index of %s", service)
	}
	return nil
}
