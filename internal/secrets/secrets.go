// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package secrets keeps provider API keys and the admin token out of the
// database and config files. Values of the form keyring://service/key are
// looked up in the OS keyring when they are used.
package secrets

// DefaultService is the keyring service ccgate stores its secrets under.
const DefaultService = "ccgate"

// Store is a named secret backend.
type Store interface {
	Store(service, key, value string) error
	// Retrieve fails with CodeSecretNotFound when the key does not exist.
	Retrieve(service, key string) (string, error)
	// Delete fails with CodeSecretNotFound when the key does not exist.
	Delete(service, key string) error
	List(service string) ([]string, error)
}
