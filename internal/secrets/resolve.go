// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package secrets

import (
	"context"
	"log/slog"
	"strings"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/spf13/viper"
)

const scheme = "keyring://"

// IsRef reports whether value is a keyring:// reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// Ref builds the keyring:// reference for service and key.
func Ref(service, key string) string {
	return scheme + service + "/" + key
}

// ParseRef splits keyring://service/key. The key may contain slashes.
func ParseRef(ref string) (service, key string, err error) {
	rest, ok := strings.CutPrefix(ref, scheme)
	if !ok {
		return "", "", ccgerr.New(ccgerr.CodeSecretInvalidInput, "not a keyring reference")
	}
	service, key, ok = strings.Cut(rest, "/")
	if !ok || service == "" || key == "" {
		return "", "", ccgerr.Errorf(ccgerr.CodeSecretInvalidInput,
			"invalid keyring reference %q: want keyring://service/key", ref)
	}
	return service, key, nil
}

// Resolver turns stored API key values into usable keys. Plain values pass
// through; keyring references are looked up on every call so a rotated key
// applies to the next request.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the secret behind value.
func (r *Resolver) Resolve(_ context.Context, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	service, key, err := ParseRef(value)
	if err != nil {
		return "", err
	}
	secret, err := r.store.Retrieve(service, key)
	if err != nil {
		return "", ccgerr.Wrapf(err, ccgerr.CodeSecretResolveFailure, "resolving keyring reference for %s/%s", service, key)
	}
	return secret, nil
}

// ResolveViper replaces every keyring reference among the values of v with
// its secret. Failures are logged and the reference is left in place so the
// consumer of that value reports the problem.
func ResolveViper(v *viper.Viper, store Store) {
	r := NewResolver(store)
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsRef(val) {
			continue
		}
		resolved, err := r.Resolve(context.Background(), val)
		if err != nil {
			slog.Warn("keyring reference not resolved", "config_key", key, "error", err)
			continue
		}
		v.Set(key, resolved)
	}
}
