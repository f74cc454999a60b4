package secure

import (
	"context"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// PermissionFor maps an operation and resource onto the capability string
// guarding them, e.g. ("write", "entities") -> "write:entities".
func PermissionFor(operation, resource string) kg.Permission {
	return kg.Permission(operation + ":" + resource)
}

// Authorizer is the RBAC middleware wrapped around every tool handler.
//
// With Enabled false or no key store attached, every request passes; this is
// the single-user local deployment mode. Operations listed in Public bypass
// authentication entirely.
type Authorizer struct {
	Enabled bool
	Public  map[string]bool
	keys    KeyStore
}

// NewAuthorizer creates an enabled authorizer over the key store. A nil
// store yields a pass-through authorizer.
func NewAuthorizer(keys KeyStore, public ...string) *Authorizer {
	pub := make(map[string]bool, len(public))
	for _, op := range public {
		pub[op] = true
	}
	return &Authorizer{Enabled: keys != nil, Public: pub, keys: keys}
}

// Authorize authenticates the secret and checks the permission for
// operation:resource. The returned key is nil when authorization is
// bypassed. Error messages never contain the presented secret.
func (a *Authorizer) Authorize(ctx context.Context, secret, operation, resource string) (*kg.APIKey, error) {
	if a == nil || !a.Enabled || a.keys == nil {
		return nil, nil
	}
	if a.Public[operation] {
		return nil, nil
	}

	key, err := a.keys.Authenticate(ctx, secret)
	if err != nil {
		return nil, err
	}
	perm := PermissionFor(operation, resource)
	if !key.HasPermission(perm) {
		return nil, kg.NewPermissionDenied("missing permission " + string(perm))
	}
	return key, nil
}
