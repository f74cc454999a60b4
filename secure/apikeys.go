package secure

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// KeyPrefix marks every issued API key.
const KeyPrefix = "ygk_"

// keyFormat is the accepted secret shape: the prefix plus at least 16
// alphanumerics.
var keyFormat = regexp.MustCompile(`^ygk_[A-Za-z0-9]{16,}$`)

// RoleDefaultPermissions is the permission set a key inherits from its role
// at creation. Admin keys pass every check regardless, see
// kg.APIKey.HasPermission.
var RoleDefaultPermissions = map[kg.UserRole][]kg.Permission{
	kg.RoleReader: {
		kg.PermReadEntities, kg.PermReadRelations,
		kg.PermReadCommunities, kg.PermSearch,
	},
	kg.RoleWriter: {
		kg.PermReadEntities, kg.PermWriteEntities,
		kg.PermReadRelations, kg.PermWriteRelations,
		kg.PermReadCommunities, kg.PermRunDetection,
		kg.PermSearch, kg.PermIngest,
	},
	kg.RoleAdmin: {
		kg.PermAdminBackup, kg.PermAdminKeys,
	},
}

// KeyStore issues and authenticates API keys. The secret is returned exactly
// once at creation; only its hash is retained.
type KeyStore interface {
	// Create issues a key for the role, inheriting the role's default
	// permissions plus any extras. expiresAt nil means the key never expires.
	Create(ctx context.Context, name string, role kg.UserRole, extra []kg.Permission, expiresAt *time.Time) (secret string, key *kg.APIKey, err error)
	// Authenticate resolves a presented secret, updating last-used on
	// success. Missing, malformed, unknown, and expired secrets fail with
	// distinct reasons; the secret itself never appears in the error.
	Authenticate(ctx context.Context, secret string) (*kg.APIKey, error)
	// Revoke deletes the key.
	Revoke(ctx context.Context, id string) error
	// List returns all key metadata ordered by creation time.
	List(ctx context.Context) ([]*kg.APIKey, error)
}

// generateSecret builds a fresh key secret from crypto/rand.
func generateSecret() string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		panic(err)
	}
	out := make([]byte, len(raw))
	for i, b := range raw {
		out[i] = letters[int(b)%len(letters)]
	}
	return KeyPrefix + string(out)
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// MemoryKeyStore is an in-memory KeyStore guarded by a mutex.
type MemoryKeyStore struct {
	mu     sync.Mutex
	byHash map[string]*kg.APIKey
	byID   map[string]string // id -> hash
	now    func() time.Time
}

var _ KeyStore = (*MemoryKeyStore)(nil)

// NewMemoryKeyStore creates an empty key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		byHash: make(map[string]*kg.APIKey),
		byID:   make(map[string]string),
		now:    time.Now,
	}
}

// Create implements KeyStore.
func (s *MemoryKeyStore) Create(_ context.Context, name string, role kg.UserRole, extra []kg.Permission, expiresAt *time.Time) (string, *kg.APIKey, error) {
	if name == "" {
		return "", nil, kg.NewValidation("name", "key name is required")
	}
	if !role.Valid() {
		return "", nil, kg.NewValidation("role", "unknown role "+string(role))
	}

	perms := append([]kg.Permission{}, RoleDefaultPermissions[role]...)
	perms = append(perms, extra...)

	secret := generateSecret()
	key := &kg.APIKey{
		ID:          uuid.NewString(),
		Name:        name,
		Role:        role,
		Permissions: perms,
		CreatedAt:   s.now(),
		ExpiresAt:   expiresAt,
	}

	s.mu.Lock()
	h := hashSecret(secret)
	s.byHash[h] = key
	s.byID[key.ID] = h
	s.mu.Unlock()
	return secret, key, nil
}

// Authenticate implements KeyStore.
func (s *MemoryKeyStore) Authenticate(_ context.Context, secret string) (*kg.APIKey, error) {
	if secret == "" {
		return nil, kg.NewValidation("api_key", "API key is required")
	}
	if !keyFormat.MatchString(secret) {
		return nil, kg.NewValidation("api_key", "API key has an invalid format")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byHash[hashSecret(secret)]
	if !ok {
		return nil, kg.NewPermissionDenied("unknown API key")
	}
	now := s.now()
	if !key.ValidAt(now) {
		return nil, kg.NewPermissionDenied("API key has expired")
	}
	used := now
	key.LastUsedAt = &used

	cp := *key
	return &cp, nil
}

// Revoke implements KeyStore.
func (s *MemoryKeyStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byID[id]
	if !ok {
		return kg.NewNotFound("api key", id)
	}
	delete(s.byHash, h)
	delete(s.byID, id)
	return nil
}

// List implements KeyStore.
func (s *MemoryKeyStore) List(_ context.Context) ([]*kg.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*kg.APIKey, 0, len(s.byHash))
	for _, key := range s.byHash {
		cp := *key
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
