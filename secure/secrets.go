package secure

import (
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// DefaultEnvPrefix namespaces the environment variables the engine reads.
const DefaultEnvPrefix = "YAGOKORO_"

// SecretProvider resolves deployment secrets by logical name. Names are
// upper-snake, e.g. "OPENAI_API_KEY"; providers decide how the name maps to
// their backing store.
type SecretProvider interface {
	// Get returns the secret value and whether it exists.
	Get(name string) (string, bool)
	// GetRequired returns the secret or a validation error naming it.
	GetRequired(name string) (string, error)
	// Validate checks that every listed secret resolves to a non-empty value.
	Validate(required ...string) error
	// List returns the names of the secrets the provider currently holds.
	List() []string
	// NeedsRotation reports whether the secret's recorded rotation time is
	// older than maxAge. Providers without rotation records return false.
	NeedsRotation(name string, maxAge time.Duration) bool
}

// Mask redacts a secret for display: short values vanish entirely, longer
// ones keep a recognisable head and tail.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-2:]
}

// EnvProvider reads secrets from prefixed environment variables.
type EnvProvider struct {
	prefix string
}

var _ SecretProvider = (*EnvProvider)(nil)

// NewEnvProvider creates a provider over prefix+NAME variables. An empty
// prefix falls back to DefaultEnvPrefix.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{prefix: prefix}
}

// Get implements SecretProvider.
func (p *EnvProvider) Get(name string) (string, bool) {
	v, ok := os.LookupEnv(p.prefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// GetRequired implements SecretProvider.
func (p *EnvProvider) GetRequired(name string) (string, error) {
	v, ok := p.Get(name)
	if !ok {
		return "", kg.NewValidation(name, "required secret "+p.prefix+name+" is not set")
	}
	return v, nil
}

// Validate implements SecretProvider.
func (p *EnvProvider) Validate(required ...string) error {
	var missing []string
	for _, name := range required {
		if _, ok := p.Get(name); !ok {
			missing = append(missing, p.prefix+name)
		}
	}
	if len(missing) > 0 {
		return kg.NewValidation("secrets", "missing: "+strings.Join(missing, ", "))
	}
	return nil
}

// List implements SecretProvider, returning the unprefixed names.
func (p *EnvProvider) List() []string {
	var names []string
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, p.prefix) {
			names = append(names, strings.TrimPrefix(key, p.prefix))
		}
	}
	sort.Strings(names)
	return names
}

// NeedsRotation implements SecretProvider. The environment carries no
// rotation metadata, so this always reports false.
func (p *EnvProvider) NeedsRotation(string, time.Duration) bool { return false }

// MemoryProvider is an in-memory SecretProvider used by tests and as the
// write-through layer for rotation tracking.
type MemoryProvider struct {
	mu      sync.RWMutex
	values  map[string]string
	rotated map[string]time.Time
	now     func() time.Time
}

var _ SecretProvider = (*MemoryProvider)(nil)

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		values:  make(map[string]string),
		rotated: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Set stores a secret and records the rotation time.
func (p *MemoryProvider) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
	p.rotated[name] = p.now()
}

// Get implements SecretProvider.
func (p *MemoryProvider) Get(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[name]
	return v, ok && v != ""
}

// GetRequired implements SecretProvider.
func (p *MemoryProvider) GetRequired(name string) (string, error) {
	v, ok := p.Get(name)
	if !ok {
		return "", kg.NewValidation(name, "required secret "+name+" is not set")
	}
	return v, nil
}

// Validate implements SecretProvider.
func (p *MemoryProvider) Validate(required ...string) error {
	var missing []string
	for _, name := range required {
		if _, ok := p.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return kg.NewValidation("secrets", "missing: "+strings.Join(missing, ", "))
	}
	return nil
}

// List implements SecretProvider.
func (p *MemoryProvider) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.values))
	for name := range p.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NeedsRotation implements SecretProvider.
func (p *MemoryProvider) NeedsRotation(name string, maxAge time.Duration) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	at, ok := p.rotated[name]
	if !ok {
		return false
	}
	return p.now().Sub(at) > maxAge
}
