package secure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("YAGOKORO_OPENAI_API_KEY", "sk-test")
	t.Setenv("YAGOKORO_FALKORDB_URL", "falkordb://localhost:6379/test")

	p := NewEnvProvider("")

	t.Run("get", func(t *testing.T) {
		v, ok := p.Get("OPENAI_API_KEY")
		assert.True(t, ok)
		assert.Equal(t, "sk-test", v)

		_, ok = p.Get("NOPE")
		assert.False(t, ok)
	})

	t.Run("get required", func(t *testing.T) {
		_, err := p.GetRequired("NOPE")
		assert.Equal(t, kg.KindValidation, kg.KindOf(err))
		assert.Contains(t, err.Error(), "YAGOKORO_NOPE")
	})

	t.Run("validate", func(t *testing.T) {
		assert.NoError(t, p.Validate("OPENAI_API_KEY", "FALKORDB_URL"))
		err := p.Validate("OPENAI_API_KEY", "MISSING_ONE")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "YAGOKORO_MISSING_ONE")
	})

	t.Run("list", func(t *testing.T) {
		names := p.List()
		assert.Contains(t, names, "OPENAI_API_KEY")
		assert.Contains(t, names, "FALKORDB_URL")
	})

	t.Run("no rotation metadata", func(t *testing.T) {
		assert.False(t, p.NeedsRotation("OPENAI_API_KEY", time.Nanosecond))
	})
}

func TestMemoryProviderRotation(t *testing.T) {
	p := NewMemoryProvider()
	current := time.Now()
	p.now = func() time.Time { return current }

	p.Set("TOKEN", "abc")
	assert.False(t, p.NeedsRotation("TOKEN", time.Hour))

	current = current.Add(2 * time.Hour)
	assert.True(t, p.NeedsRotation("TOKEN", time.Hour))

	assert.False(t, p.NeedsRotation("NEVER_SET", time.Nanosecond))
}
