package moniepoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event":"payment.received"}`)
	sig := Sign("secret", payload)

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, VerifySignature("secret", payload, sig))
	})

	t.Run("tampered payload", func(t *testing.T) {
		assert.False(t, VerifySignature("secret", []byte(`{"event":"payment.receivee"}`), sig))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, VerifySignature("other", payload, sig))
	})

	t.Run("empty secret never verifies", func(t *testing.T) {
		assert.False(t, VerifySignature("", payload, Sign("", payload)))
	})

	t.Run("non-hex signature", func(t *testing.T) {
		assert.False(t, VerifySignature("secret", payload, "not-hex"))
	})
}
