package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedUIDGenerator_ReturnsSameUID(t *testing.T) {
	gen := NewFixedUIDGenerator("test-uow-123")

	// Multiple calls return same uid
	assert.Equal(t, "test-uow-123", gen.Generate())
	assert.Equal(t, "test-uow-123", gen.Generate())
	assert.Equal(t, "test-uow-123", gen.Generate())
}

func TestFixedUIDGenerator_EmptyUIDDefault(t *testing.T) {
	gen := NewFixedUIDGenerator("")

	// Empty uid uses default
	assert.Equal(t, "test-uow-default", gen.Generate())
}

func TestFixedUIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewFixedUIDGenerator("thread-safe-uid")

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				uid := gen.Generate()
				assert.Equal(t, "thread-safe-uid", uid)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
