package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5, 0, 255))
	assert.Equal(t, 255, Clamp(300, 0, 255))
	assert.Equal(t, 128, Clamp(128, 0, 255))
	assert.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
	// Swapped bounds behave like ordered ones.
	assert.Equal(t, 10, Clamp(20, 10, 0))
	assert.Equal(t, 0, Clamp(-1, 10, 0))
}
