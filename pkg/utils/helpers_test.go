package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampInt(t *testing.T) {
	assert.Equal(t, 1, ClampInt(-3, 1, 24))
	assert.Equal(t, 24, ClampInt(48, 1, 24))
	assert.Equal(t, 6, ClampInt(6, 1, 24))
}

func TestLerp(t *testing.T) {
	assert.Equal(t, 51.0, Lerp(51, 100, 0))
	assert.Equal(t, 100.0, Lerp(51, 100, 1))
	assert.Equal(t, 75.0, Lerp(50, 100, 0.5))
}
