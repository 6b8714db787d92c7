package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatXP(t *testing.T) {
	assert.Equal(t, "0 XP", FormatXP(0))
	assert.Equal(t, "150 XP", FormatXP(150))
	assert.Equal(t, "12,345 XP", FormatXP(12345))
	assert.Equal(t, "1,000,000 XP", FormatXP(1000000))
}
