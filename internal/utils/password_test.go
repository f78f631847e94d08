package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secreto1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "secreto1", hash)
	assert.True(t, VerifyPassword(hash, "secreto1"))
	assert.False(t, VerifyPassword(hash, "otro"))
	assert.Equal(t, bcrypt.MinCost, hashCost(hash))
}

func TestHashPasswordOutOfRangeCost(t *testing.T) {
	hash, err := HashPassword("x", 1)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, hashCost(hash))
}

func TestHashPasswordLongInput(t *testing.T) {
	long := strings.Repeat("a", 100)
	hash, err := HashPassword(long, bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, long))
	assert.True(t, VerifyPassword(hash, long[:72]))
}

func TestHashCostNotBcrypt(t *testing.T) {
	assert.Zero(t, hashCost("plain"))
}

func hashCost(hash string) int {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0
	}
	return c
}
