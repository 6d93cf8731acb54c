package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInTestMode(t *testing.T) {
	// The guard import in this package's tests sets the flag before init.
	assert.True(t, InTestMode())

	t.Setenv("AUTHZ_TEST_MODE", "")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv("AUTHZ_TEST_MODE", "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
