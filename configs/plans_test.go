package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlansDefault(t *testing.T) {
	catalog, err := LoadPlans("")
	require.NoError(t, err)

	starter, ok := catalog.Get("starter")
	require.True(t, ok)
	assert.Equal(t, 30, starter.MonthlyPosts)

	_, ok = catalog.Get("enterprise")
	assert.False(t, ok)
}

func TestParsePlansRejectsDuplicates(t *testing.T) {
	_, err := ParsePlans([]byte("plans:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = ParsePlans([]byte("plans:\n  - name: nameless\n"))
	assert.Error(t, err)
}
