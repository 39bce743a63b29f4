package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grandmasters-wiki/internal/domain"
)

func TestTargets(t *testing.T) {
	got, err := targets(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, got)

	got, err = targets([]string{"hikaru", "*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, got)

	got, err = targets([]string{"hikaru", "Magnus_Carlsen"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hikaru", "Magnus_Carlsen"}, got)

	_, err = targets([]string{"hikaru", "bad name!"})
	assert.ErrorIs(t, err, domain.ErrInvalidUsername)
}
