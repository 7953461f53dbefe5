package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	path, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = parseFlags([]string{"--config", "prod.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "prod.yaml", path)

	path, err = parseFlags([]string{"-c", "dev.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "dev.yaml", path)

	_, err = parseFlags([]string{"--port", "80"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"extra"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}
