package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mercadoleve/mercadoleve/internal/app"
	_ "github.com/mercadoleve/mercadoleve/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
