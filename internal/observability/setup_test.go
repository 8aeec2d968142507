package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WithoutExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), "ledger-test", "debug", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// repeated setup must not panic on duplicate metric registration
	_, err = Setup(context.Background(), "ledger-test", "info", "")
	assert.NoError(t, err)
}
