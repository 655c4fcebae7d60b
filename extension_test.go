package ap2

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExtension(t *testing.T) {
	t.Parallel()

	ext, err := NewExtension(RoleShopper, RoleMerchant)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/google-agentic-commerce/ap2/tree/v0.1", ext.URI)
	assert.Equal(t, "This agent supports AP2 with roles: shopper, merchant", ext.Description)
	assert.True(t, ext.Supports(RoleMerchant))
	assert.False(t, ext.Supports(RolePaymentProcessor))

	raw, err := json.Marshal(ext)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"uri": "https://github.com/google-agentic-commerce/ap2/tree/v0.1",
		"description": "This agent supports AP2 with roles: shopper, merchant",
		"params": {"roles": ["shopper", "merchant"]}
	}`, string(raw))
}

func TestNewExtensionValidation(t *testing.T) {
	t.Parallel()

	_, err := NewExtension()
	assert.True(t, IsErrorType(err, ValidationError))

	_, err = NewExtension(RoleMerchant, Role("auctioneer"))
	var apErr *Error
	require.ErrorAs(t, err, &apErr)
	assert.Equal(t, ValidationError, apErr.Type)
	assert.Equal(t, "roles[1]", *apErr.Param)
}

func TestExtensionCompatible(t *testing.T) {
	t.Parallel()

	merchant, err := NewExtension(RoleMerchant)
	require.NoError(t, err)
	shopper, err := NewExtension(RoleShopper)
	require.NoError(t, err)
	assert.True(t, merchant.Compatible(shopper))

	shopper.URI = "https://github.com/google-agentic-commerce/ap2/tree/v0.2"
	assert.False(t, merchant.Compatible(shopper))
}
