package main

import (
	"testing"

	"letknow-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBuildStorefront(t *testing.T) {
	t.Setenv("SHOP_EU_API_KEY", "sk_live_eu")

	sf, err := buildStorefront("shop-eu", "SHOP_EU_API_KEY", " 10.0.0.0/8, ,192.168.1.0/24,203.0.113.7")

	require.NoError(t, err)
	assert.Equal(t, "shop-eu", sf.ID)
	assert.Equal(t, models.StorefrontStatusActive, sf.Status)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.0/24", "203.0.113.7"}, sf.AllowedIPs)
	assert.NotContains(t, sf.APIKeyHash, "sk_live_eu")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(sf.APIKeyHash), []byte("sk_live_eu")))
}

func TestBuildStorefront_Errors(t *testing.T) {
	t.Setenv("SHOP_EU_API_KEY", "sk_live_eu")
	t.Setenv("EMPTY_KEY", "")

	_, err := buildStorefront("shop-eu", "", "")
	assert.Error(t, err)

	_, err = buildStorefront("shop-eu", "EMPTY_KEY", "")
	assert.Error(t, err)

	_, err = buildStorefront("shop-eu", "SHOP_EU_API_KEY", "10.0.0.0/33")
	assert.Error(t, err)
}
