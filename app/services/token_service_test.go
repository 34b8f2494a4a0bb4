package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTokenService creates a token service for testing with symmetric key
func createTestTokenService(ttl time.Duration) (TokenService, error) {
	return NewTokenService(
		ttl,
		"test-issuer",
		"test-audience",
		false, // useRSAKeys
		"",    // privateKeyPEM
		"",    // publicKeyPEM
		"test-secret-key-for-jwt-signing-32-chars",
	)
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		useRSAKeys  bool
		secretKey   string
		expectError bool
	}{
		{
			name:        "valid symmetric key configuration",
			secretKey:   "test-secret-key-for-jwt-signing-32-chars",
			expectError: false,
		},
		{
			name:        "missing secret key",
			secretKey:   "",
			expectError: true,
		},
		{
			name:        "rsa without keys",
			useRSAKeys:  true,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(time.Hour, "iss", "aud", tt.useRSAKeys, "", "", tt.secretKey)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestGenerateOperatorToken(t *testing.T) {
	service, err := createTestTokenService(15 * time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name        string
		operatorID  string
		role        string
		expectError bool
	}{
		{name: "admin", operatorID: "op-1", role: RoleAdmin},
		{name: "viewer", operatorID: "op-2", role: RoleViewer},
		{name: "unknown role", operatorID: "op-3", role: "root", expectError: true},
		{name: "missing operator", operatorID: "", role: RoleOperator, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := service.GenerateOperatorToken(tt.operatorID, tt.role)
			if tt.expectError {
				assert.Error(t, err)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, token, "eyJ")

			claims, err := service.ValidateOperatorToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.operatorID, claims.OperatorID)
			assert.Equal(t, tt.role, claims.Role)
			assert.NotEmpty(t, claims.TokenID)
			assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
		})
	}
}

func TestValidateOperatorToken(t *testing.T) {
	service, err := createTestTokenService(15 * time.Minute)
	require.NoError(t, err)

	other, err := NewTokenService(15*time.Minute, "test-issuer", "other-audience", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)
	foreignToken, err := other.GenerateOperatorToken("op-1", RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "invalid token format", token: "invalid.token.format"},
		{name: "malformed token", token: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
		{name: "wrong audience", token: foreignToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateOperatorToken(tt.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.Nil(t, claims)
		})
	}
}

func TestTokenExpiration(t *testing.T) {
	service, err := createTestTokenService(-time.Minute)
	require.NoError(t, err)

	token, err := service.GenerateOperatorToken("op-1", RoleOperator)
	require.NoError(t, err)

	claims, err := service.ValidateOperatorToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Nil(t, claims)
}

func TestOperatorClaimsHasRole(t *testing.T) {
	admin := &OperatorClaims{Role: RoleAdmin}
	viewer := &OperatorClaims{Role: RoleViewer}

	assert.True(t, admin.HasRole(RoleOperator))
	assert.True(t, admin.HasRole(RoleViewer))
	assert.False(t, viewer.HasRole(RoleOperator))
	assert.True(t, viewer.HasRole(RoleViewer))
	assert.False(t, admin.HasRole("root"))
}
