package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var callerAddr = domain.Address("0xAbCd000000000000000000000000000000000001")
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(callerAddr, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, "0xabcd000000000000000000000000000000000001", claims.Address)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	expiresIn := -time.Hour // Expired token

	token, err := jwtService.GenerateAccessToken(callerAddr, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ExtractAddressFromToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(callerAddr, expiresIn)
	require.NoError(t, err)

	addr, err := jwtService.ExtractAddressFromToken(token)
	require.NoError(t, err)
	assert.True(t, addr.Equal(callerAddr))
}

func Test_ExtractAddressFromToken_EmptyAddress(t *testing.T) {
	token, err := jwtService.GenerateAccessToken("", expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ExtractAddressFromToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token carries no address"))
}
