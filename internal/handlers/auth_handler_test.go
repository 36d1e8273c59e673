package handlers

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signMessage(t *testing.T, message string) (address string, signature string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	// wallets report v as 27/28
	sig[64] += 27

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), "0x" + hex.EncodeToString(sig)
}

func TestVerifyPersonalSignature(t *testing.T) {
	message := "FAsset Backend Authentication\nNonce: abc\nTimestamp: 1"
	address, signature := signMessage(t, message)

	assert.True(t, verifyPersonalSignature(common.HexToAddress(address), message, signature))
	assert.False(t, verifyPersonalSignature(common.HexToAddress(address), "different message", signature))

	otherAddress, _ := signMessage(t, message)
	assert.False(t, verifyPersonalSignature(common.HexToAddress(otherAddress), message, signature))

	assert.False(t, verifyPersonalSignature(common.HexToAddress(address), message, "0xdeadbeef"))
}

func TestAuthenticateHandlerIssuesValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandler()

	message := "FAsset Backend Authentication\nNonce: abc\nTimestamp: 1"
	address, signature := signMessage(t, message)

	body, _ := json.Marshal(AuthRequest{
		Address:   address,
		Message:   message,
		Signature: signature,
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.AuthenticateHandler(c)
	require.Equal(t, http.StatusOK, w.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)

	claims, err := ValidateJWTToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, address, claims.Address)
	assert.Equal(t, "fasset-backend", claims.Issuer)
}

func TestAuthenticateHandlerRejectsBadSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandler()

	message := "challenge"
	address, _ := signMessage(t, message)
	_, wrongSignature := signMessage(t, message)

	body, _ := json.Marshal(AuthRequest{
		Address:   address,
		Message:   message,
		Signature: wrongSignature,
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.AuthenticateHandler(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateJWTTokenRejectsGarbage(t *testing.T) {
	_, err := ValidateJWTToken("not-a-token")
	assert.Error(t, err)
}
