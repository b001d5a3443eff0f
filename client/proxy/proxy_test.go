package proxy

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) PublicKey(id string) crypto.PublicKey {
	args := m.Called(id)
	if k, ok := args.Get(0).(crypto.PublicKey); ok {
		return k
	}
	return nil
}

func TestSignAndVerify_Get(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "http://testhost/objects/1?page=2", nil)
	require.NoError(t, sign(privKey, "abc", r))
	assert.Empty(t, r.Header.Get("Digest"))
	sig := r.Header.Get("Signature")
	assert.Contains(t, sig, `keyId="abc"`)
	assert.Contains(t, sig, `headers="(request-target) host date"`)

	loader := &mockLoader{}
	loader.On("PublicKey", "abc").Return(&privKey.PublicKey)
	assert.NoError(t, verify(loader, r))
	loader.AssertExpectations(t)
}

func TestSignAndVerify_Post(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "http://testhost/inbox", strings.NewReader("test body content"))
	r.Header.Set("Content-Type", "text/plain")
	require.NoError(t, sign(privKey, "abc", r))
	assert.Equal(t, "SHA-256=WpOKT6Y79vaZY6LMWxQz1eF4XdJsfC6cWz0wRG0Mt40=", r.Header.Get("Digest"))

	// body is still readable after signing
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, "test body content", string(body))

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	loader := &mockLoader{}
	loader.On("PublicKey", "abc").Return(&other.PublicKey)
	assert.Error(t, verify(loader, r))
}

func TestLoadPrivateKey(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(privKey)
	require.NoError(t, err)
	key, err := LoadPrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))
	require.NoError(t, err)
	assert.True(t, privKey.Equal(key))

	pkcs1 := x509.MarshalPKCS1PrivateKey(privKey)
	key, err = LoadPrivateKey(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: pkcs1}))
	require.NoError(t, err)
	assert.True(t, privKey.Equal(key))

	_, err = LoadPrivateKey([]byte("not a key"))
	assert.Error(t, err)
}

func TestProxy_RelaysSignedFetch(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	const keyID = "https://social.example/user/evan#main-key"

	loader := &mockLoader{}
	loader.On("PublicKey", keyID).Return(&privKey.PublicKey)

	// Simulate a remote server that insists on signed fetches
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := verify(loader, r); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "application/activity+json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"id":"remote-note","type":"Note"}`))
	}))
	defer remote.Close()

	p := New(keyID, privKey, StaticTokens{"good-token"}, nil)
	server := httptest.NewServer(p.Router("/proxy"))
	defer server.Close()

	form := url.Values{"id": {remote.URL + "/notes/1"}}
	req, err := http.NewRequest(http.MethodPost, server.URL+"/proxy", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer good-token")
	req.Header.Set("Accept", "application/activity+json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/activity+json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":"remote-note","type":"Note"}`, string(body))
}

func TestProxy_Rejects(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := New("key", privKey, StaticTokens{"good-token"}, nil)

	post := func(token string, id string) int {
		form := url.Values{"id": {id}}
		r := httptest.NewRequest(http.MethodPost, "/proxy", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		recorder := httptest.NewRecorder()
		p.Router("/proxy").ServeHTTP(recorder, r)
		return recorder.Result().StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post("", "https://example.com/1"))
	assert.Equal(t, http.StatusUnauthorized, post("bad-token", "https://example.com/1"))
	assert.Equal(t, http.StatusBadRequest, post("good-token", ""))
	assert.Equal(t, http.StatusBadRequest, post("good-token", "file:///etc/passwd"))

	r := httptest.NewRequest(http.MethodGet, "/proxy", nil)
	recorder := httptest.NewRecorder()
	p.Router("/proxy").ServeHTTP(recorder, r)
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Result().StatusCode)
}
