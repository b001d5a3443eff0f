package proxy

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-fed/httpsig"
)

// Signed headers for requests without and with a body
var (
	getHeaders  = []string{"(request-target)", "host", "date"}
	postHeaders = []string{"(request-target)", "host", "date", "digest", "content-type"}
)

func requestHost(r *http.Request) string {
	if h := r.Header.Get("Host"); h != "" {
		return h
	}
	if r.Host != "" {
		return r.Host
	}
	return r.URL.Host
}

// sign adds a Signature header made with an RSA private key.
// Requests with a body also get a Digest.
func sign(privateKey crypto.PrivateKey, pubKeyID string, r *http.Request) error {
	if _, ok := privateKey.(*rsa.PrivateKey); !ok {
		return errors.New("cannot sign with this private key")
	}
	if r.Header.Get("Date") == "" {
		r.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	// the signer reads host from the header map
	r.Header.Set("Host", requestHost(r))

	headers := getHeaders
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		b, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return fmt.Errorf("reading body to sign: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(b))
		body = b
		headers = postHeaders
	}
	signer, _, err := httpsig.NewSigner([]httpsig.Algorithm{httpsig.RSA_SHA256}, httpsig.DigestSha256, headers, httpsig.Signature, 0)
	if err != nil {
		return err
	}
	return signer.SignRequest(privateKey, pubKeyID, r, body)
}

// keyLoader finds the public key for a key id
type keyLoader interface {
	PublicKey(id string) crypto.PublicKey
}

// verify checks a signed request, returning nil when the signature is good
func verify(keys keyLoader, r *http.Request) error {
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return err
	}
	pubKey := keys.PublicKey(verifier.KeyId())
	if pubKey == nil {
		return fmt.Errorf("no public key to verify request signature")
	}
	return verifier.Verify(pubKey, httpsig.RSA_SHA256)
}

// LoadPrivateKey reads a PEM encoded RSA private key, PKCS#8 or PKCS#1
func LoadPrivateKey(pemBytes []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM data in private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}
