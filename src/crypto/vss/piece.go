package vss

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/rondonetworks/rondo/src/crypto"
)

// sharedKey derives a symmetric key from an ECDH exchange between a private
// key and a peer's public key. Both directions of the exchange derive the
// same key, so a piece encrypted by the contributor can be decrypted by its
// addressee and vice versa.
func sharedKey(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.X == nil {
		return nil, fmt.Errorf("nil peer public key")
	}
	x, _ := pub.Curve.ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	if x == nil {
		return nil, fmt.Errorf("ECDH failed")
	}
	return crypto.SHA256(x.Bytes()), nil
}

// EncryptPiece encrypts a share for a peer with AES-GCM under the ECDH key
// shared between priv and peerPub. The nonce is prepended to the ciphertext.
func EncryptPiece(priv *ecdsa.PrivateKey, peerPub *ecdsa.PublicKey, plaintext []byte) ([]byte, error) {
	key, err := sharedKey(priv, peerPub)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptPiece decrypts a piece produced by EncryptPiece. It fails when the
// piece was not addressed to the owner of priv.
func DecryptPiece(priv *ecdsa.PrivateKey, peerPub *ecdsa.PublicKey, ciphertext []byte) ([]byte, error) {
	key, err := sharedKey(priv, peerPub)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("piece too short")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, sealed, nil)
}
