package keys

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rondonetworks/rondo/src/crypto"
)

func TestSignatureEncoding(t *testing.T) {
	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	data := crypto.SHA256([]byte("consensus"))

	r, s, err := Sign(key, data)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	encoded := EncodeSignature(r, s)

	dr, ds, err := DecodeSignature(encoded)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if r.Cmp(dr) != 0 || s.Cmp(ds) != 0 {
		t.Fatalf("decoded signature does not match: %s", encoded)
	}

	if !Verify(&key.PublicKey, data, dr, ds) {
		t.Fatal("signature should verify")
	}
	if Verify(&key.PublicKey, crypto.SHA256([]byte("other")), dr, ds) {
		t.Fatal("signature should not verify other data")
	}
}

func TestPrivateKeyRoundtrip(t *testing.T) {
	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	parsed, err := ParsePrivateKey(DumpPrivateKey(key))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if key.D.Cmp(parsed.D) != 0 {
		t.Fatal("parsed key does not match")
	}
	if !reflect.DeepEqual(FromPublicKey(&key.PublicKey), FromPublicKey(&parsed.PublicKey)) {
		t.Fatal("parsed public key does not match")
	}
}

func TestSimpleKeyfile(t *testing.T) {
	dir, err := ioutil.TempDir("", "rondo")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	keyfile := filepath.Join(dir, "priv_key")

	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	simpleKeyfile := NewSimpleKeyfile(keyfile)

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	read, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if key.D.Cmp(read.D) != 0 {
		t.Fatal("read key does not match")
	}

	// permissive file modes are refused
	if err := os.Chmod(keyfile, 0644); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := simpleKeyfile.ReadKey(); err == nil {
		t.Fatal("keyfile readable by group/others should be refused")
	}
}
