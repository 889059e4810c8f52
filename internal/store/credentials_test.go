package store

import "testing"

func TestNewCredentialBox_RejectsWrongKeyLength(t *testing.T) {
	if _, err := NewCredentialBox([]byte("too-short")); err == nil {
		t.Error("NewCredentialBox(short key) = nil error, want error")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	box, err := NewCredentialBox(make([]byte, 32))
	if err != nil {
		t.Fatalf("NewCredentialBox: %v", err)
	}

	sealed, err := box.Seal("super-secret-token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "super-secret-token" {
		t.Error("Seal returned plaintext unchanged")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "super-secret-token" {
		t.Errorf("Open() = %q, want %q", opened, "super-secret-token")
	}
}

func TestSeal_ProducesDistinctCiphertextPerCall(t *testing.T) {
	box, err := NewCredentialBox(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}

	a, err := box.Seal("token")
	if err != nil {
		t.Fatal(err)
	}
	b, err := box.Seal("token")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("Seal produced identical ciphertext for two calls, nonce reuse suspected")
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	box1, err := NewCredentialBox(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	key2 := make([]byte, 32)
	key2[0] = 1
	box2, err := NewCredentialBox(key2)
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := box1.Seal("token")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := box2.Open(sealed); err == nil {
		t.Error("Open with wrong key = nil error, want error")
	}
}

func TestOpen_MalformedInputFails(t *testing.T) {
	box, err := NewCredentialBox(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := box.Open("not-valid-base64!!!"); err == nil {
		t.Error("Open(malformed) = nil error, want error")
	}
}
