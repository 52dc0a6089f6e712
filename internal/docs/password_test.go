package docs

import "testing"

func TestLinkPasswordRoundTrip(t *testing.T) {
	encoded, err := hashLinkPassword("s3cret")
	if err != nil {
		t.Fatalf("hashLinkPassword: %v", err)
	}
	ok, err := verifyLinkPassword(encoded, "s3cret")
	if err != nil {
		t.Fatalf("verifyLinkPassword: %v", err)
	}
	if !ok {
		t.Fatal("correct password rejected")
	}

	ok, err = verifyLinkPassword(encoded, "wrong")
	if err != nil {
		t.Fatalf("verifyLinkPassword: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestLinkPasswordHashesDifferPerSalt(t *testing.T) {
	a, err := hashLinkPassword("same")
	if err != nil {
		t.Fatalf("hashLinkPassword: %v", err)
	}
	b, err := hashLinkPassword("same")
	if err != nil {
		t.Fatalf("hashLinkPassword: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of one password share a salt")
	}
}

func TestVerifyLinkPasswordRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "plaintext", "$bcrypt$whatever", "$argon2id$v=19$m=x$salt$hash"} {
		if _, err := verifyLinkPassword(encoded, "pw"); err == nil {
			t.Fatalf("malformed hash %q verified without error", encoded)
		}
	}
}
