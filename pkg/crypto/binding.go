package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

var (
	// ErrPolicyBindingMismatch is returned when a recipient's policy
	// binding does not match the package's policy hash.
	ErrPolicyBindingMismatch = errors.New("policy binding verification failed")
)

// PolicyBinding computes Base64(HMAC-SHA256(KEK, policyHash)).
// It cryptographically ties the policy document to a recipient's key
// material: swapping the policy for another one invalidates every
// recipient's binding even though the policy entry itself is unencrypted.
func PolicyBinding(kek []byte, policyHash string) string {
	mac := hmac.New(sha256.New, kek)
	mac.Write([]byte(policyHash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyPolicyBinding checks a recipient's stored policy binding.
func VerifyPolicyBinding(kek []byte, policyHash, expected string) error {
	got, err := base64.StdEncoding.DecodeString(expected)
	if err != nil {
		return ErrPolicyBindingMismatch
	}
	mac := hmac.New(sha256.New, kek)
	mac.Write([]byte(policyHash))
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrPolicyBindingMismatch
	}
	return nil
}
