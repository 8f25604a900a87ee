package binkp

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// cramPrefix is the OPT token prefix the answerer advertises and the
// M_PWD prefix the originator replies with, per spec §4.2/§4.3.
const cramPrefix = "CRAM-MD5-"

// generateCRAMChallenge produces a fresh random nonce, hex-encoded, for the
// answerer to embed in `M_NUL OPT CRAM-MD5-<nonce>`.
func generateCRAMChallenge() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", NewError(ErrLocalIO, "generate CRAM-MD5 challenge: "+err.Error())
	}
	return hex.EncodeToString(buf), nil
}

// cramResponse computes the M_PWD argument an originator sends in reply to
// a CRAM-MD5 challenge: HMAC-MD5 keyed by the shared password, over the
// hex-decoded nonce bytes (spec §8 testable property 4 and scenario 3 both
// give this exact worked example, which resolves the ambiguity §9(b)
// otherwise leaves open).
func cramResponse(password, challengeHex string) (string, error) {
	nonce, err := hex.DecodeString(challengeHex)
	if err != nil {
		return "", NewError(ErrAuthFailed, "malformed CRAM-MD5 challenge: "+err.Error())
	}
	mac := hmac.New(md5.New, []byte(password))
	mac.Write(nonce)
	return cramPrefix + hex.EncodeToString(mac.Sum(nil)), nil
}

// verifyCRAMResponse checks an originator's M_PWD argument against the
// challenge the answerer issued, using the same hex-decoded-nonce
// convention as cramResponse.
func verifyCRAMResponse(password, challengeHex, response string) bool {
	expected, err := cramResponse(password, challengeHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(response)) == 1
}

// verifyPlaintext does a byte-exact, constant-time comparison of a
// plaintext M_PWD argument against the configured shared secret.
func verifyPlaintext(password, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(password), []byte(candidate)) == 1
}

// cramChallengeToken renders the OPT token form of a challenge, e.g.
// "CRAM-MD5-deadbeef", for embedding in an M_NUL OPT argument.
func cramChallengeToken(challengeHex string) string {
	return cramPrefix + challengeHex
}

// extractCRAMChallenge scans an M_NUL OPT argument's space-separated
// tokens for a CRAM-MD5 challenge and returns its hex nonce.
func extractCRAMChallenge(optArgs string) (challengeHex string, found bool) {
	for _, tok := range strings.Fields(optArgs) {
		if strings.HasPrefix(tok, cramPrefix) {
			return strings.TrimPrefix(tok, cramPrefix), true
		}
	}
	return "", false
}

// isCRAMResponse reports whether an M_PWD argument is a CRAM-MD5 response
// rather than a plaintext password.
func isCRAMResponse(pwdArg string) bool {
	return strings.HasPrefix(pwdArg, cramPrefix)
}

// authFailure is a small helper so both roles raise the same error shape.
func authFailure(format string, args ...interface{}) *Error {
	return NewError(ErrAuthFailed, fmt.Sprintf(format, args...))
}
