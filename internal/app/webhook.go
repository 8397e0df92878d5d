package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// GitHub delivery headers.
const (
	eventHeader     = "X-GitHub-Event"
	deliveryHeader  = "X-GitHub-Delivery"
	signatureHeader = "X-Hub-Signature-256"
	pingEvent       = "ping"
)

const signaturePrefix = "sha256="

var (
	errMissingSignature = errors.New("missing " + signatureHeader + " header")
	errBadSignature     = errors.New("webhook signature does not match")
)

// Sign returns the X-Hub-Signature-256 value GitHub sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret, header string, body []byte) error {
	if header == "" {
		return errMissingSignature
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return errBadSignature
	}
	if !hmac.Equal([]byte(header), []byte(Sign(secret, body))) {
		return errBadSignature
	}
	return nil
}
