package provision

import (
	"crypto/md5"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SSHKey is an SSH public key tracked by the platform and pushed to
// vendors that install keys at provision time.
type SSHKey struct {
	// Name is the key name as shown on the vendor side.
	Name string `json:"name"`

	// PublicKey is the authorized_keys formatted public key.
	PublicKey string `json:"public_key"`

	// Fingerprint is the MD5 fingerprint in colon-hex form, computed from
	// PublicKey when empty.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// NewSSHKey parses the public key material and fills in the fingerprint.
func NewSSHKey(name, publicKey string) (*SSHKey, error) {
	fp, err := Fingerprint(publicKey)
	if err != nil {
		return nil, err
	}
	return &SSHKey{Name: name, PublicKey: publicKey, Fingerprint: fp}, nil
}

// Fingerprint computes the MD5 colon-hex fingerprint of an
// authorized_keys formatted public key. This is the format DigitalOcean
// and EC2 use to identify uploaded keys.
func Fingerprint(publicKey string) (string, error) {
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", NewPermanentError("invalid SSH public key", err).WithCode(ErrCodeValidation)
	}
	sum := md5.Sum(key.Marshal())
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":"), nil
}
