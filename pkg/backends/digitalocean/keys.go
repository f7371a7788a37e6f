package digitalocean

import (
	"context"
	"strconv"

	"github.com/digitalocean/godo"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// EnsureKey uploads the public key unless one with the same fingerprint
// already exists, and returns the vendor key ID.
func (b *Backend) EnsureKey(ctx context.Context, key provision.SSHKey) (string, error) {
	existing, err := b.api.KeyByFingerprint(ctx, key.Fingerprint)
	if err == nil {
		return strconv.Itoa(existing.ID), nil
	}
	classified := classify("failed to look up SSH key", err)
	if !provision.IsNotFound(classified) {
		return "", classified
	}

	created, err := b.api.CreateKey(ctx, &godo.KeyCreateRequest{
		Name:      key.Name,
		PublicKey: key.PublicKey,
	})
	if err != nil {
		return "", classify("failed to upload SSH key", err)
	}
	return strconv.Itoa(created.ID), nil
}

// RemoveKey deletes the key by fingerprint. A key already gone on the
// vendor side is not an error.
func (b *Backend) RemoveKey(ctx context.Context, key provision.SSHKey) error {
	if err := b.api.DeleteKeyByFingerprint(ctx, key.Fingerprint); err != nil {
		classified := classify("failed to remove SSH key", err)
		if provision.IsNotFound(classified) {
			return nil
		}
		return classified
	}
	return nil
}
