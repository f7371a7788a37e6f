package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// EnsureKey imports the public key into the home region unless a key
// pair with the same name already exists.
func (b *Backend) EnsureKey(ctx context.Context, key provision.SSHKey) (string, error) {
	return b.ensureKeyIn(ctx, b.pool.get(b.region), key)
}

func (b *Backend) ensureKeyIn(ctx context.Context, client ec2API, key provision.SSHKey) (string, error) {
	out, err := client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		KeyNames: []string{key.Name},
	})
	if err == nil && len(out.KeyPairs) > 0 {
		return awssdk.ToString(out.KeyPairs[0].KeyPairId), nil
	}
	if err != nil {
		classified := classify("failed to look up key pair", err)
		if !provision.IsNotFound(classified) {
			return "", classified
		}
	}

	imported, err := client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           awssdk.String(key.Name),
		PublicKeyMaterial: []byte(key.PublicKey),
	})
	if err != nil {
		return "", classify("failed to import key pair", err)
	}
	return awssdk.ToString(imported.KeyPairId), nil
}

// RemoveKey deletes the key pair by name. A missing key pair is not an
// error; EC2's DeleteKeyPair is already idempotent.
func (b *Backend) RemoveKey(ctx context.Context, key provision.SSHKey) error {
	_, err := b.pool.get(b.region).DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{
		KeyName: awssdk.String(key.Name),
	})
	if err != nil {
		classified := classify("failed to delete key pair", err)
		if provision.IsNotFound(classified) {
			return nil
		}
		return classified
	}
	return nil
}
