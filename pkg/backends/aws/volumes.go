package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// CreateVolume requests a new EBS volume. The spec's region carries the
// availability zone; a bare region gets its first zone.
func (b *Backend) CreateVolume(ctx context.Context, spec provision.VolumeSpec) (*provision.CreateResult, error) {
	zone := spec.Region
	region := zoneRegion(zone)
	if zone == region {
		zone = region + "a"
	}

	input := &ec2.CreateVolumeInput{
		AvailabilityZone: awssdk.String(zone),
		Size:             awssdk.Int32(int32(spec.SizeGiB)),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeVolume,
			Tags: []types.Tag{
				{Key: awssdk.String("Name"), Value: awssdk.String(spec.Name)},
			},
		}},
	}
	if spec.Type != "" {
		input.VolumeType = types.VolumeType(spec.Type)
	}

	out, err := b.pool.get(region).CreateVolume(ctx, input)
	if err != nil {
		return nil, classify("failed to create volume", err)
	}
	id := awssdk.ToString(out.VolumeId)
	return &provision.CreateResult{
		BackendID: id,
		ActionID:  actionHandle("volume", region, id, "available"),
	}, nil
}

// DeleteVolume removes the volume.
func (b *Backend) DeleteVolume(ctx context.Context, backendID string) error {
	region, _, err := b.locateVolume(ctx, backendID)
	if err != nil {
		return err
	}
	_, err = b.pool.get(region).DeleteVolume(ctx, &ec2.DeleteVolumeInput{
		VolumeId: awssdk.String(backendID),
	})
	if err != nil {
		return classify("failed to delete volume", err)
	}
	return nil
}

// AttachVolume attaches the volume to an instance under a device name.
func (b *Backend) AttachVolume(ctx context.Context, machineID, volumeID, device string) error {
	region, _, err := b.locateVolume(ctx, volumeID)
	if err != nil {
		return err
	}
	_, err = b.pool.get(region).AttachVolume(ctx, &ec2.AttachVolumeInput{
		InstanceId: awssdk.String(machineID),
		VolumeId:   awssdk.String(volumeID),
		Device:     awssdk.String(device),
	})
	if err != nil {
		return classify("failed to attach volume", err)
	}
	return nil
}

// DetachVolume detaches the volume from whatever instance holds it.
func (b *Backend) DetachVolume(ctx context.Context, backendID string) error {
	region, _, err := b.locateVolume(ctx, backendID)
	if err != nil {
		return err
	}
	_, err = b.pool.get(region).DetachVolume(ctx, &ec2.DetachVolumeInput{
		VolumeId: awssdk.String(backendID),
	})
	if err != nil {
		return classify("failed to detach volume", err)
	}
	return nil
}

// GetVolume fetches the volume's canonical representation.
func (b *Backend) GetVolume(ctx context.Context, backendID string) (*provision.RemoteResource, error) {
	region, volume, err := b.locateVolume(ctx, backendID)
	if err != nil {
		return nil, err
	}
	remote := toRemoteVolume(region, volume)
	return &remote, nil
}

// zoneRegion strips the zone letter off an availability zone. Region
// identifiers end in a digit, zones add a trailing letter.
func zoneRegion(zone string) string {
	if zone == "" {
		return zone
	}
	last := zone[len(zone)-1]
	if last >= 'a' && last <= 'z' {
		return zone[:len(zone)-1]
	}
	return zone
}
