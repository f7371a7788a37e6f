// Package aws adapts Amazon EC2 to the provisioning backend contract.
// EC2 has no first-class action objects, so lifecycle calls return
// target-state handles ("instance:<region>:<id>:<state>") and GetAction
// settles them by describing the object until it reaches the target.
package aws

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Kind is the provider kind this backend registers under.
const Kind = "aws"

const defaultRegion = "us-east-1"

// regionClients hands out an EC2 client per region.
type regionClients interface {
	get(region string) ec2API
}

// Backend implements machine and volume lifecycles against EC2.
type Backend struct {
	settings provision.ServiceSettings
	region   string
	pool     regionClients
}

var (
	_ provision.MachineBackend = (*Backend)(nil)
	_ provision.VolumeBackend  = (*Backend)(nil)
	_ provision.KeyBackend     = (*Backend)(nil)
	_ provision.ResourcePinger = (*Backend)(nil)
)

// Factory builds an AWS backend from service settings. Username and
// Password carry the access key ID and secret access key.
func Factory(ctx context.Context, settings provision.ServiceSettings) (provision.Backend, error) {
	if settings.Username == "" || settings.Password == "" {
		return nil, provision.NewPermanentError("aws service requires an access key id and secret", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	region := settings.Option("region", defaultRegion)
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.Username, settings.Password, "")),
	)
	if err != nil {
		return nil, provision.NewPermanentError("failed to build aws configuration", err).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	return New(settings, newClientPool(cfg)), nil
}

// New creates a backend over a client pool.
func New(settings provision.ServiceSettings, pool regionClients) *Backend {
	return &Backend{
		settings: settings,
		region:   settings.Option("region", defaultRegion),
		pool:     pool,
	}
}

// Kind returns the provider kind.
func (b *Backend) Kind() string { return Kind }

// Ping checks the credentials against the region listing endpoint.
func (b *Backend) Ping(ctx context.Context) error {
	_, err := b.pool.get(b.region).DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return classify("aws ping failed", err)
	}
	return nil
}

// PullProperties returns the static region catalog plus the instance
// type and image catalogs of the home region. Image names can be
// narrowed with the images_regex service option.
func (b *Backend) PullProperties(ctx context.Context) (*provision.Properties, error) {
	props := &provision.Properties{Regions: regionCatalog}
	client := b.pool.get(b.region)

	var nextToken *string
	for {
		out, err := client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
			MaxResults: awssdk.Int32(100),
			NextToken:  nextToken,
		})
		if err != nil {
			return nil, classify("failed to list instance types", err)
		}
		for _, info := range out.InstanceTypes {
			size := provision.Size{
				BackendID: string(info.InstanceType),
				Name:      string(info.InstanceType),
				Regions:   regionIDs(),
			}
			if info.VCpuInfo != nil && info.VCpuInfo.DefaultVCpus != nil {
				size.Cores = int(*info.VCpuInfo.DefaultVCpus)
			}
			if info.MemoryInfo != nil && info.MemoryInfo.SizeInMiB != nil {
				size.RAM = int(*info.MemoryInfo.SizeInMiB)
			}
			props.Sizes = append(props.Sizes, size)
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	images, err := b.pullImages(ctx, client)
	if err != nil {
		return nil, err
	}
	props.Images = images
	return props, nil
}

func (b *Backend) pullImages(ctx context.Context, client ec2API) ([]provision.Image, error) {
	var nameRe *regexp.Regexp
	if pattern := b.settings.Option("images_regex", ""); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, provision.NewPermanentError("invalid images_regex option", err).
				WithCode(provision.ErrCodeValidation).
				WithProvider(Kind)
		}
		nameRe = re
	}
	owner := b.settings.Option("images_owner", "amazon")

	var images []provision.Image
	var nextToken *string
	for {
		out, err := client.DescribeImages(ctx, &ec2.DescribeImagesInput{
			Owners:    []string{owner},
			NextToken: nextToken,
			Filters: []types.Filter{
				{Name: awssdk.String("state"), Values: []string{"available"}},
				{Name: awssdk.String("image-type"), Values: []string{"machine"}},
			},
		})
		if err != nil {
			return nil, classify("failed to list images", err)
		}
		for _, image := range out.Images {
			name := awssdk.ToString(image.Name)
			if name == "" || (nameRe != nil && !nameRe.MatchString(name)) {
				continue
			}
			images = append(images, provision.Image{
				BackendID: awssdk.ToString(image.ImageId),
				Name:      name,
				Type:      string(image.ImageType),
				Regions:   []string{b.region},
			})
		}
		if out.NextToken == nil {
			return images, nil
		}
		nextToken = out.NextToken
	}
}

// PullResources fetches instances and volumes from the scanned regions.
func (b *Backend) PullResources(ctx context.Context) ([]provision.RemoteResource, error) {
	var out []provision.RemoteResource
	for _, region := range b.scanRegions() {
		client := b.pool.get(region)

		instances, err := b.listInstances(ctx, client)
		if err != nil {
			return nil, err
		}
		for i := range instances {
			out = append(out, toRemoteInstance(region, &instances[i]))
		}

		volumes, err := b.listVolumes(ctx, client)
		if err != nil {
			return nil, err
		}
		for i := range volumes {
			out = append(out, toRemoteVolume(region, &volumes[i]))
		}
	}
	return out, nil
}

// scanRegions returns the regions sync and import walk. Defaults to the
// home region; the regions service option widens it.
func (b *Backend) scanRegions() []string {
	raw := b.settings.Option("regions", "")
	if raw == "" {
		return []string{b.region}
	}
	if raw == "all" {
		return regionIDs()
	}
	var regions []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			regions = append(regions, r)
		}
	}
	return regions
}

func (b *Backend) listInstances(ctx context.Context, client ec2API) ([]types.Instance, error) {
	var instances []types.Instance
	var nextToken *string
	for {
		out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		if err != nil {
			return nil, classify("failed to list instances", err)
		}
		for _, reservation := range out.Reservations {
			instances = append(instances, reservation.Instances...)
		}
		if out.NextToken == nil {
			return instances, nil
		}
		nextToken = out.NextToken
	}
}

func (b *Backend) listVolumes(ctx context.Context, client ec2API) ([]types.Volume, error) {
	var volumes []types.Volume
	var nextToken *string
	for {
		out, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{NextToken: nextToken})
		if err != nil {
			return nil, classify("failed to list volumes", err)
		}
		volumes = append(volumes, out.Volumes...)
		if out.NextToken == nil {
			return volumes, nil
		}
		nextToken = out.NextToken
	}
}

// locateInstance finds an instance by ID, trying the home region first
// and then the rest of the catalog.
func (b *Backend) locateInstance(ctx context.Context, instanceID string) (string, *types.Instance, error) {
	regions := append([]string{b.region}, regionIDs()...)
	seen := make(map[string]bool, len(regions))
	for _, region := range regions {
		if seen[region] {
			continue
		}
		seen[region] = true

		out, err := b.pool.get(region).DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			classified := classify("failed to describe instance", err)
			if provision.IsNotFound(classified) {
				continue
			}
			return "", nil, classified
		}
		for _, reservation := range out.Reservations {
			for i := range reservation.Instances {
				return region, &reservation.Instances[i], nil
			}
		}
	}
	return "", nil, provision.NewNotFoundError("instance not found in any region", nil).
		WithProvider(Kind).
		WithDetail("instance", instanceID)
}

// locateVolume finds a volume by ID across the region catalog.
func (b *Backend) locateVolume(ctx context.Context, volumeID string) (string, *types.Volume, error) {
	regions := append([]string{b.region}, regionIDs()...)
	seen := make(map[string]bool, len(regions))
	for _, region := range regions {
		if seen[region] {
			continue
		}
		seen[region] = true

		out, err := b.pool.get(region).DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
			VolumeIds: []string{volumeID},
		})
		if err != nil {
			classified := classify("failed to describe volume", err)
			if provision.IsNotFound(classified) {
				continue
			}
			return "", nil, classified
		}
		if len(out.Volumes) > 0 {
			return region, &out.Volumes[0], nil
		}
	}
	return "", nil, provision.NewNotFoundError("volume not found in any region", nil).
		WithProvider(Kind).
		WithDetail("volume", volumeID)
}

// instanceStates maps the EC2 instance state to the platform lifecycle
// and runtime states.
func instanceStates(state types.InstanceStateName) (provision.State, string) {
	switch state {
	case types.InstanceStateNameRunning:
		return provision.StateOnline, "online"
	case types.InstanceStateNamePending:
		return provision.StateProvisioning, "provisioning"
	case types.InstanceStateNameStopping:
		return provision.StateStopping, "stopping"
	case types.InstanceStateNameStopped, types.InstanceStateNameTerminated:
		return provision.StateOffline, string(state)
	default:
		return provision.StateErred, string(state)
	}
}

// volumeStates maps the EC2 volume state to the platform lifecycle and
// runtime states.
func volumeStates(state types.VolumeState) (provision.State, string) {
	switch state {
	case types.VolumeStateAvailable, types.VolumeStateInUse:
		return provision.StateOnline, string(state)
	case types.VolumeStateCreating:
		return provision.StateProvisioning, "provisioning"
	case types.VolumeStateDeleting:
		return provision.StateDeleting, "deleting"
	default:
		return provision.StateErred, string(state)
	}
}

func toRemoteInstance(region string, instance *types.Instance) provision.RemoteResource {
	remote := provision.RemoteResource{
		BackendID:  awssdk.ToString(instance.InstanceId),
		Kind:       provision.KindMachine,
		Region:     region,
		FlavorName: string(instance.InstanceType),
		ExternalIP: awssdk.ToString(instance.PublicIpAddress),
		InternalIP: awssdk.ToString(instance.PrivateIpAddress),
	}
	if instance.State != nil {
		remote.State, remote.RuntimeState = instanceStates(instance.State.Name)
	}
	for _, tag := range instance.Tags {
		if awssdk.ToString(tag.Key) == "Name" {
			remote.Name = awssdk.ToString(tag.Value)
		}
	}
	if remote.Name == "" {
		remote.Name = remote.BackendID
	}
	if instance.LaunchTime != nil {
		remote.CreatedAt = *instance.LaunchTime
	}
	return remote
}

func toRemoteVolume(region string, volume *types.Volume) provision.RemoteResource {
	remote := provision.RemoteResource{
		BackendID: awssdk.ToString(volume.VolumeId),
		Kind:      provision.KindVolume,
		Region:    region,
		Disk:      int(awssdk.ToInt32(volume.Size)) * 1024,
	}
	remote.State, remote.RuntimeState = volumeStates(volume.State)
	for _, tag := range volume.Tags {
		if awssdk.ToString(tag.Key) == "Name" {
			remote.Name = awssdk.ToString(tag.Value)
		}
	}
	if remote.Name == "" {
		remote.Name = remote.BackendID
	}
	if volume.CreateTime != nil {
		remote.CreatedAt = *volume.CreateTime
	}
	return remote
}

// actionHandle encodes a target-state poll: kind, region, object ID and
// the state that settles the action.
func actionHandle(kind, region, id, target string) string {
	return fmt.Sprintf("%s:%s:%s:%s", kind, region, id, target)
}

func parseActionHandle(handle string) (kind, region, id, target string, err error) {
	parts := strings.Split(handle, ":")
	if len(parts) != 4 {
		return "", "", "", "", provision.NewPermanentError("malformed aws action handle", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind).
			WithDetail("handle", handle)
	}
	return parts[0], parts[1], parts[2], parts[3], nil
}
