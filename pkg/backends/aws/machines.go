package aws

import (
	"context"
	"encoding/base64"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// CreateMachine launches an instance in the spec's region. The SSH key
// is imported first so the launch request can reference it by name.
func (b *Backend) CreateMachine(ctx context.Context, spec provision.MachineSpec) (*provision.CreateResult, error) {
	region := spec.Region
	if region == "" {
		region = b.region
	}
	client := b.pool.get(region)

	input := &ec2.RunInstancesInput{
		ImageId:      awssdk.String(spec.ImageID),
		InstanceType: types.InstanceType(spec.SizeID),
		MinCount:     awssdk.Int32(1),
		MaxCount:     awssdk.Int32(1),
	}
	if spec.UserData != "" {
		input.UserData = awssdk.String(base64.StdEncoding.EncodeToString([]byte(spec.UserData)))
	}
	if spec.SSHKey != nil {
		if _, err := b.ensureKeyIn(ctx, client, *spec.SSHKey); err != nil {
			return nil, err
		}
		input.KeyName = awssdk.String(spec.SSHKey.Name)
	}

	tags := []types.Tag{{Key: awssdk.String("Name"), Value: awssdk.String(spec.Name)}}
	for k, v := range spec.Labels {
		tags = append(tags, types.Tag{Key: awssdk.String(k), Value: awssdk.String(v)})
	}
	input.TagSpecifications = []types.TagSpecification{{
		ResourceType: types.ResourceTypeInstance,
		Tags:         tags,
	}}

	out, err := client.RunInstances(ctx, input)
	if err != nil {
		return nil, classify("failed to launch instance", err)
	}
	if len(out.Instances) == 0 {
		return nil, provision.NewPermanentError("launch returned no instances", nil).
			WithCode(provision.ErrCodeBackendFailed).
			WithProvider(Kind)
	}
	id := awssdk.ToString(out.Instances[0].InstanceId)
	return &provision.CreateResult{
		BackendID: id,
		ActionID:  actionHandle("instance", region, id, "running"),
	}, nil
}

// StartMachine powers the instance on.
func (b *Backend) StartMachine(ctx context.Context, backendID string) (string, error) {
	region, _, err := b.locateInstance(ctx, backendID)
	if err != nil {
		return "", err
	}
	_, err = b.pool.get(region).StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{backendID},
	})
	if err != nil {
		return "", classify("failed to start instance", err)
	}
	return actionHandle("instance", region, backendID, "running"), nil
}

// StopMachine powers the instance off.
func (b *Backend) StopMachine(ctx context.Context, backendID string) (string, error) {
	region, _, err := b.locateInstance(ctx, backendID)
	if err != nil {
		return "", err
	}
	_, err = b.pool.get(region).StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{backendID},
	})
	if err != nil {
		return "", classify("failed to stop instance", err)
	}
	return actionHandle("instance", region, backendID, "stopped"), nil
}

// RestartMachine reboots the instance. EC2 reboots inside the guest
// without a visible state transition, so there is nothing to poll.
func (b *Backend) RestartMachine(ctx context.Context, backendID string) (string, error) {
	region, _, err := b.locateInstance(ctx, backendID)
	if err != nil {
		return "", err
	}
	_, err = b.pool.get(region).RebootInstances(ctx, &ec2.RebootInstancesInput{
		InstanceIds: []string{backendID},
	})
	if err != nil {
		return "", classify("failed to reboot instance", err)
	}
	return "", nil
}

// ResizeMachine changes the instance type. The instance must be
// stopped; the attribute change itself is synchronous.
func (b *Backend) ResizeMachine(ctx context.Context, backendID, sizeID string) (string, error) {
	region, _, err := b.locateInstance(ctx, backendID)
	if err != nil {
		return "", err
	}
	_, err = b.pool.get(region).ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:   awssdk.String(backendID),
		InstanceType: &types.AttributeValue{Value: awssdk.String(sizeID)},
	})
	if err != nil {
		return "", classify("failed to resize instance", err)
	}
	return "", nil
}

// DestroyMachine terminates the instance.
func (b *Backend) DestroyMachine(ctx context.Context, backendID string) (string, error) {
	region, _, err := b.locateInstance(ctx, backendID)
	if err != nil {
		return "", err
	}
	_, err = b.pool.get(region).TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{backendID},
	})
	if err != nil {
		return "", classify("failed to terminate instance", err)
	}
	return actionHandle("instance", region, backendID, "terminated"), nil
}

// GetMachine fetches the instance's canonical representation.
func (b *Backend) GetMachine(ctx context.Context, backendID string) (*provision.RemoteResource, error) {
	region, instance, err := b.locateInstance(ctx, backendID)
	if err != nil {
		return nil, err
	}
	remote := toRemoteInstance(region, instance)
	return &remote, nil
}

// GetAction settles a target-state handle by describing the object.
func (b *Backend) GetAction(ctx context.Context, actionID string) (provision.ActionStatus, error) {
	kind, region, id, target, err := parseActionHandle(actionID)
	if err != nil {
		return "", err
	}
	client := b.pool.get(region)

	switch kind {
	case "instance":
		out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{id},
		})
		if err != nil {
			classified := classify("failed to describe instance", err)
			if provision.IsNotFound(classified) && target == "terminated" {
				return provision.ActionCompleted, nil
			}
			return "", classified
		}
		for _, reservation := range out.Reservations {
			for _, instance := range reservation.Instances {
				if instance.State == nil {
					return provision.ActionPending, nil
				}
				state := string(instance.State.Name)
				switch {
				case state == target:
					return provision.ActionCompleted, nil
				case state == string(types.InstanceStateNameTerminated):
					return provision.ActionFailed, nil
				default:
					return provision.ActionPending, nil
				}
			}
		}
		if target == "terminated" {
			return provision.ActionCompleted, nil
		}
		return provision.ActionFailed, nil

	case "volume":
		out, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
			VolumeIds: []string{id},
		})
		if err != nil {
			classified := classify("failed to describe volume", err)
			if provision.IsNotFound(classified) && target == "deleted" {
				return provision.ActionCompleted, nil
			}
			return "", classified
		}
		if len(out.Volumes) == 0 {
			if target == "deleted" {
				return provision.ActionCompleted, nil
			}
			return provision.ActionFailed, nil
		}
		state := string(out.Volumes[0].State)
		switch {
		case state == target:
			return provision.ActionCompleted, nil
		case state == string(types.VolumeStateError):
			return provision.ActionFailed, nil
		default:
			return provision.ActionPending, nil
		}

	default:
		return "", provision.NewPermanentError("unknown aws action handle kind", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind).
			WithDetail("kind", kind)
	}
}

// PingResource probes a single instance.
func (b *Backend) PingResource(ctx context.Context, backendID string) bool {
	_, _, err := b.locateInstance(ctx, backendID)
	return err == nil
}
