package azure

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// CreateMachine provisions a NIC on the configured subnet and fires the
// VM create. Azure VMs authenticate with an SSH key; password logins
// stay disabled.
func (b *Backend) CreateMachine(ctx context.Context, spec provision.MachineSpec) (*provision.CreateResult, error) {
	if spec.SSHKey == nil {
		return nil, provision.NewPermanentError("azure machines require an SSH key", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	imageRef, err := parseImageID(spec.ImageID)
	if err != nil {
		return nil, err
	}
	subnetID := b.settings.Option("subnet_id", "")
	if subnetID == "" {
		return nil, provision.NewPermanentError("azure service requires the subnet_id option", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	location := spec.Region
	if location == "" {
		location = b.location
	}

	nicID, err := b.api.CreateNIC(ctx, spec.Name+"-nic", location, subnetID)
	if err != nil {
		return nil, classify("failed to create network interface", err)
	}

	vm := armcompute.VirtualMachine{
		Location: to.Ptr(location),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(spec.SizeID)),
			},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: imageRef,
				OSDisk: &armcompute.OSDisk{
					CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
					DeleteOption: to.Ptr(armcompute.DiskDeleteOptionTypesDelete),
					ManagedDisk: &armcompute.ManagedDiskParameters{
						StorageAccountType: to.Ptr(armcompute.StorageAccountTypesStandardLRS),
					},
				},
			},
			OSProfile: &armcompute.OSProfile{
				ComputerName:  to.Ptr(spec.Name),
				AdminUsername: to.Ptr(b.adminUser),
				LinuxConfiguration: &armcompute.LinuxConfiguration{
					DisablePasswordAuthentication: to.Ptr(true),
					SSH: &armcompute.SSHConfiguration{
						PublicKeys: []*armcompute.SSHPublicKey{{
							Path:    to.Ptr("/home/" + b.adminUser + "/.ssh/authorized_keys"),
							KeyData: to.Ptr(spec.SSHKey.PublicKey),
						}},
					},
				},
				CustomData: customData(spec.UserData),
			},
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{
					ID: to.Ptr(nicID),
					Properties: &armcompute.NetworkInterfaceReferenceProperties{
						Primary:      to.Ptr(true),
						DeleteOption: to.Ptr(armcompute.DeleteOptionsDelete),
					},
				}},
			},
		},
		Tags: vmTags(spec.Labels),
	}

	if err := b.api.BeginCreateVM(ctx, spec.Name, vm); err != nil {
		return nil, classify("failed to create virtual machine", err)
	}
	return &provision.CreateResult{
		BackendID: spec.Name,
		ActionID:  actionHandle(spec.Name, "provisioned"),
	}, nil
}

// StartMachine powers the VM on.
func (b *Backend) StartMachine(ctx context.Context, backendID string) (string, error) {
	if err := b.api.BeginStartVM(ctx, backendID); err != nil {
		return "", classify("failed to start virtual machine", err)
	}
	return actionHandle(backendID, "running"), nil
}

// StopMachine deallocates the VM so compute stops billing.
func (b *Backend) StopMachine(ctx context.Context, backendID string) (string, error) {
	if err := b.api.BeginDeallocateVM(ctx, backendID); err != nil {
		return "", classify("failed to deallocate virtual machine", err)
	}
	return actionHandle(backendID, "deallocated"), nil
}

// RestartMachine reboots the VM.
func (b *Backend) RestartMachine(ctx context.Context, backendID string) (string, error) {
	if err := b.api.BeginRestartVM(ctx, backendID); err != nil {
		return "", classify("failed to restart virtual machine", err)
	}
	return actionHandle(backendID, "running"), nil
}

// ResizeMachine changes the VM size.
func (b *Backend) ResizeMachine(ctx context.Context, backendID, sizeID string) (string, error) {
	if err := b.api.BeginUpdateVMSize(ctx, backendID, sizeID); err != nil {
		return "", classify("failed to resize virtual machine", err)
	}
	return actionHandle(backendID, "provisioned"), nil
}

// DestroyMachine deletes the VM. The OS disk and NIC are set to delete
// along with it.
func (b *Backend) DestroyMachine(ctx context.Context, backendID string) (string, error) {
	if err := b.api.BeginDeleteVM(ctx, backendID); err != nil {
		return "", classify("failed to delete virtual machine", err)
	}
	return actionHandle(backendID, "deleted"), nil
}

// GetMachine fetches the VM's canonical representation, instance view
// included so the power state is fresh.
func (b *Backend) GetMachine(ctx context.Context, backendID string) (*provision.RemoteResource, error) {
	vm, err := b.api.GetVM(ctx, backendID, true)
	if err != nil {
		return nil, classify("failed to get virtual machine", err)
	}
	remote := toRemote(vm)
	return &remote, nil
}

// GetAction settles a target-state handle from the VM's provisioning
// and power state.
func (b *Backend) GetAction(ctx context.Context, actionID string) (provision.ActionStatus, error) {
	name, target, err := parseActionHandle(actionID)
	if err != nil {
		return "", err
	}

	vm, err := b.api.GetVM(ctx, name, true)
	if err != nil {
		classified := classify("failed to get virtual machine", err)
		if provision.IsNotFound(classified) {
			switch target {
			case "deleted":
				return provision.ActionCompleted, nil
			case "provisioned":
				// The create PUT may not have materialized yet.
				return provision.ActionPending, nil
			default:
				return provision.ActionFailed, nil
			}
		}
		return "", classified
	}

	provState := provisioningState(vm)
	switch target {
	case "provisioned":
		switch provState {
		case "Succeeded":
			return provision.ActionCompleted, nil
		case "Failed", "Canceled":
			return provision.ActionFailed, nil
		default:
			return provision.ActionPending, nil
		}
	case "deleted":
		return provision.ActionPending, nil
	default:
		if powerState(vm) == target {
			return provision.ActionCompleted, nil
		}
		if provState == "Failed" || provState == "Canceled" {
			return provision.ActionFailed, nil
		}
		return provision.ActionPending, nil
	}
}

// PingResource probes a single VM.
func (b *Backend) PingResource(ctx context.Context, backendID string) bool {
	_, err := b.api.GetVM(ctx, backendID, false)
	return err == nil
}

// parseImageID splits a publisher:offer:sku catalog identifier into an
// image reference at its latest version.
func parseImageID(imageID string) (*armcompute.ImageReference, error) {
	parts := strings.Split(imageID, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, provision.NewPermanentError("azure image id must be publisher:offer:sku", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind).
			WithDetail("image", imageID)
	}
	return &armcompute.ImageReference{
		Publisher: to.Ptr(parts[0]),
		Offer:     to.Ptr(parts[1]),
		SKU:       to.Ptr(parts[2]),
		Version:   to.Ptr("latest"),
	}, nil
}

func vmTags(labels map[string]string) map[string]*string {
	if len(labels) == 0 {
		return nil
	}
	tags := make(map[string]*string, len(labels))
	for k, v := range labels {
		tags[k] = to.Ptr(v)
	}
	return tags
}

// customData base64-encodes the cloud-init payload the way the compute
// API expects it.
func customData(userData string) *string {
	if userData == "" {
		return nil
	}
	return to.Ptr(base64.StdEncoding.EncodeToString([]byte(userData)))
}
