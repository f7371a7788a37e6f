package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
)

// api is the slice of the Azure Resource Manager surface the backend
// consumes. The Begin* calls fire the long-running operation and drop
// the poller: progress is re-derived from the VM's provisioning and
// power state, so handles survive process restarts.
type api interface {
	GetVM(ctx context.Context, name string, instanceView bool) (*armcompute.VirtualMachine, error)
	ListVMs(ctx context.Context) ([]*armcompute.VirtualMachine, error)

	BeginCreateVM(ctx context.Context, name string, vm armcompute.VirtualMachine) error
	BeginUpdateVMSize(ctx context.Context, name, size string) error
	BeginStartVM(ctx context.Context, name string) error
	BeginDeallocateVM(ctx context.Context, name string) error
	BeginRestartVM(ctx context.Context, name string) error
	BeginDeleteVM(ctx context.Context, name string) error

	ListSizes(ctx context.Context, location string) ([]*armcompute.VirtualMachineSize, error)
	ListOffers(ctx context.Context, location, publisher string) ([]string, error)
	ListSKUs(ctx context.Context, location, publisher, offer string) ([]string, error)

	// CreateNIC provisions a network interface on the subnet and blocks
	// until it is ready, returning its resource ID.
	CreateNIC(ctx context.Context, name, location, subnetID string) (string, error)
}

// armAPI adapts the ARM SDK clients to the api interface, scoped to one
// subscription and resource group.
type armAPI struct {
	resourceGroup string
	vms           *armcompute.VirtualMachinesClient
	sizes         *armcompute.VirtualMachineSizesClient
	images        *armcompute.VirtualMachineImagesClient
	nics          *armnetwork.InterfacesClient
}

func newARMAPI(subscriptionID, resourceGroup string, cred azcore.TokenCredential) (*armAPI, error) {
	vms, err := armcompute.NewVirtualMachinesClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	sizes, err := armcompute.NewVirtualMachineSizesClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	images, err := armcompute.NewVirtualMachineImagesClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	nics, err := armnetwork.NewInterfacesClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	return &armAPI{
		resourceGroup: resourceGroup,
		vms:           vms,
		sizes:         sizes,
		images:        images,
		nics:          nics,
	}, nil
}

func (a *armAPI) GetVM(ctx context.Context, name string, instanceView bool) (*armcompute.VirtualMachine, error) {
	var opts *armcompute.VirtualMachinesClientGetOptions
	if instanceView {
		opts = &armcompute.VirtualMachinesClientGetOptions{
			Expand: to.Ptr(armcompute.InstanceViewTypesInstanceView),
		}
	}
	resp, err := a.vms.Get(ctx, a.resourceGroup, name, opts)
	if err != nil {
		return nil, err
	}
	return &resp.VirtualMachine, nil
}

func (a *armAPI) ListVMs(ctx context.Context) ([]*armcompute.VirtualMachine, error) {
	var out []*armcompute.VirtualMachine
	pager := a.vms.NewListPager(a.resourceGroup, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Value...)
	}
	return out, nil
}

func (a *armAPI) BeginCreateVM(ctx context.Context, name string, vm armcompute.VirtualMachine) error {
	_, err := a.vms.BeginCreateOrUpdate(ctx, a.resourceGroup, name, vm, nil)
	return err
}

func (a *armAPI) BeginUpdateVMSize(ctx context.Context, name, size string) error {
	_, err := a.vms.BeginUpdate(ctx, a.resourceGroup, name, armcompute.VirtualMachineUpdate{
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(size)),
			},
		},
	}, nil)
	return err
}

func (a *armAPI) BeginStartVM(ctx context.Context, name string) error {
	_, err := a.vms.BeginStart(ctx, a.resourceGroup, name, nil)
	return err
}

func (a *armAPI) BeginDeallocateVM(ctx context.Context, name string) error {
	_, err := a.vms.BeginDeallocate(ctx, a.resourceGroup, name, nil)
	return err
}

func (a *armAPI) BeginRestartVM(ctx context.Context, name string) error {
	_, err := a.vms.BeginRestart(ctx, a.resourceGroup, name, nil)
	return err
}

func (a *armAPI) BeginDeleteVM(ctx context.Context, name string) error {
	_, err := a.vms.BeginDelete(ctx, a.resourceGroup, name, nil)
	return err
}

func (a *armAPI) ListSizes(ctx context.Context, location string) ([]*armcompute.VirtualMachineSize, error) {
	var out []*armcompute.VirtualMachineSize
	pager := a.sizes.NewListPager(location, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Value...)
	}
	return out, nil
}

func (a *armAPI) ListOffers(ctx context.Context, location, publisher string) ([]string, error) {
	resp, err := a.images.ListOffers(ctx, location, publisher, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range resp.VirtualMachineImageResourceArray {
		if r.Name != nil {
			out = append(out, *r.Name)
		}
	}
	return out, nil
}

func (a *armAPI) ListSKUs(ctx context.Context, location, publisher, offer string) ([]string, error) {
	resp, err := a.images.ListSKUs(ctx, location, publisher, offer, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range resp.VirtualMachineImageResourceArray {
		if r.Name != nil {
			out = append(out, *r.Name)
		}
	}
	return out, nil
}

func (a *armAPI) CreateNIC(ctx context.Context, name, location, subnetID string) (string, error) {
	poller, err := a.nics.BeginCreateOrUpdate(ctx, a.resourceGroup, name, armnetwork.Interface{
		Location: to.Ptr(location),
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{{
				Name: to.Ptr("primary"),
				Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
					Subnet:                    &armnetwork.Subnet{ID: to.Ptr(subnetID)},
					PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
				},
			}},
		},
	}, nil)
	if err != nil {
		return "", err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return "", err
	}
	if resp.Interface.ID == nil {
		return "", fmt.Errorf("network interface %s has no resource id", name)
	}
	return *resp.Interface.ID, nil
}
