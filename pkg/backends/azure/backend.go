// Package azure adapts Azure virtual machines to the provisioning
// backend contract. All lifecycle calls are ARM long-running
// operations; the backend fires them without waiting and re-derives
// progress from the VM's provisioning and power state, so the action
// handle is just "vm:<name>:<target>" and survives restarts.
package azure

import (
	"fmt"
	"strings"

	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Kind is the provider kind this backend registers under.
const Kind = "azure"

// Backend implements the machine lifecycle against one Azure
// subscription and resource group.
type Backend struct {
	settings  provision.ServiceSettings
	location  string
	adminUser string
	api       api
}

var (
	_ provision.MachineBackend = (*Backend)(nil)
	_ provision.ResourcePinger = (*Backend)(nil)
)

// Factory builds an Azure backend from service settings. Username and
// Password carry the service principal's client ID and secret; the
// tenant_id, subscription_id and resource_group options are required.
func Factory(_ context.Context, settings provision.ServiceSettings) (provision.Backend, error) {
	tenantID := settings.Option("tenant_id", "")
	subscriptionID := settings.Option("subscription_id", "")
	resourceGroup := settings.Option("resource_group", "")
	if settings.Username == "" || settings.Password == "" || tenantID == "" ||
		subscriptionID == "" || resourceGroup == "" {
		return nil, provision.NewPermanentError(
			"azure service requires client credentials, tenant_id, subscription_id and resource_group", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}

	cred, err := azidentity.NewClientSecretCredential(tenantID, settings.Username, settings.Password, nil)
	if err != nil {
		return nil, provision.NewPermanentError("failed to build azure credential", err).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	client, err := newARMAPI(subscriptionID, resourceGroup, cred)
	if err != nil {
		return nil, provision.NewPermanentError("failed to build azure clients", err).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	return New(settings, client), nil
}

// New creates a backend over an API client.
func New(settings provision.ServiceSettings, client api) *Backend {
	return &Backend{
		settings:  settings,
		location:  settings.Option("location", "westeurope"),
		adminUser: settings.Option("admin_username", "cloudmast"),
		api:       client,
	}
}

// Kind returns the provider kind.
func (b *Backend) Kind() string { return Kind }

// Ping checks the credentials by listing the resource group's VMs.
func (b *Backend) Ping(ctx context.Context) error {
	if _, err := b.api.ListVMs(ctx); err != nil {
		return classify("azure ping failed", err)
	}
	return nil
}

// PullProperties returns the static location catalog plus the VM size
// and image catalogs of the home location. Images are enumerated for
// one publisher (images_publisher option) as publisher:offer:sku.
func (b *Backend) PullProperties(ctx context.Context) (*provision.Properties, error) {
	props := &provision.Properties{Regions: locationCatalog}

	sizes, err := b.api.ListSizes(ctx, b.location)
	if err != nil {
		return nil, classify("failed to list vm sizes", err)
	}
	for _, size := range sizes {
		if size.Name == nil {
			continue
		}
		s := provision.Size{
			BackendID: *size.Name,
			Name:      *size.Name,
			Regions:   []string{b.location},
		}
		if size.NumberOfCores != nil {
			s.Cores = int(*size.NumberOfCores)
		}
		if size.MemoryInMB != nil {
			s.RAM = int(*size.MemoryInMB)
		}
		if size.OSDiskSizeInMB != nil {
			s.Disk = int(*size.OSDiskSizeInMB)
		}
		props.Sizes = append(props.Sizes, s)
	}

	publisher := b.settings.Option("images_publisher", "Canonical")
	offers, err := b.api.ListOffers(ctx, b.location, publisher)
	if err != nil {
		return nil, classify("failed to list image offers", err)
	}
	for _, offer := range offers {
		skus, err := b.api.ListSKUs(ctx, b.location, publisher, offer)
		if err != nil {
			return nil, classify("failed to list image skus", err)
		}
		for _, sku := range skus {
			props.Images = append(props.Images, provision.Image{
				BackendID:    fmt.Sprintf("%s:%s:%s", publisher, offer, sku),
				Name:         fmt.Sprintf("%s %s", offer, sku),
				Distribution: publisher,
				Regions:      []string{b.location},
			})
		}
	}
	return props, nil
}

// PullResources fetches the resource group's virtual machines.
func (b *Backend) PullResources(ctx context.Context) ([]provision.RemoteResource, error) {
	vms, err := b.api.ListVMs(ctx)
	if err != nil {
		return nil, classify("failed to list virtual machines", err)
	}
	out := make([]provision.RemoteResource, 0, len(vms))
	for _, vm := range vms {
		out = append(out, toRemote(vm))
	}
	return out, nil
}

// powerState extracts the "PowerState/<state>" status from the
// instance view, empty when the view is absent.
func powerState(vm *armcompute.VirtualMachine) string {
	if vm.Properties == nil || vm.Properties.InstanceView == nil {
		return ""
	}
	for _, status := range vm.Properties.InstanceView.Statuses {
		if status.Code == nil {
			continue
		}
		if state, ok := strings.CutPrefix(*status.Code, "PowerState/"); ok {
			return state
		}
	}
	return ""
}

func provisioningState(vm *armcompute.VirtualMachine) string {
	if vm.Properties == nil || vm.Properties.ProvisioningState == nil {
		return ""
	}
	return *vm.Properties.ProvisioningState
}

// vmStates maps the VM's power and provisioning state to the platform
// lifecycle and runtime states.
func vmStates(vm *armcompute.VirtualMachine) (provision.State, string) {
	power := powerState(vm)
	switch power {
	case "running":
		return provision.StateOnline, "online"
	case "deallocated", "stopped":
		return provision.StateOffline, "offline"
	case "starting":
		return provision.StateProvisioning, "starting"
	}
	switch provisioningState(vm) {
	case "Creating", "Updating":
		return provision.StateProvisioning, "provisioning"
	case "Deleting":
		return provision.StateDeleting, "deleting"
	case "Succeeded":
		if power == "" {
			return provision.StateOnline, "online"
		}
	}
	if power != "" {
		return provision.StateErred, power
	}
	return provision.StateErred, strings.ToLower(provisioningState(vm))
}

func toRemote(vm *armcompute.VirtualMachine) provision.RemoteResource {
	remote := provision.RemoteResource{Kind: provision.KindMachine}
	if vm.Name != nil {
		remote.BackendID = *vm.Name
		remote.Name = *vm.Name
	}
	if vm.Location != nil {
		remote.Region = *vm.Location
	}
	if vm.Properties != nil && vm.Properties.HardwareProfile != nil &&
		vm.Properties.HardwareProfile.VMSize != nil {
		remote.FlavorName = string(*vm.Properties.HardwareProfile.VMSize)
	}
	remote.State, remote.RuntimeState = vmStates(vm)
	return remote
}

// actionHandle encodes a VM target-state poll.
func actionHandle(name, target string) string {
	return fmt.Sprintf("vm:%s:%s", name, target)
}

func parseActionHandle(handle string) (name, target string, err error) {
	parts := strings.Split(handle, ":")
	if len(parts) != 3 || parts[0] != "vm" {
		return "", "", provision.NewPermanentError("malformed azure action handle", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind).
			WithDetail("handle", handle)
	}
	return parts[1], parts[2], nil
}
