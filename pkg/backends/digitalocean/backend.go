// Package digitalocean adapts the DigitalOcean API to the provisioning
// backend contract. Droplet lifecycle calls return vendor action IDs
// that the runner polls through GetAction; errors are classified from
// the vendor status code and message.
package digitalocean

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/digitalocean/godo"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Kind is the provider kind this backend registers under.
const Kind = "digitalocean"

// Backend implements the machine lifecycle against DigitalOcean.
type Backend struct {
	settings provision.ServiceSettings
	api      api
}

var (
	_ provision.MachineBackend = (*Backend)(nil)
	_ provision.KeyBackend     = (*Backend)(nil)
	_ provision.CostEstimator  = (*Backend)(nil)
	_ provision.ResourcePinger = (*Backend)(nil)
)

// Factory builds a DigitalOcean backend from service settings. Register
// it under Kind in the composition root.
func Factory(_ context.Context, settings provision.ServiceSettings) (provision.Backend, error) {
	if settings.Token == "" {
		return nil, provision.NewPermanentError("digitalocean service requires an API token", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	return New(settings, newGodoAPI(settings.Token)), nil
}

// New creates a backend over an API client.
func New(settings provision.ServiceSettings, client api) *Backend {
	return &Backend{settings: settings, api: client}
}

// Kind returns the provider kind.
func (b *Backend) Kind() string { return Kind }

// Ping checks the credentials against the account endpoint. Transient
// failures are retried a few times before giving up.
func (b *Backend) Ping(ctx context.Context) error {
	const tries = 3
	var last error
	for i := 0; i < tries; i++ {
		err := b.api.Account(ctx)
		if err == nil {
			return nil
		}
		last = classify("digitalocean ping failed", err)
		if !provision.IsRetryable(last) {
			return last
		}
	}
	return last
}

// PullProperties fetches the region, image and size catalogs. Only
// regions currently accepting droplets are kept.
func (b *Backend) PullProperties(ctx context.Context) (*provision.Properties, error) {
	regions, err := b.api.ListRegions(ctx)
	if err != nil {
		return nil, classify("failed to list digitalocean regions", err)
	}
	props := &provision.Properties{}
	for _, region := range regions {
		if !region.Available {
			continue
		}
		props.Regions = append(props.Regions, provision.Region{
			BackendID: region.Slug,
			Name:      region.Name,
		})
	}

	images, err := b.api.ListImages(ctx)
	if err != nil {
		return nil, classify("failed to list digitalocean images", err)
	}
	for _, image := range images {
		props.Images = append(props.Images, provision.Image{
			BackendID:    strconv.Itoa(image.ID),
			Name:         fmt.Sprintf("%s %s", image.Distribution, image.Name),
			Distribution: image.Distribution,
			Type:         image.Type,
			Regions:      image.Regions,
		})
	}

	sizes, err := b.api.ListSizes(ctx)
	if err != nil {
		return nil, classify("failed to list digitalocean sizes", err)
	}
	for _, size := range sizes {
		if !size.Available {
			continue
		}
		props.Sizes = append(props.Sizes, provision.Size{
			BackendID:   size.Slug,
			Name:        size.Slug,
			Cores:       size.Vcpus,
			RAM:         size.Memory,
			Disk:        gbToMiB(size.Disk),
			Transfer:    tbToMiB(size.Transfer),
			HourlyPrice: size.PriceHourly,
			Regions:     size.Regions,
		})
	}
	return props, nil
}

// PullResources fetches all droplets owned by the account.
func (b *Backend) PullResources(ctx context.Context) ([]provision.RemoteResource, error) {
	droplets, err := b.api.ListDroplets(ctx)
	if err != nil {
		return nil, classify("failed to list droplets", err)
	}
	out := make([]provision.RemoteResource, 0, len(droplets))
	for i := range droplets {
		out = append(out, toRemote(&droplets[i]))
	}
	return out, nil
}

// dropletStates maps the vendor droplet status to the platform
// lifecycle and runtime states.
func dropletStates(status string) (provision.State, string) {
	switch status {
	case "new":
		return provision.StateProvisioning, "provisioning"
	case "active":
		return provision.StateOnline, "online"
	case "off":
		return provision.StateOffline, "offline"
	case "archive":
		return provision.StateOffline, "archived"
	default:
		return provision.StateErred, status
	}
}

func toRemote(droplet *godo.Droplet) provision.RemoteResource {
	state, runtime := dropletStates(droplet.Status)
	remote := provision.RemoteResource{
		BackendID:    strconv.Itoa(droplet.ID),
		Kind:         provision.KindMachine,
		Name:         droplet.Name,
		State:        state,
		RuntimeState: runtime,
		Cores:        droplet.Vcpus,
		RAM:          droplet.Memory,
		Disk:         gbToMiB(droplet.Disk),
		FlavorName:   droplet.SizeSlug,
	}
	if droplet.Region != nil {
		remote.Region = droplet.Region.Slug
	}
	if ip, err := droplet.PublicIPv4(); err == nil {
		remote.ExternalIP = ip
	}
	if ip, err := droplet.PrivateIPv4(); err == nil {
		remote.InternalIP = ip
	}
	if created, err := time.Parse(time.RFC3339, droplet.Created); err == nil {
		remote.CreatedAt = created
	}
	return remote
}

func gbToMiB(gb int) int { return gb * 1024 }

func tbToMiB(tb float64) int { return int(tb * 1024 * 1024) }
