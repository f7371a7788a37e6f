package digitalocean

import (
	"context"
	"strconv"

	"github.com/digitalocean/godo"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// CreateMachine requests a new droplet. The SSH key, when given, is
// uploaded first so the create request can reference its fingerprint.
func (b *Backend) CreateMachine(ctx context.Context, spec provision.MachineSpec) (*provision.CreateResult, error) {
	req := &godo.DropletCreateRequest{
		Name:     spec.Name,
		Region:   spec.Region,
		Size:     spec.SizeID,
		UserData: spec.UserData,
	}
	if id, err := strconv.Atoi(spec.ImageID); err == nil {
		req.Image = godo.DropletCreateImage{ID: id}
	} else {
		req.Image = godo.DropletCreateImage{Slug: spec.ImageID}
	}
	if spec.SSHKey != nil {
		if _, err := b.EnsureKey(ctx, *spec.SSHKey); err != nil {
			return nil, err
		}
		req.SSHKeys = []godo.DropletCreateSSHKey{{Fingerprint: spec.SSHKey.Fingerprint}}
	}

	droplet, actionID, err := b.api.CreateDroplet(ctx, req)
	if err != nil {
		return nil, classify("failed to create droplet", err)
	}
	result := &provision.CreateResult{BackendID: strconv.Itoa(droplet.ID)}
	if actionID != 0 {
		result.ActionID = strconv.Itoa(actionID)
	}
	return result, nil
}

// StartMachine powers the droplet on.
func (b *Backend) StartMachine(ctx context.Context, backendID string) (string, error) {
	id, err := dropletID(backendID)
	if err != nil {
		return "", err
	}
	action, err := b.api.PowerOn(ctx, id)
	if err != nil {
		return "", classify("failed to power on droplet", err)
	}
	return strconv.Itoa(action.ID), nil
}

// StopMachine issues a graceful shutdown.
func (b *Backend) StopMachine(ctx context.Context, backendID string) (string, error) {
	id, err := dropletID(backendID)
	if err != nil {
		return "", err
	}
	action, err := b.api.Shutdown(ctx, id)
	if err != nil {
		return "", classify("failed to shut down droplet", err)
	}
	return strconv.Itoa(action.ID), nil
}

// RestartMachine reboots the droplet.
func (b *Backend) RestartMachine(ctx context.Context, backendID string) (string, error) {
	id, err := dropletID(backendID)
	if err != nil {
		return "", err
	}
	action, err := b.api.Reboot(ctx, id)
	if err != nil {
		return "", classify("failed to reboot droplet", err)
	}
	return strconv.Itoa(action.ID), nil
}

// ResizeMachine changes the droplet size. The disk is resized along
// with CPU and memory, which is why resizes only grow.
func (b *Backend) ResizeMachine(ctx context.Context, backendID, sizeID string) (string, error) {
	id, err := dropletID(backendID)
	if err != nil {
		return "", err
	}
	action, err := b.api.Resize(ctx, id, sizeID, true)
	if err != nil {
		return "", classify("failed to resize droplet", err)
	}
	return strconv.Itoa(action.ID), nil
}

// DestroyMachine deletes the droplet. Deletion has no vendor action to
// poll, so the returned handle is empty.
func (b *Backend) DestroyMachine(ctx context.Context, backendID string) (string, error) {
	id, err := dropletID(backendID)
	if err != nil {
		return "", err
	}
	if err := b.api.DeleteDroplet(ctx, id); err != nil {
		return "", classify("failed to delete droplet", err)
	}
	return "", nil
}

// GetMachine fetches the droplet's canonical representation.
func (b *Backend) GetMachine(ctx context.Context, backendID string) (*provision.RemoteResource, error) {
	id, err := dropletID(backendID)
	if err != nil {
		return nil, err
	}
	droplet, err := b.api.GetDroplet(ctx, id)
	if err != nil {
		return nil, classify("failed to get droplet", err)
	}
	remote := toRemote(droplet)
	return &remote, nil
}

// GetAction reports the status of a droplet action.
func (b *Backend) GetAction(ctx context.Context, actionID string) (provision.ActionStatus, error) {
	id, err := strconv.Atoi(actionID)
	if err != nil {
		return "", provision.NewPermanentError("malformed digitalocean action handle", err).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	action, err := b.api.GetAction(ctx, id)
	if err != nil {
		return "", classify("failed to get action", err)
	}
	switch action.Status {
	case godo.ActionCompleted:
		return provision.ActionCompleted, nil
	case "errored":
		return provision.ActionFailed, nil
	default:
		return provision.ActionPending, nil
	}
}

// MonthlyCostEstimate prices the droplet from its size.
func (b *Backend) MonthlyCostEstimate(ctx context.Context, backendID string) (float64, error) {
	id, err := dropletID(backendID)
	if err != nil {
		return 0, err
	}
	droplet, err := b.api.GetDroplet(ctx, id)
	if err != nil {
		return 0, classify("failed to get droplet", err)
	}
	if droplet.Size != nil && droplet.Size.PriceMonthly > 0 {
		return droplet.Size.PriceMonthly, nil
	}
	sizes, err := b.api.ListSizes(ctx)
	if err != nil {
		return 0, classify("failed to list digitalocean sizes", err)
	}
	for _, size := range sizes {
		if size.Slug == droplet.SizeSlug {
			return size.PriceMonthly, nil
		}
	}
	return 0, provision.NewNotFoundError("droplet size not found in catalog", nil).
		WithProvider(Kind).
		WithDetail("size", droplet.SizeSlug)
}

// PingResource probes a single droplet, retrying transient failures.
func (b *Backend) PingResource(ctx context.Context, backendID string) bool {
	id, err := dropletID(backendID)
	if err != nil {
		return false
	}
	const tries = 3
	for i := 0; i < tries; i++ {
		if _, err := b.api.GetDroplet(ctx, id); err == nil {
			return true
		}
	}
	return false
}

func dropletID(backendID string) (int, error) {
	id, err := strconv.Atoi(backendID)
	if err != nil {
		return 0, provision.NewPermanentError("malformed droplet backend id", err).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	return id, nil
}
