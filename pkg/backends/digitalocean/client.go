package digitalocean

import (
	"context"

	"github.com/digitalocean/godo"
)

// api is the slice of the DigitalOcean API the backend consumes. It is
// satisfied by godoAPI in production and by a fake in tests.
type api interface {
	Account(ctx context.Context) error

	ListRegions(ctx context.Context) ([]godo.Region, error)
	ListImages(ctx context.Context) ([]godo.Image, error)
	ListSizes(ctx context.Context) ([]godo.Size, error)

	ListDroplets(ctx context.Context) ([]godo.Droplet, error)
	GetDroplet(ctx context.Context, id int) (*godo.Droplet, error)

	// CreateDroplet returns the new droplet and the ID of the create
	// action attached to the response.
	CreateDroplet(ctx context.Context, req *godo.DropletCreateRequest) (*godo.Droplet, int, error)
	DeleteDroplet(ctx context.Context, id int) error

	PowerOn(ctx context.Context, id int) (*godo.Action, error)
	Shutdown(ctx context.Context, id int) (*godo.Action, error)
	Reboot(ctx context.Context, id int) (*godo.Action, error)
	Resize(ctx context.Context, id int, sizeSlug string, resizeDisk bool) (*godo.Action, error)

	GetAction(ctx context.Context, id int) (*godo.Action, error)

	KeyByFingerprint(ctx context.Context, fingerprint string) (*godo.Key, error)
	CreateKey(ctx context.Context, req *godo.KeyCreateRequest) (*godo.Key, error)
	DeleteKeyByFingerprint(ctx context.Context, fingerprint string) error
}

// godoAPI adapts *godo.Client to the api interface, flattening the
// vendor pagination.
type godoAPI struct {
	client *godo.Client
}

func newGodoAPI(token string) *godoAPI {
	return &godoAPI{client: godo.NewFromToken(token)}
}

const pageSize = 200

func (g *godoAPI) Account(ctx context.Context) error {
	_, _, err := g.client.Account.Get(ctx)
	return err
}

func (g *godoAPI) ListRegions(ctx context.Context) ([]godo.Region, error) {
	var out []godo.Region
	opt := &godo.ListOptions{PerPage: pageSize}
	for {
		regions, resp, err := g.client.Regions.List(ctx, opt)
		if err != nil {
			return nil, err
		}
		out = append(out, regions...)
		if resp.Links == nil || resp.Links.IsLastPage() {
			return out, nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, err
		}
		opt.Page = page + 1
	}
}

func (g *godoAPI) ListImages(ctx context.Context) ([]godo.Image, error) {
	var out []godo.Image
	opt := &godo.ListOptions{PerPage: pageSize}
	for {
		images, resp, err := g.client.Images.List(ctx, opt)
		if err != nil {
			return nil, err
		}
		out = append(out, images...)
		if resp.Links == nil || resp.Links.IsLastPage() {
			return out, nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, err
		}
		opt.Page = page + 1
	}
}

func (g *godoAPI) ListSizes(ctx context.Context) ([]godo.Size, error) {
	var out []godo.Size
	opt := &godo.ListOptions{PerPage: pageSize}
	for {
		sizes, resp, err := g.client.Sizes.List(ctx, opt)
		if err != nil {
			return nil, err
		}
		out = append(out, sizes...)
		if resp.Links == nil || resp.Links.IsLastPage() {
			return out, nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, err
		}
		opt.Page = page + 1
	}
}

func (g *godoAPI) ListDroplets(ctx context.Context) ([]godo.Droplet, error) {
	var out []godo.Droplet
	opt := &godo.ListOptions{PerPage: pageSize}
	for {
		droplets, resp, err := g.client.Droplets.List(ctx, opt)
		if err != nil {
			return nil, err
		}
		out = append(out, droplets...)
		if resp.Links == nil || resp.Links.IsLastPage() {
			return out, nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, err
		}
		opt.Page = page + 1
	}
}

func (g *godoAPI) GetDroplet(ctx context.Context, id int) (*godo.Droplet, error) {
	droplet, _, err := g.client.Droplets.Get(ctx, id)
	return droplet, err
}

func (g *godoAPI) CreateDroplet(ctx context.Context, req *godo.DropletCreateRequest) (*godo.Droplet, int, error) {
	droplet, resp, err := g.client.Droplets.Create(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	actionID := 0
	if resp != nil && resp.Links != nil {
		for _, link := range resp.Links.Actions {
			if link.Rel == "create" {
				actionID = link.ID
			}
		}
	}
	return droplet, actionID, nil
}

func (g *godoAPI) DeleteDroplet(ctx context.Context, id int) error {
	_, err := g.client.Droplets.Delete(ctx, id)
	return err
}

func (g *godoAPI) PowerOn(ctx context.Context, id int) (*godo.Action, error) {
	action, _, err := g.client.DropletActions.PowerOn(ctx, id)
	return action, err
}

func (g *godoAPI) Shutdown(ctx context.Context, id int) (*godo.Action, error) {
	action, _, err := g.client.DropletActions.Shutdown(ctx, id)
	return action, err
}

func (g *godoAPI) Reboot(ctx context.Context, id int) (*godo.Action, error) {
	action, _, err := g.client.DropletActions.Reboot(ctx, id)
	return action, err
}

func (g *godoAPI) Resize(ctx context.Context, id int, sizeSlug string, resizeDisk bool) (*godo.Action, error) {
	action, _, err := g.client.DropletActions.Resize(ctx, id, sizeSlug, resizeDisk)
	return action, err
}

func (g *godoAPI) GetAction(ctx context.Context, id int) (*godo.Action, error) {
	action, _, err := g.client.Actions.Get(ctx, id)
	return action, err
}

func (g *godoAPI) KeyByFingerprint(ctx context.Context, fingerprint string) (*godo.Key, error) {
	key, _, err := g.client.Keys.GetByFingerprint(ctx, fingerprint)
	return key, err
}

func (g *godoAPI) CreateKey(ctx context.Context, req *godo.KeyCreateRequest) (*godo.Key, error) {
	key, _, err := g.client.Keys.Create(ctx, req)
	return key, err
}

func (g *godoAPI) DeleteKeyByFingerprint(ctx context.Context, fingerprint string) error {
	_, err := g.client.Keys.DeleteByFingerprint(ctx, fingerprint)
	return err
}
