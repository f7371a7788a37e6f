package gitlab

import (
	"context"

	gl "github.com/xanzy/go-gitlab"
)

// api is the slice of the GitLab API the backend consumes.
type api interface {
	CurrentUser(ctx context.Context) error

	ListGroups(ctx context.Context) ([]*gl.Group, error)
	ListProjects(ctx context.Context) ([]*gl.Project, error)

	CreateGroup(ctx context.Context, opts *gl.CreateGroupOptions) (*gl.Group, error)
	CreateProject(ctx context.Context, opts *gl.CreateProjectOptions) (*gl.Project, error)

	GetGroup(ctx context.Context, id int) (*gl.Group, error)
	GetProject(ctx context.Context, id int) (*gl.Project, error)

	DeleteGroup(ctx context.Context, id int) error
	DeleteProject(ctx context.Context, id int) error
}

// glAPI adapts *gl.Client to the api interface.
type glAPI struct {
	client *gl.Client
}

func (g *glAPI) CurrentUser(ctx context.Context) error {
	_, _, err := g.client.Users.CurrentUser(gl.WithContext(ctx))
	return err
}

func (g *glAPI) ListGroups(ctx context.Context) ([]*gl.Group, error) {
	var out []*gl.Group
	opts := &gl.ListGroupsOptions{ListOptions: gl.ListOptions{PerPage: 100}}
	for {
		groups, resp, err := g.client.Groups.ListGroups(opts, gl.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		out = append(out, groups...)
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (g *glAPI) ListProjects(ctx context.Context) ([]*gl.Project, error) {
	var out []*gl.Project
	opts := &gl.ListProjectsOptions{
		ListOptions: gl.ListOptions{PerPage: 100},
		Membership:  gl.Ptr(true),
	}
	for {
		projects, resp, err := g.client.Projects.ListProjects(opts, gl.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		out = append(out, projects...)
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (g *glAPI) CreateGroup(ctx context.Context, opts *gl.CreateGroupOptions) (*gl.Group, error) {
	group, _, err := g.client.Groups.CreateGroup(opts, gl.WithContext(ctx))
	return group, err
}

func (g *glAPI) CreateProject(ctx context.Context, opts *gl.CreateProjectOptions) (*gl.Project, error) {
	project, _, err := g.client.Projects.CreateProject(opts, gl.WithContext(ctx))
	return project, err
}

func (g *glAPI) GetGroup(ctx context.Context, id int) (*gl.Group, error) {
	group, _, err := g.client.Groups.GetGroup(id, &gl.GetGroupOptions{}, gl.WithContext(ctx))
	return group, err
}

func (g *glAPI) GetProject(ctx context.Context, id int) (*gl.Project, error) {
	project, _, err := g.client.Projects.GetProject(id, &gl.GetProjectOptions{}, gl.WithContext(ctx))
	return project, err
}

func (g *glAPI) DeleteGroup(ctx context.Context, id int) error {
	_, err := g.client.Groups.DeleteGroup(id, &gl.DeleteGroupOptions{}, gl.WithContext(ctx))
	return err
}

func (g *glAPI) DeleteProject(ctx context.Context, id int) error {
	_, err := g.client.Projects.DeleteProject(id, &gl.DeleteProjectOptions{}, gl.WithContext(ctx))
	return err
}
