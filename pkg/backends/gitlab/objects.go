package gitlab

import (
	"context"
	"strconv"

	gl "github.com/xanzy/go-gitlab"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// CreateGroup creates a group. The path is derived from the name when
// not given. The empty action handle tells the runner the operation
// already settled.
func (b *Backend) CreateGroup(ctx context.Context, spec provision.GroupSpec) (*provision.CreateResult, error) {
	if err := validateName("name", spec.Name); err != nil {
		return nil, err
	}
	path := spec.Path
	if path == "" {
		path = derivePath(spec.Name)
	}
	if err := validateName("path", path); err != nil {
		return nil, err
	}

	group, err := b.api.CreateGroup(ctx, &gl.CreateGroupOptions{
		Name:        gl.Ptr(spec.Name),
		Path:        gl.Ptr(path),
		Description: gl.Ptr(spec.Description),
		Visibility:  visibility(spec.Visibility),
	})
	if err != nil {
		return nil, classify("failed to create group", err)
	}
	return &provision.CreateResult{BackendID: strconv.Itoa(group.ID)}, nil
}

// CreateProject creates a project, inside a group when GroupID is set.
func (b *Backend) CreateProject(ctx context.Context, spec provision.ProjectSpec) (*provision.CreateResult, error) {
	if err := validateName("name", spec.Name); err != nil {
		return nil, err
	}
	path := spec.Path
	if path == "" {
		path = derivePath(spec.Name)
	}
	if err := validateName("path", path); err != nil {
		return nil, err
	}

	opts := &gl.CreateProjectOptions{
		Name:                 gl.Ptr(spec.Name),
		Path:                 gl.Ptr(path),
		Description:          gl.Ptr(spec.Description),
		Visibility:           visibility(spec.Visibility),
		WikiEnabled:          gl.Ptr(spec.WikiEnabled),
		IssuesEnabled:        gl.Ptr(spec.IssuesEnabled),
		SnippetsEnabled:      gl.Ptr(spec.SnippetsEnabled),
		MergeRequestsEnabled: gl.Ptr(spec.MergeRequestsEnabled),
	}
	if spec.GroupID != "" {
		namespaceID, err := objectID(spec.GroupID)
		if err != nil {
			return nil, err
		}
		opts.NamespaceID = gl.Ptr(namespaceID)
	}

	project, err := b.api.CreateProject(ctx, opts)
	if err != nil {
		return nil, classify("failed to create project", err)
	}
	return &provision.CreateResult{BackendID: strconv.Itoa(project.ID)}, nil
}

// DeleteObject removes a group or project.
func (b *Backend) DeleteObject(ctx context.Context, kind provision.ResourceKind, backendID string) error {
	id, err := objectID(backendID)
	if err != nil {
		return err
	}
	switch kind {
	case provision.KindGroup:
		if err := b.api.DeleteGroup(ctx, id); err != nil {
			return classify("failed to delete group", err)
		}
	case provision.KindProject:
		if err := b.api.DeleteProject(ctx, id); err != nil {
			return classify("failed to delete project", err)
		}
	default:
		return provision.NewPermanentError("gitlab manages groups and projects only", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind).
			WithDetail("kind", string(kind))
	}
	return nil
}

// GetObject fetches the canonical representation of a group or project.
func (b *Backend) GetObject(ctx context.Context, kind provision.ResourceKind, backendID string) (*provision.RemoteResource, error) {
	id, err := objectID(backendID)
	if err != nil {
		return nil, err
	}
	switch kind {
	case provision.KindGroup:
		group, err := b.api.GetGroup(ctx, id)
		if err != nil {
			return nil, classify("failed to get group", err)
		}
		remote := groupToRemote(group)
		return &remote, nil
	case provision.KindProject:
		project, err := b.api.GetProject(ctx, id)
		if err != nil {
			return nil, classify("failed to get project", err)
		}
		remote := projectToRemote(project)
		return &remote, nil
	default:
		return nil, provision.NewPermanentError("gitlab manages groups and projects only", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind).
			WithDetail("kind", string(kind))
	}
}

func objectID(backendID string) (int, error) {
	id, err := strconv.Atoi(backendID)
	if err != nil {
		return 0, provision.NewPermanentError("malformed gitlab backend id", err).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	return id, nil
}
