// Package gitlab adapts a GitLab instance to the provisioning backend
// contract. Groups and projects are managed as resources. GitLab's API
// settles synchronously, so every operation returns an empty action
// handle and the chain completes on the first poll.
package gitlab

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	gl "github.com/xanzy/go-gitlab"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Kind is the provider kind this backend registers under.
const Kind = "gitlab"

// Backend implements the git group/project lifecycle against GitLab.
type Backend struct {
	settings provision.ServiceSettings
	api      api
}

var _ provision.CollabBackend = (*Backend)(nil)

// Factory builds a GitLab backend from service settings. A private
// token is preferred; username/password are the fallback. BaseURL
// points at the instance, e.g. https://git.example.com/.
func Factory(_ context.Context, settings provision.ServiceSettings) (provision.Backend, error) {
	if settings.BaseURL == "" {
		return nil, provision.NewPermanentError("gitlab service requires a base URL", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}

	var client *gl.Client
	var err error
	switch {
	case settings.Token != "":
		client, err = gl.NewClient(settings.Token, gl.WithBaseURL(settings.BaseURL))
	case settings.Username != "" && settings.Password != "":
		client, err = gl.NewBasicAuthClient(settings.Username, settings.Password,
			gl.WithBaseURL(settings.BaseURL))
	default:
		return nil, provision.NewPermanentError("gitlab service requires a token or username/password", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	if err != nil {
		return nil, provision.NewPermanentError("failed to build gitlab client", err).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind)
	}
	return New(settings, &glAPI{client: client}), nil
}

// New creates a backend over an API client.
func New(settings provision.ServiceSettings, client api) *Backend {
	return &Backend{settings: settings, api: client}
}

// Kind returns the provider kind.
func (b *Backend) Kind() string { return Kind }

// Ping checks the credentials against the current-user endpoint.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.api.CurrentUser(ctx); err != nil {
		return classify("gitlab ping failed", err)
	}
	return nil
}

// PullProperties returns nothing: GitLab has no region, image or size
// catalog.
func (b *Backend) PullProperties(_ context.Context) (*provision.Properties, error) {
	return nil, nil
}

// PullResources fetches the groups and projects the account can see.
func (b *Backend) PullResources(ctx context.Context) ([]provision.RemoteResource, error) {
	groups, err := b.api.ListGroups(ctx)
	if err != nil {
		return nil, classify("failed to list groups", err)
	}
	projects, err := b.api.ListProjects(ctx)
	if err != nil {
		return nil, classify("failed to list projects", err)
	}

	out := make([]provision.RemoteResource, 0, len(groups)+len(projects))
	for _, group := range groups {
		out = append(out, groupToRemote(group))
	}
	for _, project := range projects {
		out = append(out, projectToRemote(project))
	}
	return out, nil
}

// nameRe is the character set groups and projects accept for names and
// paths.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_.\s-]+$`)

// validateName rejects names GitLab would bounce: illegal characters, a
// leading '-' or a trailing '.'.
func validateName(field, value string) error {
	if value == "" || !nameRe.MatchString(value) {
		return provision.NewPermanentError(
			field+" can contain only letters, digits, '_', '.', dash and space", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind).
			WithDetail(field, value)
	}
	if strings.HasPrefix(value, "-") || strings.HasSuffix(value, ".") {
		return provision.NewPermanentError(
			field+" cannot start with '-' or end in '.'", nil).
			WithCode(provision.ErrCodeValidation).
			WithProvider(Kind).
			WithDetail(field, value)
	}
	return nil
}

// derivePath slugifies a display name into a URL path segment.
func derivePath(name string) string {
	path := strings.ToLower(strings.TrimSpace(name))
	path = strings.ReplaceAll(path, " ", "-")
	return strings.ReplaceAll(path, ".", "-")
}

// visibility maps the canonical visibility string onto the vendor
// constant, defaulting to private.
func visibility(v string) *gl.VisibilityValue {
	switch v {
	case "public":
		return gl.Ptr(gl.PublicVisibility)
	case "internal":
		return gl.Ptr(gl.InternalVisibility)
	default:
		return gl.Ptr(gl.PrivateVisibility)
	}
}

func groupToRemote(group *gl.Group) provision.RemoteResource {
	remote := provision.RemoteResource{
		BackendID:    strconv.Itoa(group.ID),
		Kind:         provision.KindGroup,
		Name:         group.Name,
		State:        provision.StateOnline,
		RuntimeState: "online",
		URL:          group.WebURL,
	}
	if group.CreatedAt != nil {
		remote.CreatedAt = *group.CreatedAt
	}
	return remote
}

func projectToRemote(project *gl.Project) provision.RemoteResource {
	remote := provision.RemoteResource{
		BackendID:    strconv.Itoa(project.ID),
		Kind:         provision.KindProject,
		Name:         project.Name,
		State:        provision.StateOnline,
		RuntimeState: "online",
		URL:          project.WebURL,
	}
	if project.CreatedAt != nil {
		remote.CreatedAt = *project.CreatedAt
	}
	return remote
}
