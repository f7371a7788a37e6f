package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

func newProvisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision a new resource",
		Long: `Create a resource record and run its provisioning chain: request the
object from the provider, poll the vendor action to completion and
commit the final state. The command blocks until the chain settles.`,
	}

	cmd.AddCommand(newProvisionMachineCommand())
	cmd.AddCommand(newProvisionVolumeCommand())
	cmd.AddCommand(newProvisionGroupCommand())
	cmd.AddCommand(newProvisionProjectCommand())

	return cmd
}

func newProvisionMachineCommand() *cobra.Command {
	var (
		service      string
		region       string
		imageID      string
		sizeID       string
		sshKeyPath   string
		userDataPath string
		labels       map[string]string
	)

	cmd := &cobra.Command{
		Use:   "machine <name>",
		Short: "Provision a virtual machine",
		Example: `  # Provision a droplet
  mast provision machine web-1 --service do-prod \
    --region ams3 --image ubuntu-24-04-x64 --size s-1vcpu-1gb

  # Provision an EC2 instance with an SSH key and cloud-init data
  mast provision machine web-2 --service aws-prod \
    --region eu-west-1 --image ami-0abcdef1234567890 --size t3.micro \
    --ssh-key ~/.ssh/id_ed25519.pub --user-data ./cloud-init.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			spec := provision.MachineSpec{
				Name:    name,
				Region:  region,
				ImageID: imageID,
				SizeID:  sizeID,
				Labels:  labels,
			}
			if sshKeyPath != "" {
				material, err := os.ReadFile(sshKeyPath)
				if err != nil {
					return fmt.Errorf("failed to read SSH key: %w", err)
				}
				key, err := provision.NewSSHKey(name+"-key", strings.TrimSpace(string(material)))
				if err != nil {
					return err
				}
				spec.SSHKey = key
			}
			if userDataPath != "" {
				data, err := os.ReadFile(userDataPath)
				if err != nil {
					return fmt.Errorf("failed to read user data: %w", err)
				}
				spec.UserData = string(data)
			}

			res, err := createRecord(cmd, app, service, provision.KindMachine, name, region, labels)
			if err != nil {
				return err
			}

			log.Info().Str("resource", res.ID).Str("name", name).Msg("Provisioning machine")
			return app.runner.Provision(ctx, res.ID, spec, reportCallbacks())
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "service to provision on (required)")
	cmd.Flags().StringVarP(&region, "region", "r", "", "region or location backend ID")
	cmd.Flags().StringVar(&imageID, "image", "", "image backend ID")
	cmd.Flags().StringVar(&sizeID, "size", "", "size backend ID")
	cmd.Flags().StringVar(&sshKeyPath, "ssh-key", "", "path to an SSH public key to install")
	cmd.Flags().StringVar(&userDataPath, "user-data", "", "path to a cloud-init user data file")
	cmd.Flags().StringToStringVarP(&labels, "label", "l", nil, "resource labels (key=value)")
	cmd.MarkFlagRequired("service")
	cmd.MarkFlagRequired("image")
	cmd.MarkFlagRequired("size")

	return cmd
}

func newProvisionVolumeCommand() *cobra.Command {
	var (
		service    string
		region     string
		sizeGiB    int
		volumeType string
	)

	cmd := &cobra.Command{
		Use:   "volume <name>",
		Short: "Provision a block storage volume",
		Example: `  # Provision a 100 GiB EBS volume
  mast provision volume data-1 --service aws-prod \
    --region us-east-1a --size-gib 100 --type gp2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			res, err := createRecord(cmd, app, service, provision.KindVolume, name, region, nil)
			if err != nil {
				return err
			}

			log.Info().Str("resource", res.ID).Str("name", name).Msg("Provisioning volume")
			return app.runner.ProvisionVolume(ctx, res.ID, provision.VolumeSpec{
				Name:    name,
				SizeGiB: sizeGiB,
				Region:  region,
				Type:    volumeType,
			}, reportCallbacks())
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "service to provision on (required)")
	cmd.Flags().StringVarP(&region, "region", "r", "", "region or availability zone backend ID")
	cmd.Flags().IntVar(&sizeGiB, "size-gib", 0, "volume size in GiB (required)")
	cmd.Flags().StringVar(&volumeType, "type", "", "vendor volume type (gp2, io1, standard)")
	cmd.MarkFlagRequired("service")
	cmd.MarkFlagRequired("size-gib")

	return cmd
}

func newProvisionGroupCommand() *cobra.Command {
	var (
		service     string
		path        string
		description string
		visibility  string
	)

	cmd := &cobra.Command{
		Use:   "group <name>",
		Short: "Provision a git group",
		Example: `  # Create a private group
  mast provision group "Platform Team" --service gitlab-prod`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			res, err := createRecord(cmd, app, service, provision.KindGroup, name, "", nil)
			if err != nil {
				return err
			}

			log.Info().Str("resource", res.ID).Str("name", name).Msg("Provisioning group")
			return app.runner.ProvisionGroup(ctx, res.ID, provision.GroupSpec{
				Name:        name,
				Path:        path,
				Description: description,
				Visibility:  visibility,
			}, reportCallbacks())
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "service to provision on (required)")
	cmd.Flags().StringVar(&path, "path", "", "URL path segment (derived from name when empty)")
	cmd.Flags().StringVar(&description, "description", "", "group description")
	cmd.Flags().StringVar(&visibility, "visibility", "", "private, internal or public")
	cmd.MarkFlagRequired("service")

	return cmd
}

func newProvisionProjectCommand() *cobra.Command {
	var (
		service     string
		path        string
		description string
		visibility  string
		groupID     string
		wiki        bool
		issues      bool
		snippets    bool
		mergeReqs   bool
	)

	cmd := &cobra.Command{
		Use:   "project <name>",
		Short: "Provision a git project",
		Example: `  # Create a project inside a group
  mast provision project billing --service gitlab-prod --group 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			res, err := createRecord(cmd, app, service, provision.KindProject, name, "", nil)
			if err != nil {
				return err
			}

			log.Info().Str("resource", res.ID).Str("name", name).Msg("Provisioning project")
			return app.runner.ProvisionProject(ctx, res.ID, provision.ProjectSpec{
				Name:                 name,
				Path:                 path,
				Description:          description,
				Visibility:           visibility,
				GroupID:              groupID,
				WikiEnabled:          wiki,
				IssuesEnabled:        issues,
				SnippetsEnabled:      snippets,
				MergeRequestsEnabled: mergeReqs,
			}, reportCallbacks())
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "service to provision on (required)")
	cmd.Flags().StringVar(&path, "path", "", "URL path segment (derived from name when empty)")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	cmd.Flags().StringVar(&visibility, "visibility", "", "private, internal or public")
	cmd.Flags().StringVar(&groupID, "group", "", "backend ID of the parent group")
	cmd.Flags().BoolVar(&wiki, "wiki", true, "enable the project wiki")
	cmd.Flags().BoolVar(&issues, "issues", true, "enable the issue tracker")
	cmd.Flags().BoolVar(&snippets, "snippets", true, "enable snippets")
	cmd.Flags().BoolVar(&mergeReqs, "merge-requests", true, "enable merge requests")
	cmd.MarkFlagRequired("service")

	return cmd
}

// createRecord saves the local resource record a chain will drive.
func createRecord(cmd *cobra.Command, app *app, service string, kind provision.ResourceKind, name, region string, labels map[string]string) (*provision.Resource, error) {
	svc := app.cfg.Service(service)
	if svc == nil {
		return nil, fmt.Errorf("service %q is not configured", service)
	}
	now := time.Now()
	res := &provision.Resource{
		ID:        uuid.New().String(),
		Kind:      kind,
		Name:      name,
		Provider:  svc.Provider,
		Service:   service,
		Region:    region,
		State:     provision.StateCreated,
		Labels:    labels,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := app.store.SaveResource(cmd.Context(), res); err != nil {
		return nil, err
	}
	app.audit(cmd.Context(), "resource.created", res.ID)
	return res, nil
}

// reportCallbacks logs the chain outcome and prints the resource when
// JSON output is requested.
func reportCallbacks() provision.Callbacks {
	return provision.Callbacks{
		OnSuccess: func(r *provision.Resource) {
			log.Info().
				Str("resource", r.ID).
				Str("state", string(r.State)).
				Str("backend_id", r.BackendID).
				Msg("Operation succeeded")
			if jsonOutput {
				printJSON(r)
			}
		},
		OnFailure: func(r *provision.Resource, err error) {
			log.Error().
				Err(err).
				Str("resource", r.ID).
				Str("state", string(r.State)).
				Msg("Operation failed")
		},
	}
}
