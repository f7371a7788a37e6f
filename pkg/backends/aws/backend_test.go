package aws

import (
	"context"
	"strings"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

func awsErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

// fakeEC2 is a hand-rolled regional EC2 API with canned data.
type fakeEC2 struct {
	instances map[string]types.Instance
	volumes   map[string]types.Volume
	keyPairs  map[string]string
	sizes     []types.InstanceTypeInfo
	images    []types.Image

	importedKeys []string
	terminated   []string
	resized      []string
}

func newFakeEC2() *fakeEC2 {
	return &fakeEC2{
		instances: make(map[string]types.Instance),
		volumes:   make(map[string]types.Volume),
		keyPairs:  make(map[string]string),
	}
}

func (f *fakeEC2) DescribeRegions(context.Context, *ec2.DescribeRegionsInput, ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	return &ec2.DescribeRegionsOutput{}, nil
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	var matched []types.Instance
	if len(in.InstanceIds) == 0 {
		for _, inst := range f.instances {
			matched = append(matched, inst)
		}
	} else {
		for _, id := range in.InstanceIds {
			inst, ok := f.instances[id]
			if !ok {
				return nil, awsErr("InvalidInstanceID.NotFound")
			}
			matched = append(matched, inst)
		}
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{Instances: matched}},
	}, nil
}

func (f *fakeEC2) DescribeInstanceTypes(context.Context, *ec2.DescribeInstanceTypesInput, ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error) {
	return &ec2.DescribeInstanceTypesOutput{InstanceTypes: f.sizes}, nil
}

func (f *fakeEC2) DescribeImages(context.Context, *ec2.DescribeImagesInput, ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	return &ec2.DescribeImagesOutput{Images: f.images}, nil
}

func (f *fakeEC2) RunInstances(_ context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	inst := types.Instance{
		InstanceId:   awssdk.String("i-new"),
		InstanceType: in.InstanceType,
		State:        &types.InstanceState{Name: types.InstanceStateNamePending},
	}
	f.instances["i-new"] = inst
	return &ec2.RunInstancesOutput{Instances: []types.Instance{inst}}, nil
}

func (f *fakeEC2) StartInstances(context.Context, *ec2.StartInstancesInput, ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	return &ec2.StartInstancesOutput{}, nil
}

func (f *fakeEC2) StopInstances(context.Context, *ec2.StopInstancesInput, ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	return &ec2.StopInstancesOutput{}, nil
}

func (f *fakeEC2) RebootInstances(context.Context, *ec2.RebootInstancesInput, ...func(*ec2.Options)) (*ec2.RebootInstancesOutput, error) {
	return &ec2.RebootInstancesOutput{}, nil
}

func (f *fakeEC2) TerminateInstances(_ context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminated = append(f.terminated, in.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

func (f *fakeEC2) ModifyInstanceAttribute(_ context.Context, in *ec2.ModifyInstanceAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error) {
	if in.InstanceType != nil {
		f.resized = append(f.resized, awssdk.ToString(in.InstanceType.Value))
	}
	return &ec2.ModifyInstanceAttributeOutput{}, nil
}

func (f *fakeEC2) CreateVolume(_ context.Context, in *ec2.CreateVolumeInput, _ ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error) {
	f.volumes["vol-new"] = types.Volume{
		VolumeId:         awssdk.String("vol-new"),
		Size:             in.Size,
		State:            types.VolumeStateCreating,
		AvailabilityZone: in.AvailabilityZone,
	}
	return &ec2.CreateVolumeOutput{VolumeId: awssdk.String("vol-new")}, nil
}

func (f *fakeEC2) DeleteVolume(_ context.Context, in *ec2.DeleteVolumeInput, _ ...func(*ec2.Options)) (*ec2.DeleteVolumeOutput, error) {
	delete(f.volumes, awssdk.ToString(in.VolumeId))
	return &ec2.DeleteVolumeOutput{}, nil
}

func (f *fakeEC2) AttachVolume(context.Context, *ec2.AttachVolumeInput, ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error) {
	return &ec2.AttachVolumeOutput{}, nil
}

func (f *fakeEC2) DetachVolume(context.Context, *ec2.DetachVolumeInput, ...func(*ec2.Options)) (*ec2.DetachVolumeOutput, error) {
	return &ec2.DetachVolumeOutput{}, nil
}

func (f *fakeEC2) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	var matched []types.Volume
	if len(in.VolumeIds) == 0 {
		for _, v := range f.volumes {
			matched = append(matched, v)
		}
	} else {
		for _, id := range in.VolumeIds {
			v, ok := f.volumes[id]
			if !ok {
				return nil, awsErr("InvalidVolume.NotFound")
			}
			matched = append(matched, v)
		}
	}
	return &ec2.DescribeVolumesOutput{Volumes: matched}, nil
}

func (f *fakeEC2) DescribeKeyPairs(_ context.Context, in *ec2.DescribeKeyPairsInput, _ ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	for _, name := range in.KeyNames {
		if id, ok := f.keyPairs[name]; ok {
			return &ec2.DescribeKeyPairsOutput{KeyPairs: []types.KeyPairInfo{{
				KeyPairId: awssdk.String(id),
				KeyName:   awssdk.String(name),
			}}}, nil
		}
	}
	return nil, awsErr("InvalidKeyPair.NotFound")
}

func (f *fakeEC2) ImportKeyPair(_ context.Context, in *ec2.ImportKeyPairInput, _ ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error) {
	name := awssdk.ToString(in.KeyName)
	f.importedKeys = append(f.importedKeys, name)
	f.keyPairs[name] = "key-" + name
	return &ec2.ImportKeyPairOutput{KeyPairId: awssdk.String("key-" + name)}, nil
}

func (f *fakeEC2) DeleteKeyPair(_ context.Context, in *ec2.DeleteKeyPairInput, _ ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error) {
	delete(f.keyPairs, awssdk.ToString(in.KeyName))
	return &ec2.DeleteKeyPairOutput{}, nil
}

// fakePool maps regions to fakes; unknown regions share an empty fake.
type fakePool struct {
	regions map[string]*fakeEC2
	empty   *fakeEC2
}

func newFakePool() *fakePool {
	return &fakePool{regions: make(map[string]*fakeEC2), empty: newFakeEC2()}
}

func (p *fakePool) region(name string) *fakeEC2 {
	f, ok := p.regions[name]
	if !ok {
		f = newFakeEC2()
		p.regions[name] = f
	}
	return f
}

func (p *fakePool) get(region string) ec2API {
	if f, ok := p.regions[region]; ok {
		return f
	}
	return p.empty
}

func testBackend(pool *fakePool, opts map[string]string) *Backend {
	return New(provision.ServiceSettings{
		Name:     "aws-main",
		Provider: Kind,
		Username: "AKIA",
		Password: "secret",
		Options:  opts,
	}, pool)
}

func TestCreateMachine(t *testing.T) {
	pool := newFakePool()
	region := pool.region("eu-west-1")
	key, err := provision.NewSSHKey("ops", testPublicKey)
	if err != nil {
		t.Fatalf("NewSSHKey: %v", err)
	}

	result, err := testBackend(pool, nil).CreateMachine(context.Background(), provision.MachineSpec{
		Name:    "web-1",
		Region:  "eu-west-1",
		ImageID: "ami-123",
		SizeID:  "t3.small",
		SSHKey:  key,
	})
	if err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}
	if result.BackendID != "i-new" {
		t.Errorf("backend id = %q", result.BackendID)
	}
	if result.ActionID != "instance:eu-west-1:i-new:running" {
		t.Errorf("action handle = %q", result.ActionID)
	}
	if len(region.importedKeys) != 1 {
		t.Errorf("SSH key not imported: %v", region.importedKeys)
	}
}

func TestLocateInstanceAcrossRegions(t *testing.T) {
	pool := newFakePool()
	pool.region("us-east-1")
	pool.region("eu-central-1").instances["i-far"] = types.Instance{
		InstanceId: awssdk.String("i-far"),
		State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
	}
	b := testBackend(pool, nil)

	remote, err := b.GetMachine(context.Background(), "i-far")
	if err != nil {
		t.Fatalf("GetMachine: %v", err)
	}
	if remote.Region != "eu-central-1" {
		t.Errorf("region = %q", remote.Region)
	}

	if _, err := b.GetMachine(context.Background(), "i-nowhere"); !provision.IsNotFound(err) {
		t.Errorf("missing instance not classified not-found: %v", err)
	}
}

func TestLifecycleHandles(t *testing.T) {
	pool := newFakePool()
	pool.region("us-east-1").instances["i-1"] = types.Instance{
		InstanceId: awssdk.String("i-1"),
		State:      &types.InstanceState{Name: types.InstanceStateNameStopped},
	}
	b := testBackend(pool, nil)
	ctx := context.Background()

	handle, err := b.StartMachine(ctx, "i-1")
	if err != nil || handle != "instance:us-east-1:i-1:running" {
		t.Errorf("start: handle=%q err=%v", handle, err)
	}
	handle, err = b.StopMachine(ctx, "i-1")
	if err != nil || handle != "instance:us-east-1:i-1:stopped" {
		t.Errorf("stop: handle=%q err=%v", handle, err)
	}
	handle, err = b.RestartMachine(ctx, "i-1")
	if err != nil || handle != "" {
		t.Errorf("restart should settle synchronously: handle=%q err=%v", handle, err)
	}
	handle, err = b.ResizeMachine(ctx, "i-1", "t3.large")
	if err != nil || handle != "" {
		t.Errorf("resize should settle synchronously: handle=%q err=%v", handle, err)
	}
	handle, err = b.DestroyMachine(ctx, "i-1")
	if err != nil || handle != "instance:us-east-1:i-1:terminated" {
		t.Errorf("destroy: handle=%q err=%v", handle, err)
	}
}

func TestGetAction(t *testing.T) {
	pool := newFakePool()
	region := pool.region("us-east-1")
	region.instances["i-run"] = types.Instance{
		InstanceId: awssdk.String("i-run"),
		State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
	}
	region.instances["i-pend"] = types.Instance{
		InstanceId: awssdk.String("i-pend"),
		State:      &types.InstanceState{Name: types.InstanceStateNamePending},
	}
	region.instances["i-dead"] = types.Instance{
		InstanceId: awssdk.String("i-dead"),
		State:      &types.InstanceState{Name: types.InstanceStateNameTerminated},
	}
	region.volumes["vol-1"] = types.Volume{
		VolumeId: awssdk.String("vol-1"),
		State:    types.VolumeStateAvailable,
	}
	b := testBackend(pool, nil)

	tests := []struct {
		handle string
		want   provision.ActionStatus
	}{
		{"instance:us-east-1:i-run:running", provision.ActionCompleted},
		{"instance:us-east-1:i-pend:running", provision.ActionPending},
		{"instance:us-east-1:i-dead:running", provision.ActionFailed},
		{"instance:us-east-1:i-dead:terminated", provision.ActionCompleted},
		{"instance:us-east-1:i-gone:terminated", provision.ActionCompleted},
		{"volume:us-east-1:vol-1:available", provision.ActionCompleted},
		{"volume:us-east-1:vol-gone:deleted", provision.ActionCompleted},
	}
	for _, tc := range tests {
		got, err := b.GetAction(context.Background(), tc.handle)
		if err != nil {
			t.Fatalf("GetAction(%s): %v", tc.handle, err)
		}
		if got != tc.want {
			t.Errorf("GetAction(%s) = %s, want %s", tc.handle, got, tc.want)
		}
	}

	if _, err := b.GetAction(context.Background(), "bogus"); !provision.IsPermanent(err) {
		t.Errorf("malformed handle not permanent: %v", err)
	}
}

func TestPullProperties(t *testing.T) {
	pool := newFakePool()
	region := pool.region("us-east-1")
	region.sizes = []types.InstanceTypeInfo{{
		InstanceType: types.InstanceType("t3.small"),
		VCpuInfo:     &types.VCpuInfo{DefaultVCpus: awssdk.Int32(2)},
		MemoryInfo:   &types.MemoryInfo{SizeInMiB: awssdk.Int64(2048)},
	}}
	region.images = []types.Image{
		{ImageId: awssdk.String("ami-ubuntu"), Name: awssdk.String("ubuntu-22.04-amd64")},
		{ImageId: awssdk.String("ami-win"), Name: awssdk.String("windows-2022")},
	}

	props, err := testBackend(pool, map[string]string{"images_regex": "^ubuntu"}).
		PullProperties(context.Background())
	if err != nil {
		t.Fatalf("PullProperties: %v", err)
	}
	if len(props.Regions) != len(regionCatalog) {
		t.Errorf("regions = %d, want static catalog", len(props.Regions))
	}
	if len(props.Sizes) != 1 || props.Sizes[0].Cores != 2 || props.Sizes[0].RAM != 2048 {
		t.Errorf("unexpected sizes: %+v", props.Sizes)
	}
	if len(props.Images) != 1 || props.Images[0].BackendID != "ami-ubuntu" {
		t.Errorf("images_regex not applied: %+v", props.Images)
	}
}

func TestCreateVolume(t *testing.T) {
	pool := newFakePool()
	region := pool.region("eu-west-1")

	result, err := testBackend(pool, nil).CreateVolume(context.Background(), provision.VolumeSpec{
		Name:    "data-1",
		SizeGiB: 100,
		Region:  "eu-west-1",
	})
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	if result.ActionID != "volume:eu-west-1:vol-new:available" {
		t.Errorf("action handle = %q", result.ActionID)
	}
	vol := region.volumes["vol-new"]
	if awssdk.ToString(vol.AvailabilityZone) != "eu-west-1a" {
		t.Errorf("zone not derived from region: %q", awssdk.ToString(vol.AvailabilityZone))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code  string
		check func(error) bool
	}{
		{"UnauthorizedOperation", provision.IsPermissionDenied},
		{"AuthFailure", provision.IsPermissionDenied},
		{"InvalidInstanceID.NotFound", provision.IsNotFound},
		{"RequestLimitExceeded", provision.IsThrottled},
		{"ThrottlingException", provision.IsThrottled},
		{"IncorrectInstanceState", provision.IsConflict},
		{"ServiceUnavailable", provision.IsTransient},
		{"InvalidParameterValue", provision.IsPermanent},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			classified := classify("op failed", awsErr(tc.code))
			if !tc.check(classified) {
				t.Errorf("wrong class: %v", classified)
			}
		})
	}
	if !provision.IsTransient(classify("op failed", context.DeadlineExceeded)) {
		t.Error("context timeout not transient")
	}
}

func TestInstanceStates(t *testing.T) {
	tests := []struct {
		in      types.InstanceStateName
		state   provision.State
		runtime string
	}{
		{types.InstanceStateNameRunning, provision.StateOnline, "online"},
		{types.InstanceStateNamePending, provision.StateProvisioning, "provisioning"},
		{types.InstanceStateNameStopping, provision.StateStopping, "stopping"},
		{types.InstanceStateNameStopped, provision.StateOffline, "stopped"},
		{types.InstanceStateNameTerminated, provision.StateOffline, "terminated"},
		{types.InstanceStateNameShuttingDown, provision.StateErred, "shutting-down"},
	}
	for _, tc := range tests {
		state, runtime := instanceStates(tc.in)
		if state != tc.state || runtime != tc.runtime {
			t.Errorf("instanceStates(%s) = (%s, %s), want (%s, %s)",
				tc.in, state, runtime, tc.state, tc.runtime)
		}
	}
}

func TestScanRegions(t *testing.T) {
	b := testBackend(newFakePool(), map[string]string{"regions": "eu-west-1, eu-central-1"})
	got := b.scanRegions()
	if strings.Join(got, ",") != "eu-west-1,eu-central-1" {
		t.Errorf("scanRegions = %v", got)
	}

	all := testBackend(newFakePool(), map[string]string{"regions": "all"}).scanRegions()
	if len(all) != len(regionCatalog) {
		t.Errorf("regions=all returned %d regions", len(all))
	}
}

const testPublicKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIBqOL9r6giUusVAhnuBpgPEth/mpBGqClfjhe8Yrqz5l ops@cloudmast"
