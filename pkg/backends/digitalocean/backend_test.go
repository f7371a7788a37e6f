package digitalocean

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/digitalocean/godo"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// fakeAPI is a hand-rolled api implementation with canned data and
// per-call error injection.
type fakeAPI struct {
	regions  []godo.Region
	images   []godo.Image
	sizes    []godo.Size
	droplets map[int]*godo.Droplet
	actions  map[int]*godo.Action
	keys     map[string]*godo.Key

	accountErr error
	createErr  error
	actionErr  error

	nextActionID int
	createdKeys  []godo.KeyCreateRequest
	deletedIDs   []int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		droplets:     make(map[int]*godo.Droplet),
		actions:      make(map[int]*godo.Action),
		keys:         make(map[string]*godo.Key),
		nextActionID: 100,
	}
}

func godoErr(status, message string) error {
	code := http.StatusInternalServerError
	switch status {
	case "forbidden":
		code = http.StatusForbidden
	case "not_found":
		code = http.StatusNotFound
	case "rate_limited":
		code = http.StatusTooManyRequests
	case "conflict":
		code = http.StatusConflict
	case "unprocessable":
		code = http.StatusUnprocessableEntity
	}
	return &godo.ErrorResponse{
		Response: &http.Response{
			StatusCode: code,
			Request:    &http.Request{Method: "GET", URL: &url.URL{Path: "/v2"}},
		},
		Message: message,
	}
}

func (f *fakeAPI) Account(context.Context) error { return f.accountErr }

func (f *fakeAPI) ListRegions(context.Context) ([]godo.Region, error) { return f.regions, nil }
func (f *fakeAPI) ListImages(context.Context) ([]godo.Image, error)  { return f.images, nil }
func (f *fakeAPI) ListSizes(context.Context) ([]godo.Size, error)    { return f.sizes, nil }

func (f *fakeAPI) ListDroplets(context.Context) ([]godo.Droplet, error) {
	var out []godo.Droplet
	for _, d := range f.droplets {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeAPI) GetDroplet(_ context.Context, id int) (*godo.Droplet, error) {
	d, ok := f.droplets[id]
	if !ok {
		return nil, godoErr("not_found", msgNotFound)
	}
	return d, nil
}

func (f *fakeAPI) CreateDroplet(_ context.Context, req *godo.DropletCreateRequest) (*godo.Droplet, int, error) {
	if f.createErr != nil {
		return nil, 0, f.createErr
	}
	d := &godo.Droplet{ID: 42, Name: req.Name, Status: "new"}
	f.droplets[d.ID] = d
	f.nextActionID++
	return d, f.nextActionID, nil
}

func (f *fakeAPI) DeleteDroplet(_ context.Context, id int) error {
	if _, ok := f.droplets[id]; !ok {
		return godoErr("not_found", msgNotFound)
	}
	delete(f.droplets, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func (f *fakeAPI) newAction() (*godo.Action, error) {
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	f.nextActionID++
	a := &godo.Action{ID: f.nextActionID, Status: godo.ActionInProgress}
	f.actions[a.ID] = a
	return a, nil
}

func (f *fakeAPI) PowerOn(_ context.Context, _ int) (*godo.Action, error)  { return f.newAction() }
func (f *fakeAPI) Shutdown(_ context.Context, _ int) (*godo.Action, error) { return f.newAction() }
func (f *fakeAPI) Reboot(_ context.Context, _ int) (*godo.Action, error)   { return f.newAction() }

func (f *fakeAPI) Resize(_ context.Context, _ int, _ string, _ bool) (*godo.Action, error) {
	return f.newAction()
}

func (f *fakeAPI) GetAction(_ context.Context, id int) (*godo.Action, error) {
	a, ok := f.actions[id]
	if !ok {
		return nil, godoErr("not_found", msgNotFound)
	}
	return a, nil
}

func (f *fakeAPI) KeyByFingerprint(_ context.Context, fingerprint string) (*godo.Key, error) {
	k, ok := f.keys[fingerprint]
	if !ok {
		return nil, godoErr("not_found", msgNotFound)
	}
	return k, nil
}

func (f *fakeAPI) CreateKey(_ context.Context, req *godo.KeyCreateRequest) (*godo.Key, error) {
	f.createdKeys = append(f.createdKeys, *req)
	k := &godo.Key{ID: len(f.createdKeys), Name: req.Name, PublicKey: req.PublicKey}
	return k, nil
}

func (f *fakeAPI) DeleteKeyByFingerprint(_ context.Context, fingerprint string) error {
	if _, ok := f.keys[fingerprint]; !ok {
		return godoErr("not_found", msgNotFound)
	}
	delete(f.keys, fingerprint)
	return nil
}

func testBackend(f *fakeAPI) *Backend {
	return New(provision.ServiceSettings{Name: "do-main", Provider: Kind, Token: "t"}, f)
}

func TestPullProperties(t *testing.T) {
	f := newFakeAPI()
	f.regions = []godo.Region{
		{Slug: "ams3", Name: "Amsterdam 3", Available: true},
		{Slug: "sfo1", Name: "San Francisco 1", Available: false},
	}
	f.images = []godo.Image{
		{ID: 7, Name: "22.04 x64", Distribution: "Ubuntu", Type: "base", Regions: []string{"ams3"}},
	}
	f.sizes = []godo.Size{
		{Slug: "s-1vcpu-1gb", Vcpus: 1, Memory: 1024, Disk: 25, Transfer: 1.0,
			PriceHourly: 0.00893, PriceMonthly: 6.0, Available: true, Regions: []string{"ams3"}},
		{Slug: "retired", Available: false},
	}

	props, err := testBackend(f).PullProperties(context.Background())
	if err != nil {
		t.Fatalf("PullProperties: %v", err)
	}
	if len(props.Regions) != 1 || props.Regions[0].BackendID != "ams3" {
		t.Fatalf("unexpected regions: %+v", props.Regions)
	}
	if len(props.Images) != 1 || props.Images[0].Name != "Ubuntu 22.04 x64" {
		t.Fatalf("unexpected images: %+v", props.Images)
	}
	if len(props.Sizes) != 1 {
		t.Fatalf("unavailable size not filtered: %+v", props.Sizes)
	}
	size := props.Sizes[0]
	if size.Disk != 25*1024 {
		t.Errorf("disk not converted to MiB: %d", size.Disk)
	}
	if size.Transfer != 1024*1024 {
		t.Errorf("transfer not converted to MiB: %d", size.Transfer)
	}
}

func TestCreateMachine(t *testing.T) {
	f := newFakeAPI()
	key, err := provision.NewSSHKey("ops", testPublicKey)
	if err != nil {
		t.Fatalf("NewSSHKey: %v", err)
	}

	result, err := testBackend(f).CreateMachine(context.Background(), provision.MachineSpec{
		Name:    "web-1",
		Region:  "ams3",
		ImageID: "7",
		SizeID:  "s-1vcpu-1gb",
		SSHKey:  key,
	})
	if err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}
	if result.BackendID != "42" {
		t.Errorf("backend id = %q", result.BackendID)
	}
	if result.ActionID == "" {
		t.Error("create action handle missing")
	}
	if len(f.createdKeys) != 1 {
		t.Errorf("SSH key not uploaded before create: %d", len(f.createdKeys))
	}
}

func TestLifecycleActionsReturnHandles(t *testing.T) {
	f := newFakeAPI()
	f.droplets[42] = &godo.Droplet{ID: 42, Status: "active"}
	b := testBackend(f)
	ctx := context.Background()

	calls := []struct {
		name string
		call func() (string, error)
	}{
		{"start", func() (string, error) { return b.StartMachine(ctx, "42") }},
		{"stop", func() (string, error) { return b.StopMachine(ctx, "42") }},
		{"restart", func() (string, error) { return b.RestartMachine(ctx, "42") }},
		{"resize", func() (string, error) { return b.ResizeMachine(ctx, "42", "s-2vcpu-4gb") }},
	}
	for _, tc := range calls {
		handle, err := tc.call()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if handle == "" {
			t.Errorf("%s: empty action handle", tc.name)
		}
	}
}

func TestDestroyMachine(t *testing.T) {
	f := newFakeAPI()
	f.droplets[42] = &godo.Droplet{ID: 42, Status: "off"}

	handle, err := testBackend(f).DestroyMachine(context.Background(), "42")
	if err != nil {
		t.Fatalf("DestroyMachine: %v", err)
	}
	if handle != "" {
		t.Errorf("delete issued an action handle: %q", handle)
	}

	_, err = testBackend(f).DestroyMachine(context.Background(), "42")
	if !provision.IsNotFound(err) {
		t.Errorf("second destroy not classified not-found: %v", err)
	}
}

func TestGetAction(t *testing.T) {
	f := newFakeAPI()
	f.actions[1] = &godo.Action{ID: 1, Status: godo.ActionInProgress}
	f.actions[2] = &godo.Action{ID: 2, Status: godo.ActionCompleted}
	f.actions[3] = &godo.Action{ID: 3, Status: "errored"}
	b := testBackend(f)

	tests := []struct {
		handle string
		want   provision.ActionStatus
	}{
		{"1", provision.ActionPending},
		{"2", provision.ActionCompleted},
		{"3", provision.ActionFailed},
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

	if _, err := b.GetAction(context.Background(), "not-a-number"); !provision.IsPermanent(err) {
		t.Errorf("malformed handle not permanent: %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"token scope message", godoErr("forbidden", msgAccessDenied), provision.IsPermissionDenied},
		{"not found message", godoErr("forbidden", msgNotFound), provision.IsNotFound},
		{"not found status", godoErr("not_found", "gone"), provision.IsNotFound},
		{"rate limited", godoErr("rate_limited", "slow down"), provision.IsThrottled},
		{"conflict", godoErr("conflict", "pending event"), provision.IsConflict},
		{"server error", godoErr("server_error", "oops"), provision.IsTransient},
		{"unprocessable", godoErr("unprocessable", "bad size"), provision.IsPermanent},
		{"network", context.DeadlineExceeded, provision.IsTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			classified := classify("op failed", tc.err)
			if !tc.check(classified) {
				t.Errorf("wrong class: %v", classified)
			}
			if classified.Provider != Kind {
				t.Errorf("provider not set: %+v", classified)
			}
		})
	}
}

func TestEnsureKey(t *testing.T) {
	f := newFakeAPI()
	key, err := provision.NewSSHKey("ops", testPublicKey)
	if err != nil {
		t.Fatalf("NewSSHKey: %v", err)
	}
	b := testBackend(f)

	id, err := b.EnsureKey(context.Background(), *key)
	if err != nil {
		t.Fatalf("EnsureKey: %v", err)
	}
	if id == "" || len(f.createdKeys) != 1 {
		t.Fatalf("key not created: id=%q created=%d", id, len(f.createdKeys))
	}

	f.keys[key.Fingerprint] = &godo.Key{ID: 9, Name: key.Name}
	id, err = b.EnsureKey(context.Background(), *key)
	if err != nil {
		t.Fatalf("EnsureKey existing: %v", err)
	}
	if id != "9" {
		t.Errorf("existing key not reused: id=%q", id)
	}
	if len(f.createdKeys) != 1 {
		t.Errorf("duplicate key uploaded")
	}
}

func TestRemoveKeyMissingIsNoError(t *testing.T) {
	f := newFakeAPI()
	key, err := provision.NewSSHKey("ops", testPublicKey)
	if err != nil {
		t.Fatalf("NewSSHKey: %v", err)
	}
	if err := testBackend(f).RemoveKey(context.Background(), *key); err != nil {
		t.Errorf("missing key treated as error: %v", err)
	}
}

func TestDropletStates(t *testing.T) {
	tests := []struct {
		status  string
		state   provision.State
		runtime string
	}{
		{"new", provision.StateProvisioning, "provisioning"},
		{"active", provision.StateOnline, "online"},
		{"off", provision.StateOffline, "offline"},
		{"archive", provision.StateOffline, "archived"},
		{"weird", provision.StateErred, "weird"},
	}
	for _, tc := range tests {
		state, runtime := dropletStates(tc.status)
		if state != tc.state || runtime != tc.runtime {
			t.Errorf("dropletStates(%s) = (%s, %s), want (%s, %s)",
				tc.status, state, runtime, tc.state, tc.runtime)
		}
	}
}

func TestMonthlyCostEstimate(t *testing.T) {
	f := newFakeAPI()
	f.droplets[42] = &godo.Droplet{
		ID: 42, SizeSlug: "s-1vcpu-1gb",
		Size: &godo.Size{Slug: "s-1vcpu-1gb", PriceMonthly: 6.0},
	}
	cost, err := testBackend(f).MonthlyCostEstimate(context.Background(), "42")
	if err != nil {
		t.Fatalf("MonthlyCostEstimate: %v", err)
	}
	if cost != 6.0 {
		t.Errorf("cost = %v, want 6.0", cost)
	}
}

func TestPing(t *testing.T) {
	f := newFakeAPI()
	if err := testBackend(f).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	f.accountErr = godoErr("forbidden", msgAccessDenied)
	if err := testBackend(f).Ping(context.Background()); !provision.IsPermissionDenied(err) {
		t.Errorf("Ping with scoped token: %v", err)
	}
}

const testPublicKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIBqOL9r6giUusVAhnuBpgPEth/mpBGqClfjhe8Yrqz5l ops@cloudmast"
