package commands

import (
	"context"
	"testing"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

type fakeGaugeSource struct {
	resources []provision.Resource
	alerts    []provision.Alert
}

func (f *fakeGaugeSource) ListResources(context.Context, string) ([]provision.Resource, error) {
	return f.resources, nil
}

func (f *fakeGaugeSource) OpenAlerts(context.Context, string) ([]provision.Alert, error) {
	return f.alerts, nil
}

type fakeGaugeSink struct {
	resourceCounts map[string]float64
	alertCounts    map[string]float64
}

func newFakeGaugeSink() *fakeGaugeSink {
	return &fakeGaugeSink{
		resourceCounts: make(map[string]float64),
		alertCounts:    make(map[string]float64),
	}
}

func (f *fakeGaugeSink) SetResourceCount(provider string, state provision.State, count float64) {
	f.resourceCounts[provider+"/"+string(state)] = count
}

func (f *fakeGaugeSink) SetOpenAlerts(kind provision.AlertKind, service string, count float64) {
	f.alertCounts[string(kind)+"/"+service] = count
}

func TestUpdateGaugesCountsByProviderStateAndAlertKind(t *testing.T) {
	source := &fakeGaugeSource{
		resources: []provision.Resource{
			{ID: "r1", Provider: "digitalocean", State: provision.StateOnline},
			{ID: "r2", Provider: "digitalocean", State: provision.StateOnline},
			{ID: "r3", Provider: "digitalocean", State: provision.StateErred},
			{ID: "r4", Provider: "aws", State: provision.StateOnline},
		},
		alerts: []provision.Alert{
			{ID: "a1", Kind: provision.AlertTokenScope, Service: "do-prod"},
			{ID: "a2", Kind: provision.AlertTokenScope, Service: "aws-prod"},
		},
	}
	sink := newFakeGaugeSink()

	updateGauges(context.Background(), source, sink)

	if got := sink.resourceCounts["digitalocean/online"]; got != 2 {
		t.Errorf("digitalocean online count = %v, want 2", got)
	}
	if got := sink.resourceCounts["digitalocean/erred"]; got != 1 {
		t.Errorf("digitalocean erred count = %v, want 1", got)
	}
	if got := sink.resourceCounts["aws/online"]; got != 1 {
		t.Errorf("aws online count = %v, want 1", got)
	}
	if got := sink.alertCounts["token_scope/do-prod"]; got != 1 {
		t.Errorf("do-prod token scope count = %v, want 1", got)
	}
	if got := sink.alertCounts["token_scope/aws-prod"]; got != 1 {
		t.Errorf("aws-prod token scope count = %v, want 1", got)
	}
}
