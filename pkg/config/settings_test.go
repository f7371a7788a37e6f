package config

import (
	"encoding/json"
	"testing"
)

func TestServiceConfig_ToSettings(t *testing.T) {
	tests := []struct {
		name    string
		service ServiceConfig
		check   func(*testing.T, map[string]string, string, string, string)
	}{
		{
			name: "digitalocean token",
			service: ServiceConfig{
				Name:        "do-prod",
				Provider:    "digitalocean",
				Credentials: CredentialsConfig{Token: "dop_v1_secret"},
				Options:     json.RawMessage(`{"images_regex": "^ubuntu"}`),
			},
			check: func(t *testing.T, opts map[string]string, token, user, pass string) {
				if token != "dop_v1_secret" {
					t.Errorf("expected token, got %q", token)
				}
				if opts["images_regex"] != "^ubuntu" {
					t.Errorf("expected images_regex option, got %q", opts["images_regex"])
				}
			},
		},
		{
			name: "aws key pair lands in username and password",
			service: ServiceConfig{
				Name:     "aws-prod",
				Provider: "aws",
				Credentials: CredentialsConfig{
					AccessKey: "AKIAEXAMPLE",
					SecretKey: "wJalrXUtnFEMI",
				},
				Regions: []string{"us-east-1", "eu-west-1"},
			},
			check: func(t *testing.T, opts map[string]string, token, user, pass string) {
				if user != "AKIAEXAMPLE" || pass != "wJalrXUtnFEMI" {
					t.Errorf("unexpected credentials %q / %q", user, pass)
				}
				if opts["regions"] != "us-east-1,eu-west-1" {
					t.Errorf("expected regions option, got %q", opts["regions"])
				}
			},
		},
		{
			name: "azure service principal",
			service: ServiceConfig{
				Name:     "az-prod",
				Provider: "azure",
				Credentials: CredentialsConfig{
					SubscriptionID: "sub-1",
					TenantID:       "tenant-1",
					ClientID:       "client-1",
					ClientSecret:   "secret-1",
					ResourceGroup:  "rg-prod",
				},
				Options: json.RawMessage(`{"location": "northeurope"}`),
			},
			check: func(t *testing.T, opts map[string]string, token, user, pass string) {
				if user != "client-1" || pass != "secret-1" {
					t.Errorf("unexpected credentials %q / %q", user, pass)
				}
				if opts["subscription_id"] != "sub-1" || opts["tenant_id"] != "tenant-1" || opts["resource_group"] != "rg-prod" {
					t.Errorf("unexpected azure options: %v", opts)
				}
				if opts["location"] != "northeurope" {
					t.Errorf("expected location option, got %q", opts["location"])
				}
			},
		},
		{
			name: "explicit regions option wins over regions list",
			service: ServiceConfig{
				Name:        "aws-dev",
				Provider:    "aws",
				Credentials: CredentialsConfig{AccessKey: "a", SecretKey: "b"},
				Regions:     []string{"us-east-1"},
				Options:     json.RawMessage(`{"regions": "all"}`),
			},
			check: func(t *testing.T, opts map[string]string, token, user, pass string) {
				if opts["regions"] != "all" {
					t.Errorf("expected regions 'all', got %q", opts["regions"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := tt.service.ToSettings()
			if settings.Name != tt.service.Name {
				t.Errorf("expected name %q, got %q", tt.service.Name, settings.Name)
			}
			if settings.Provider != tt.service.Provider {
				t.Errorf("expected provider %q, got %q", tt.service.Provider, settings.Provider)
			}
			tt.check(t, settings.Options, settings.Token, settings.Username, settings.Password)
		})
	}
}
