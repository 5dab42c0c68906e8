package ado

import (
	"errors"
	"testing"
)

func TestParseOrganization(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantOrg     string
		wantProject string
		wantHost    string
		wantErr     bool
	}{
		{name: "bare name", input: "contoso", wantOrg: "contoso", wantHost: HostDevAzure},
		{name: "bare name with spaces", input: "  contoso ", wantOrg: "contoso", wantHost: HostDevAzure},
		{name: "org URL", input: "https://dev.azure.com/contoso", wantOrg: "contoso", wantHost: HostDevAzure},
		{name: "org URL trailing slash", input: "https://dev.azure.com/contoso/", wantOrg: "contoso", wantHost: HostDevAzure},
		{name: "project URL", input: "https://dev.azure.com/contoso/Platform%20Team", wantOrg: "contoso", wantProject: "Platform Team", wantHost: HostDevAzure},
		{name: "legacy host", input: "https://contoso.visualstudio.com", wantOrg: "contoso", wantHost: "contoso.visualstudio.com"},
		{name: "legacy host with project", input: "https://contoso.visualstudio.com/Platform", wantOrg: "contoso", wantProject: "Platform", wantHost: "contoso.visualstudio.com"},
		{name: "clone URL", input: "https://dev.azure.com/contoso/Platform/_git/billing", wantOrg: "contoso", wantProject: "Platform", wantHost: HostDevAzure},
		{name: "ssh clone URL", input: "git@ssh.dev.azure.com:v3/contoso/Platform/billing", wantOrg: "contoso", wantProject: "Platform", wantHost: HostSSHDevAzure},
		{name: "empty", input: "", wantErr: true},
		{name: "not a name", input: "contoso/platform", wantErr: true},
		{name: "github URL", input: "https://github.com/contoso", wantErr: true},
		{name: "no org segment", input: "https://dev.azure.com/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseOrganization(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseOrganization(%q) = %+v, want error", tt.input, loc)
				}
				if !errors.Is(err, ErrInvalidLocation) {
					t.Errorf("error %v does not wrap ErrInvalidLocation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOrganization(%q) error = %v", tt.input, err)
			}
			if loc.Organization != tt.wantOrg {
				t.Errorf("Organization = %q, want %q", loc.Organization, tt.wantOrg)
			}
			if loc.Project != tt.wantProject {
				t.Errorf("Project = %q, want %q", loc.Project, tt.wantProject)
			}
			if loc.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", loc.Host, tt.wantHost)
			}
		})
	}
}

func TestParseRemote(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		want    string
		wantErr bool
	}{
		{name: "https", remote: "https://dev.azure.com/contoso/Platform/_git/billing", want: "contoso/Platform/billing"},
		{name: "https with user", remote: "https://contoso@dev.azure.com/contoso/Platform/_git/billing", want: "contoso/Platform/billing"},
		{name: "legacy", remote: "https://contoso.visualstudio.com/Platform/_git/billing.git", want: "contoso/Platform/billing"},
		{name: "ssh", remote: "git@ssh.dev.azure.com:v3/contoso/Platform/billing", want: "contoso/Platform/billing"},
		{name: "escaped project", remote: "https://dev.azure.com/contoso/Platform%20Team/_git/billing", want: "contoso/Platform Team/billing"},
		{name: "missing _git", remote: "https://dev.azure.com/contoso/Platform/billing", wantErr: true},
		{name: "github", remote: "https://github.com/contoso/billing", wantErr: true},
		{name: "garbage", remote: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseRemote(tt.remote)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRemote(%q) error = %v, wantErr %v", tt.remote, err, tt.wantErr)
			}
			if err == nil && loc.Slug() != tt.want {
				t.Errorf("Slug() = %q, want %q", loc.Slug(), tt.want)
			}
		})
	}
}

func TestLocation_OrganizationURL(t *testing.T) {
	tests := []struct {
		name    string
		loc     Location
		baseURL string
		want    string
	}{
		{name: "cloud default", loc: Location{Organization: "contoso", Host: HostDevAzure}, want: "https://dev.azure.com/contoso"},
		{name: "legacy host", loc: Location{Organization: "contoso", Host: "contoso.visualstudio.com"}, want: "https://contoso.visualstudio.com"},
		{name: "server base", loc: Location{Organization: "DefaultCollection"}, baseURL: "https://ado.internal/tfs/", want: "https://ado.internal/tfs/DefaultCollection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.OrganizationURL(tt.baseURL); got != tt.want {
				t.Errorf("OrganizationURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsHost(t *testing.T) {
	for host, want := range map[string]bool{
		"dev.azure.com":            true,
		"ssh.dev.azure.com":        true,
		"Contoso.VisualStudio.com": true,
		"github.com":               false,
		"":                         false,
	} {
		if got := IsHost(host); got != want {
			t.Errorf("IsHost(%q) = %v, want %v", host, got, want)
		}
	}
}
