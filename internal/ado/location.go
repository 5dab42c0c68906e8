// Package ado normalizes the ways an Azure DevOps organization, project or
// repository can be written: a bare name, an organization URL, or a Git remote.
package ado

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	HostDevAzure       = "dev.azure.com"
	HostSSHDevAzure    = "ssh.dev.azure.com"
	SuffixVisualStudio = ".visualstudio.com"

	// DefaultBaseURL is the cloud service root; organization URLs are built under it.
	DefaultBaseURL = "https://" + HostDevAzure

	gitSegment = "_git"
)

var ErrInvalidLocation = errors.New("invalid Azure DevOps location")

// Location is an organization with optional project and repository.
type Location struct {
	Organization string
	Project      string
	Repository   string
	// Host is dev.azure.com, ssh.dev.azure.com or {org}.visualstudio.com.
	Host string
}

var (
	// git@ssh.dev.azure.com:v3/{org}/{project}/{repo}
	sshRemote = regexp.MustCompile(`^git@ssh\.dev\.azure\.com:v3/([^/]+)/([^/]+)/([^/\s]+)$`)
	orgName   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// IsHost reports whether host serves Azure DevOps.
func IsHost(host string) bool {
	host = strings.ToLower(host)
	return host == HostDevAzure || host == HostSSHDevAzure || strings.HasSuffix(host, SuffixVisualStudio)
}

// ParseOrganization accepts what users put in AZURE_ORG: a bare organization
// name, https://dev.azure.com/{org}[/{project}], the legacy
// https://{org}.visualstudio.com[/{project}] form, or a clone URL of any
// repository in the project.
func ParseOrganization(value string) (*Location, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty organization", ErrInvalidLocation)
	}
	if sshRemote.MatchString(value) || strings.Contains(value, "/"+gitSegment+"/") {
		return ParseRemote(value)
	}

	if !strings.Contains(value, "://") {
		if !orgName.MatchString(value) {
			return nil, fmt.Errorf("%w: %q is not an organization name", ErrInvalidLocation, value)
		}
		return &Location{Organization: value, Host: HostDevAzure}, nil
	}

	u, err := url.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	host := strings.ToLower(u.Hostname())
	segments := splitPath(u.Path)

	switch {
	case host == HostDevAzure:
		if len(segments) == 0 {
			return nil, fmt.Errorf("%w: %q has no organization segment", ErrInvalidLocation, value)
		}
		loc := &Location{Organization: segments[0], Host: HostDevAzure}
		if len(segments) > 1 && segments[1] != gitSegment {
			loc.Project = segments[1]
		}
		return loc, nil
	case strings.HasSuffix(host, SuffixVisualStudio):
		loc := &Location{Organization: strings.TrimSuffix(host, SuffixVisualStudio), Host: host}
		if len(segments) > 0 && segments[0] != gitSegment {
			loc.Project = segments[0]
		}
		return loc, nil
	default:
		return nil, fmt.Errorf("%w: %q is not an Azure DevOps host", ErrInvalidLocation, host)
	}
}

// ParseRemote extracts organization, project and repository from a Git remote
// URL as returned in GitRepository.RemoteUrl or SshUrl.
func ParseRemote(remote string) (*Location, error) {
	remote = strings.TrimSpace(remote)
	if m := sshRemote.FindStringSubmatch(remote); m != nil {
		return &Location{
			Organization: m[1],
			Project:      m[2],
			Repository:   strings.TrimSuffix(m[3], ".git"),
			Host:         HostSSHDevAzure,
		}, nil
	}

	u, err := url.Parse(remote)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not a remote URL", ErrInvalidLocation, remote)
	}
	host := strings.ToLower(u.Hostname())
	segments := splitPath(u.Path)

	// dev.azure.com/{org}/{project}/_git/{repo}
	if host == HostDevAzure && len(segments) >= 4 && segments[2] == gitSegment {
		return &Location{
			Organization: segments[0],
			Project:      segments[1],
			Repository:   strings.TrimSuffix(segments[3], ".git"),
			Host:         HostDevAzure,
		}, nil
	}
	// {org}.visualstudio.com/{project}/_git/{repo}
	if strings.HasSuffix(host, SuffixVisualStudio) && len(segments) >= 3 && segments[1] == gitSegment {
		return &Location{
			Organization: strings.TrimSuffix(host, SuffixVisualStudio),
			Project:      segments[0],
			Repository:   strings.TrimSuffix(segments[2], ".git"),
			Host:         host,
		}, nil
	}

	return nil, fmt.Errorf("%w: expected https://dev.azure.com/{org}/{project}/_git/{repo}, got %q", ErrInvalidLocation, remote)
}

// OrganizationURL returns the URL the REST connection is opened against.
// baseURL overrides the cloud root for Azure DevOps Server installations.
func (l *Location) OrganizationURL(baseURL string) string {
	if baseURL == "" {
		if strings.HasSuffix(l.Host, SuffixVisualStudio) {
			return "https://" + l.Host
		}
		baseURL = DefaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + url.PathEscape(l.Organization)
}

// Slug returns org/project/repo with empty trailing parts omitted.
func (l *Location) Slug() string {
	parts := []string{l.Organization}
	if l.Project != "" {
		parts = append(parts, l.Project)
		if l.Repository != "" {
			parts = append(parts, l.Repository)
		}
	}
	return strings.Join(parts, "/")
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(strings.Trim(p, "/"), "/") {
		if s == "" {
			continue
		}
		if un, err := url.PathUnescape(s); err == nil {
			s = un
		}
		out = append(out, s)
	}
	return out
}
