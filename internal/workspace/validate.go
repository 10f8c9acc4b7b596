package workspace

import (
	"regexp"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/mufancom/remote-workspace/internal/errors"
)

// namePattern constrains project and service names, which become filesystem
// paths, compose service names and DNS aliases.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateOptions checks a create/update payload before it is persisted.
func ValidateOptions(opts Options) error {
	if opts.DisplayName == "" {
		return errors.New(errors.ErrValidation, "displayName is required")
	}
	if len(opts.Projects) == 0 {
		return errors.New(errors.ErrValidation, "at least one project is required")
	}

	seenProjects := make(map[string]bool, len(opts.Projects))
	for _, project := range opts.Projects {
		if !namePattern.MatchString(project.Name) {
			return errors.New(errors.ErrValidation, "invalid project name %q", project.Name)
		}
		if seenProjects[project.Name] {
			return errors.New(errors.ErrValidation, "duplicate project name %q", project.Name)
		}
		seenProjects[project.Name] = true

		if project.Git.URL == "" {
			return errors.New(errors.ErrValidation, "project %q has no git url", project.Name)
		}
		if _, err := transport.NewEndpoint(project.Git.URL); err != nil {
			return errors.Wrap(errors.ErrValidation, "project "+project.Name+" has an invalid git url", err)
		}
		if project.Git.Depth < 0 {
			return errors.New(errors.ErrValidation, "project %q has a negative clone depth", project.Name)
		}
	}

	seenServices := make(map[string]bool, len(opts.Services))
	for _, service := range opts.Services {
		if !namePattern.MatchString(service.Name) {
			return errors.New(errors.ErrValidation, "invalid service name %q", service.Name)
		}
		if seenServices[service.Name] {
			return errors.New(errors.ErrValidation, "duplicate service name %q", service.Name)
		}
		seenServices[service.Name] = true

		if service.Image == "" {
			return errors.New(errors.ErrValidation, "service %q has no image", service.Name)
		}
	}

	return nil
}
