//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const bin = "./" + binDir + "/" + binName

// Extract groups targets that run the pipeline with the built binary.
type Extract mg.Namespace

// Run extracts every configured field from the papers directory.
func (Extract) Run() error {
	mg.Deps(Build)
	return sh.RunV(bin, "run")
}

// Force recomputes every index and field, ignoring the cache.
func (Extract) Force() error {
	mg.Deps(Build)
	return sh.RunV(bin, "run", "--force")
}

// DryRun runs the pipeline without writing the cache or the output file.
func (Extract) DryRun() error {
	mg.Deps(Build)
	return sh.RunV(bin, "run", "--dry-run")
}

// Fields validates the field configuration.
func (Extract) Fields() error {
	mg.Deps(Build)
	return sh.RunV(bin, "fields", "validate")
}

// Cache groups cache maintenance targets.
type Cache mg.Namespace

// Status lists cached papers and recent runs.
func (Cache) Status() error {
	mg.Deps(Build)
	return sh.RunV(bin, "cache", "status")
}

// Clear deletes every cached index and answer.
func (Cache) Clear() error {
	mg.Deps(Build)
	return sh.RunV(bin, "cache", "clear", "--all")
}
