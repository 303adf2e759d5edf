// Package storage implements the Storage Resolver: picking a writable
// target directory for a request, honoring overwrite policy, and validating
// free space before the engine commits to a download.
package storage

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/mirajabi/dlengine/internal/diskspace"
	"github.com/mirajabi/dlengine/internal/model"
)

// Resolver turns a request and its storage configuration into a concrete
// StorageResolution, or a Storage EngineError.
type Resolver struct {
	// AppDataDir is the app-internal base directory used for the last Auto
	// candidate and for Scoped destinations. Tests override this; production
	// callers leave it empty and get the platform default.
	AppDataDir string
}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve performs every check in spec order. In dry-run mode (preview),
// destructive steps (deleting an existing file, creating the empty target)
// are skipped, but every validation still runs.
func (r *Resolver) Resolve(cfg model.StorageConfig, req model.Request, dryRun bool) (model.StorageResolution, *model.EngineError) {
	dir, err := r.pickDirectory(cfg, req)
	if err != nil {
		return model.StorageResolution{}, model.NewStorageError("no writable directory", err)
	}

	target := filepath.Join(dir, req.FileName)

	overwrote := false
	if info, statErr := os.Stat(target); statErr == nil && !info.IsDir() {
		if !cfg.OverwriteExisting {
			return model.StorageResolution{}, model.NewStorageError("exists & overwrite disabled", nil)
		}
		overwrote = true
		if !dryRun {
			if rmErr := os.Remove(target); rmErr != nil {
				return model.StorageResolution{}, model.NewStorageError("failed to remove existing file", rmErr)
			}
		}
	}

	if cfg.ValidateFreeSpace {
		if spaceErr := diskspace.CheckAvailableSpace(target, cfg.MinFreeSpaceBytes, 1.0, req.ID); spaceErr != nil {
			return model.StorageResolution{}, model.NewStorageError("insufficient space", spaceErr)
		}
	}

	if !dryRun {
		f, createErr := os.OpenFile(target, os.O_CREATE|os.O_WRONLY, 0o644)
		if createErr != nil {
			return model.StorageResolution{}, model.NewStorageError("failed to create target file", createErr)
		}
		f.Close()
	}

	return model.StorageResolution{
		Directory:         dir,
		File:              target,
		OverwroteExisting: overwrote,
	}, nil
}

// pickDirectory walks the ordered destination candidates, returning the
// first that exists-and-is-writable or can be created.
func (r *Resolver) pickDirectory(cfg model.StorageConfig, req model.Request) (string, error) {
	destinations := cfg.Destinations
	if len(destinations) == 0 {
		destinations = []model.Destination{model.AutoDestination()}
	}

	var lastErr error
	for _, dest := range destinations {
		candidates := r.candidatesFor(dest)
		for _, dir := range candidates {
			if ensureWritable(dir) == nil {
				return dir, nil
			}
			lastErr = os.ErrPermission
		}
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return "", lastErr
}

// candidatesFor expands one Destination into the ordered list of concrete
// directories to try, mirroring the platform fallback chain: an
// external-downloads-like directory, then documents-like, then an
// app-internal downloads subfolder.
func (r *Resolver) candidatesFor(dest model.Destination) []string {
	switch dest.Kind {
	case model.DestinationCustom:
		return []string{dest.Path}
	case model.DestinationScoped:
		return []string{filepath.Join(r.appBase(), dest.Path)}
	default: // Auto
		home, _ := os.UserHomeDir()
		var out []string
		if home != "" {
			out = append(out, filepath.Join(home, "Downloads"))
			out = append(out, documentsDir(home))
		}
		out = append(out, filepath.Join(r.appBase(), "downloads"))
		return out
	}
}

func (r *Resolver) appBase() string {
	if r.AppDataDir != "" {
		return r.AppDataDir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "dlengine")
	}
	return filepath.Join(os.TempDir(), "dlengine")
}

func documentsDir(home string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(home, "Documents")
	}
	return filepath.Join(home, "Documents")
}

// ensureWritable returns nil if dir exists and is writable, or can be
// created via MkdirAll.
func ensureWritable(dir string) error {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return os.ErrInvalid
		}
		probe := filepath.Join(dir, ".dlengine-write-probe")
		f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		f.Close()
		os.Remove(probe)
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
