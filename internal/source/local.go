package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"dicompreset/internal/blob"
	"dicompreset/internal/observability"
)

// LocalSource reads user-selected files. Directories are expanded
// recursively. Content is not checked: any file is accepted, and the .dcm
// extension is only a hint.
type LocalSource struct {
	Paths   []string
	Options Options
}

// Kind implements Source.
func (l LocalSource) Kind() string { return "local" }

// Collect reads every selected file, skipping empty ones.
func (l LocalSource) Collect(ctx context.Context) ([]Blob, error) {
	stores := make(map[string]blob.Store)
	storeFor := func(dir string) (blob.Store, error) {
		if s, ok := stores[dir]; ok {
			return s, nil
		}
		s, err := blob.NewFilesystem(dir)
		if err != nil {
			return nil, err
		}
		stores[dir] = s
		return s, nil
	}

	var jobs []fetchJob
	for _, p := range l.Paths {
		st, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		if !st.IsDir() {
			if st.Size() == 0 {
				continue
			}
			store, err := storeFor(filepath.Dir(p))
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
			}
			name := filepath.Base(p)
			jobs = append(jobs, fetchJob{store: store, key: name, blob: Blob{Key: filepath.ToSlash(p), Name: name}})
			continue
		}
		store, err := storeFor(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		infos, err := store.List(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %w", ErrSourceUnavailable, p, err)
		}
		for _, info := range infos {
			if info.Size <= 0 {
				continue
			}
			key := path.Join(filepath.ToSlash(p), info.Key)
			jobs = append(jobs, fetchJob{store: store, key: info.Key, blob: Blob{Key: key, Name: BaseName(info.Key)}})
		}
	}
	observability.OrDefault(l.Options.Logger).Info("selected local files", "paths", len(l.Paths), "files", len(jobs))
	return gather(ctx, jobs, l.Options)
}

// Local collects blobs from the given files and directories.
func Local(ctx context.Context, paths []string, opts Options) ([]Blob, error) {
	return LocalSource{Paths: paths, Options: opts}.Collect(ctx)
}
