package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FranksOps/wisher/internal/cache"
	"github.com/FranksOps/wisher/internal/game"
)

// ErrGamePathMissing is returned when the installation root does not exist.
var ErrGamePathMissing = errors.New("install: game path does not exist")

const dataDirSuffix = "_Data"

// Web cache locations below a data directory. Newer clients insert a version
// directory after webCaches.
var (
	cacheLayout          = filepath.Join("webCaches", "Cache", "Cache_Data", cache.DataFileName)
	versionedCacheLayout = filepath.Join("webCaches", "*", "Cache", "Cache_Data", cache.DataFileName)
)

// DataFile is a cache data file found below an installation.
type DataFile struct {
	// Dir is the name of the *_Data directory, e.g. "StarRail_Data".
	Dir       string
	Path      string
	Game      game.Game
	GameKnown bool
}

// FindDataFiles lists the cache data files of every *_Data directory directly
// below root. Files are returned sorted by path.
func FindDataFiles(root string) ([]DataFile, error) {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrGamePathMissing, root)
		}
		return nil, fmt.Errorf("install: %w", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("install: %w", err)
	}

	var files []DataFile
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), dataDirSuffix) {
			continue
		}
		dataDir := filepath.Join(root, entry.Name())
		g, known := game.FromDataDir(entry.Name())

		for _, path := range cachePaths(dataDir) {
			files = append(files, DataFile{
				Dir:       entry.Name(),
				Path:      path,
				Game:      g,
				GameKnown: known,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func cachePaths(dataDir string) []string {
	var paths []string
	if p := filepath.Join(dataDir, cacheLayout); isFile(p) {
		paths = append(paths, p)
	}
	matches, _ := filepath.Glob(filepath.Join(dataDir, versionedCacheLayout))
	for _, p := range matches {
		if isFile(p) {
			paths = append(paths, p)
		}
	}
	return paths
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
