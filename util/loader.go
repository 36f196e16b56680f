package util

import (
	"os"
	"path/filepath"
	"sort"
)

// ConfigFile represents a configuration document file.
type ConfigFile struct {
	// Path is the path to the document file.
	Path string
	// Data is the raw bytes of the document file.
	Data []byte
}

// LoadDirectoryConfigFiles reads all configuration documents from a
// directory. Only files with a recognized document extension are read;
// everything else is skipped.
//
// Arguments:
// - dir: Directory path containing document files.
//
// Returns:
// - []ConfigFile: Slice of ConfigFile ordered by path, each containing the raw bytes of a document.
// - error: Error if loading fails.
func LoadDirectoryConfigFiles(dir string) ([]ConfigFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var configs []ConfigFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		switch filepath.Ext(file.Name()) {
		case ".yml", ".yaml", ".json", ".jsonc":
			path := filepath.Join(dir, file.Name())
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil, readErr
			}
			configs = append(configs, ConfigFile{
				Path: path,
				Data: data,
			})
		}
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Path < configs[j].Path
	})

	return configs, nil
}
