package utils

import (
	"fmt"
	"os"
	"sort"
)

//ListDir returns the sorted names of the entries in given path
func ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("ListDir: Error, got '%v'", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return names, nil
}

//DirSize returns the total size in bytes of the regular files directly under path
func DirSize(path string) (int64, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, fmt.Errorf("DirSize: Error, got '%v'", err)
	}

	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, fmt.Errorf("DirSize: Error, got '%v'", err)
		}
		total += info.Size()
	}

	return total, nil
}
