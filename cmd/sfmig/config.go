package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stomita/salesforce-migration-automatic/dumper"
	"github.com/stomita/salesforce-migration-automatic/loader"
)

// readMappingFile parses a YAML mapping-policy file keyed by object name:
//
//	Account:
//	  keyFields: [Name, Website]
//	User:
//	  defaultMapping: "005000000000001"
func readMappingFile(path string) ([]loader.MappingPolicy, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	byObject := map[string]loader.MappingPolicy{}
	if err := dec.Decode(&byObject); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	objects := make([]string, 0, len(byObject))
	for object := range byObject {
		objects = append(objects, object)
	}
	sort.Strings(objects)

	policies := make([]loader.MappingPolicy, 0, len(byObject))
	for _, object := range objects {
		policy := byObject[object]
		policy.Object = object
		policies = append(policies, policy)
	}
	return policies, nil
}

// readQueriesFile parses a YAML list of dump queries.
func readQueriesFile(path string) ([]dumper.Query, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	var queries []dumper.Query
	if err := dec.Decode(&queries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return queries, nil
}

// readIDMapFile reads a two-column CSV of source,target id pairs. An empty
// path yields a nil map.
func readIDMapFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows, err := csv.NewReader(bytes.NewReader(buf)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	idMap := make(map[string]string, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%s: id map rows need source and target columns", path)
		}
		idMap[row[0]] = row[1]
	}
	return idMap, nil
}

func writeIDMapFile(path string, idMap *loader.IDMap) error {
	var b strings.Builder
	w := csv.NewWriter(&b)
	idMap.Each(func(sourceID, targetID string) bool {
		_ = w.Write([]string{sourceID, targetID})
		return true
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// readLines reads one entry per line, skipping blanks. An empty path yields
// nil.
func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(buf), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}
