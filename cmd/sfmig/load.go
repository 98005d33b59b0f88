package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/k0kubun/pp/v3"

	sfmig "github.com/stomita/salesforce-migration-automatic"
	"github.com/stomita/salesforce-migration-automatic/loader"
)

type loadCommand struct {
	connectionOptions
	Namespace string `long:"namespace" description:"Default namespace for object and field lookup" value-name:"ns"`
	Mapping   string `long:"mapping" description:"YAML file with mapping policies" value-name:"filename"`
	IDMap     string `long:"id-map" description:"CSV file seeding the source-to-target id map" value-name:"filename"`
	OutIDMap  string `long:"out-id-map" description:"Write the final id map to this CSV file" value-name:"filename"`
	TargetIDs string `long:"target-ids" description:"File with one source id per line to restrict the upload" value-name:"filename"`
	Debug     bool   `long:"debug" description:"Pretty-print the parsed mapping policies"`
	Args      struct {
		Database string   `positional-arg-name:"database" required:"yes"`
		Files    []string `positional-arg-name:"csv-file" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *loadCommand) Execute(args []string) error {
	inputs, err := readUploadInputs(cmd.Args.Files)
	if err != nil {
		return err
	}

	var policies []loader.MappingPolicy
	if cmd.Mapping != "" {
		policies, err = readMappingFile(cmd.Mapping)
		if err != nil {
			return err
		}
	}
	if cmd.Debug {
		pp.Println(policies)
	}

	seedIDMap, err := readIDMapFile(cmd.IDMap)
	if err != nil {
		return err
	}
	targetIDs, err := readLines(cmd.TargetIDs)
	if err != nil {
		return err
	}

	conn, err := cmd.connect(cmd.Args.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	status, err := sfmig.LoadCSVData(ctx, conn, inputs, sfmig.UploadOptions{
		DefaultNamespace: cmd.Namespace,
		MappingPolicies:  policies,
		IDMap:            seedIDMap,
		TargetIDs:        targetIDs,
		ReportProgress: func(p loader.Progress) {
			fmt.Printf("-- Uploaded %d/%d (%d failed) --\n", p.SuccessCount, p.TotalCount, p.FailureCount)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("Loaded %d of %d records (%d failed, %d blocked)\n",
		len(status.Successes), status.TotalCount, len(status.Failures), len(status.Blocked))
	for _, failure := range status.Failures {
		fmt.Printf("  failed %s %s: %s\n", failure.Object, failure.OrigID, strings.Join(failure.Errors, "; "))
	}
	for _, blocked := range status.Blocked {
		if blocked.BlockingField != "" {
			fmt.Printf("  blocked %s %s on %s = %s\n", blocked.Object, blocked.OrigID, blocked.BlockingField, blocked.BlockingID)
		} else {
			fmt.Printf("  skipped %s %s (out of target scope)\n", blocked.Object, blocked.OrigID)
		}
	}

	if cmd.OutIDMap != "" {
		if err := writeIDMapFile(cmd.OutIDMap, status.IDMap); err != nil {
			return err
		}
	}
	return nil
}

// readUploadInputs reads each CSV file, deriving the object name from the
// file's base name, or from an explicit "Object:file.csv" argument.
func readUploadInputs(files []string) ([]sfmig.UploadInput, error) {
	inputs := make([]sfmig.UploadInput, 0, len(files))
	for _, arg := range files {
		object, file, ok := strings.Cut(arg, ":")
		if !ok {
			file = arg
			object = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, sfmig.UploadInput{Object: object, CSVData: string(data)})
	}
	return inputs, nil
}
