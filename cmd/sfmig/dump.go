package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/k0kubun/pp/v3"

	sfmig "github.com/stomita/salesforce-migration-automatic"
	"github.com/stomita/salesforce-migration-automatic/dumper"
)

type dumpCommand struct {
	connectionOptions
	Namespace    string `long:"namespace" description:"Default namespace for object and field lookup" value-name:"ns"`
	Queries      string `long:"queries" description:"YAML file with dump queries" value-name:"filename" required:"yes"`
	OutDir       string `long:"out-dir" description:"Directory to write one CSV file per query into" value-name:"dir" default:"."`
	IDMap        string `long:"id-map" description:"CSV id map used to rewrite ids back to source ids" value-name:"filename"`
	MaxFetchSize int    `long:"max-fetch-size" description:"Upper bound of records fetched by a single query" value-name:"n" default:"10000"`
	Debug        bool   `long:"debug" description:"Pretty-print the parsed dump queries"`
	Args         struct {
		Database string `positional-arg-name:"database" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *dumpCommand) Execute(args []string) error {
	queries, err := readQueriesFile(cmd.Queries)
	if err != nil {
		return err
	}
	if cmd.Debug {
		pp.Println(queries)
	}

	idMap, err := readIDMapFile(cmd.IDMap)
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

	csvs, err := sfmig.DumpAsCSV(ctx, conn, queries, sfmig.DumpOptions{
		DefaultNamespace: cmd.Namespace,
		MaxFetchSize:     cmd.MaxFetchSize,
		IDMap:            idMap,
		ReportProgress: func(p dumper.Progress) {
			fmt.Printf("-- Fetched %d records --\n", p.FetchedCount)
		},
	})
	if err != nil {
		return err
	}

	for i, data := range csvs {
		path := filepath.Join(cmd.OutDir, queries[i].Object+".csv")
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}
