package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/stomita/salesforce-migration-automatic/service"
	"github.com/stomita/salesforce-migration-automatic/service/mssql"
	"github.com/stomita/salesforce-migration-automatic/service/mysql"
	"github.com/stomita/salesforce-migration-automatic/service/postgres"
	"github.com/stomita/salesforce-migration-automatic/service/sqlite3"
	"github.com/stomita/salesforce-migration-automatic/util"
)

var version string

type globalOptions struct {
	Version bool `long:"version" description:"Show this version"`
}

// connectionOptions are shared by the load and dump subcommands.
type connectionOptions struct {
	Type     string `long:"type" description:"Backend type of the instance (postgres, mysql, sqlite3, mssql)" value-name:"type" default:"postgres"`
	User     string `short:"U" long:"user" description:"User name to connect with" value-name:"username" default:"postgres"`
	Password string `short:"W" long:"password" description:"Password to connect with, overridden by $SFMIG_PASS" value-name:"password"`
	Host     string `short:"h" long:"host" description:"Host or socket directory to connect to" value-name:"hostname" default:"127.0.0.1"`
	Port     uint   `short:"p" long:"port" description:"Port used for the connection" value-name:"port" default:"5432"`
	Prompt   bool   `long:"password-prompt" description:"Force a password prompt"`
	Verbose  bool   `long:"verbose" description:"Print every statement sent to the instance"`
}

func (o *connectionOptions) connect(database string) (service.Connection, error) {
	password, ok := os.LookupEnv("SFMIG_PASS")
	if !ok {
		password = o.Password
	}
	if o.Prompt {
		fmt.Printf("Enter Password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return nil, err
		}
		fmt.Println()
		password = string(pass)
	}

	config := service.Config{
		DbName:   database,
		User:     o.User,
		Password: password,
		Host:     o.Host,
		Port:     int(o.Port),
	}
	if _, err := os.Stat(config.Host); !os.IsNotExist(err) {
		config.Socket = config.Host
	}

	var logger service.Logger = service.NullLogger{}
	if o.Verbose {
		logger = service.StdoutLogger{}
	}

	switch o.Type {
	case "postgres":
		return postgres.NewConnection(config, logger)
	case "mysql":
		return mysql.NewConnection(config, logger)
	case "sqlite3":
		return sqlite3.NewConnection(config, logger)
	case "mssql":
		return mssql.NewConnection(config, logger)
	}
	return nil, fmt.Errorf("unknown backend type: %s", o.Type)
}

func main() {
	util.InitSlog()

	var opts globalOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] <load|dump>"
	if _, err := parser.AddCommand("load", "Load CSV exports into a target instance",
		"Load one CSV file per object into the target instance, rewriting reference ids so relationships survive the move.", &loadCommand{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if _, err := parser.AddCommand("dump", "Dump related records from a source instance as CSV",
		"Execute the seed queries and expand along reference edges until closure, writing one CSV file per query.", &dumpCommand{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Print(flagsErr.Message)
			os.Exit(0)
		}
		if opts.Version {
			fmt.Println(version)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if opts.Version {
		fmt.Println(version)
	}
}
