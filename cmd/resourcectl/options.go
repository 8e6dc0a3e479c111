package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/goliatone/go-resource-cache/query"
)

type options struct {
	configPath string
	envFile    string
	backendURL string
	token      string
	scope      string

	search  string
	sort    string
	status  string
	page    int
	perPage int
	filters map[string]string

	data       string
	output     string
	exportPath string
	stats      bool
}

const (
	outputJSON  = "json"
	outputTable = "table"
)

func newOptions() (*options, *pflag.FlagSet) {
	o := &options{}
	fs := pflag.NewFlagSet("resourcectl", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: resourcectl [flags] <resources|list|get|document|create|update|patch|delete|invalidate> [resource] [id]")
		fs.PrintDefaults()
	}

	fs.StringVarP(&o.configPath, "config", "c", "", "path to the YAML configuration file")
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	fs.StringVar(&o.backendURL, "url", "", "backend root URL (overrides backend.url)")
	fs.StringVar(&o.token, "token", "", "bearer token (overrides session.token)")
	fs.StringVar(&o.scope, "scope", "", "business unit (overrides session.scope)")

	fs.StringVarP(&o.search, "search", "s", "", "free text search")
	fs.StringVar(&o.sort, "sort", "", "sort as field or field:desc")
	fs.StringVar(&o.status, "status", "", "status filter")
	fs.IntVar(&o.page, "page", 0, "page number")
	fs.IntVar(&o.perPage, "perpage", 0, "records per page, -1 for all")
	fs.StringToStringVarP(&o.filters, "filter", "f", nil, "resource specific filters, e.g. category=CAT-001")

	fs.StringVarP(&o.data, "data", "d", "", "JSON payload, or @file to read it from a file")
	fs.StringVarP(&o.output, "output", "o", outputJSON, "output format: json or table")
	fs.StringVar(&o.exportPath, "export", "", "write the listed page to an .xlsx workbook")
	fs.BoolVar(&o.stats, "stats", false, "print cache and request counters after the command")
	return o, fs
}

// params builds list parameters from the filter flags.
func (o *options) params() (query.Params, error) {
	p := query.Params{
		Search: o.search,
		Status: o.status,
		Extra:  o.filters,
	}
	if o.sort != "" {
		s, err := query.ParseSort(o.sort)
		if err != nil {
			return query.Params{}, err
		}
		p.Sort = s
	}
	if o.page != 0 {
		p.Page = query.Int(o.page)
	}
	if o.perPage != 0 {
		p.PerPage = query.Int(o.perPage)
	}
	return p, nil
}

// payload returns the raw JSON body named by --data.
func (o *options) payload() ([]byte, error) {
	if o.data == "" {
		return nil, errors.New("--data is required")
	}
	if path, ok := strings.CutPrefix(o.data, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(o.data), nil
}

type command struct {
	name     string
	resource string
	id       string
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New("missing command")
	}
	cmd := command{name: args[0]}

	var want int
	switch cmd.name {
	case "resources":
		want = 1
	case "list", "document", "create", "invalidate":
		want = 2
	case "get", "update", "patch", "delete":
		want = 3
	default:
		return command{}, fmt.Errorf("unknown command %q", cmd.name)
	}
	if len(args) != want {
		return command{}, fmt.Errorf("%s takes %d argument(s), got %d", cmd.name, want-1, len(args)-1)
	}
	if want > 1 {
		cmd.resource = args[1]
	}
	if want > 2 {
		cmd.id = args[2]
	}
	return cmd, nil
}
