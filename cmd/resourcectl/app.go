package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-resource-cache/config"
	"github.com/goliatone/go-resource-cache/export"
	"github.com/goliatone/go-resource-cache/pkg/di"
	"github.com/goliatone/go-resource-cache/query"
	"github.com/goliatone/go-resource-cache/resourcecache"
	"github.com/goliatone/go-resource-cache/session"
)

// record is the shape every resource is read into; the CLI does not know
// the catalog types.
type record = map[string]any

type app struct {
	opts      *options
	out       io.Writer
	container *di.Container
	session   session.Session
}

func newApp(ctx context.Context, opts *options, out io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.backendURL != "" {
		cfg.Backend.URL = opts.backendURL
	}
	if opts.token != "" {
		cfg.Session.Token = opts.token
	}
	if opts.scope != "" {
		cfg.Session.Scope = opts.scope
	}
	if opts.stats {
		cfg.Metrics.Enabled = true
	}
	if opts.output != outputJSON && opts.output != outputTable {
		return nil, fmt.Errorf("unknown output %q", opts.output)
	}

	container, err := di.FromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &app{
		opts:      opts,
		out:       out,
		container: container,
		session:   cfg.SessionValue(),
	}, nil
}

func (a *app) close() {
	if err := a.container.Close(); err != nil {
		a.container.Logger().Warn("close container", zap.Error(err))
	}
}

func (a *app) client(name string) (*resourcecache.Client[record], error) {
	return di.NewResourceClient[record](a.container, name)
}

func (a *app) execute(ctx context.Context, cmd command) error {
	if cmd.name == "resources" {
		return a.printResources()
	}

	client, err := a.client(cmd.resource)
	if err != nil {
		return err
	}

	switch cmd.name {
	case "list":
		params, err := a.opts.params()
		if err != nil {
			return err
		}
		page, err := client.List(ctx, a.session, params)
		if err != nil {
			return err
		}
		if a.opts.exportPath != "" {
			return a.exportPage(cmd.resource, page)
		}
		return a.printPage(page)

	case "get":
		rec, err := client.Get(ctx, a.session, cmd.id)
		if err != nil {
			return err
		}
		return a.printRecords(rec)

	case "document":
		params, err := a.opts.params()
		if err != nil {
			return err
		}
		doc, err := client.Document(ctx, a.session, params)
		if err != nil {
			return err
		}
		return a.printRecords(doc)

	case "create", "update", "patch":
		body, err := a.opts.payload()
		if err != nil {
			return err
		}
		if !json.Valid(body) {
			return fmt.Errorf("--data is not valid JSON")
		}
		payload := json.RawMessage(body)

		var rec record
		switch cmd.name {
		case "create":
			rec, err = client.Create(ctx, a.session, payload)
		case "update":
			rec, err = client.Update(ctx, a.session, cmd.id, payload)
		default:
			rec, err = client.Patch(ctx, a.session, cmd.id, payload)
		}
		if err != nil {
			return err
		}
		return a.printRecords(rec)

	case "delete":
		if err := client.Delete(ctx, a.session, cmd.id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted %s %s\n", cmd.resource, cmd.id)
		return nil

	case "invalidate":
		if err := client.Invalidate(ctx, a.session.Scope); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "invalidated %s for %q\n", cmd.resource, a.session.Scope)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd.name)
}

func (a *app) printResources() error {
	reg := a.container.Registry()
	scope := a.session.Scope
	if scope == "" {
		scope = ":scope"
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tSTALE\tDEPENDS ON")
	for _, name := range reg.Names() {
		def, err := reg.Lookup(name)
		if err != nil {
			return err
		}
		path, err := a.container.Resolver().Collection(def.Route(), scope, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, path, def.Stale(), strings.Join(def.DependsOn, ","))
	}
	return w.Flush()
}

func (a *app) printPage(page query.Page[record]) error {
	if a.opts.output == outputJSON {
		return a.writeJSON(page)
	}
	if err := a.writeTable(page.Data); err != nil {
		return err
	}
	p := page.Paginate
	fmt.Fprintf(a.out, "\npage %d of %d, %d records\n", p.Page, p.Pages, p.Total)
	return nil
}

func (a *app) printRecords(rec record) error {
	if a.opts.output == outputJSON {
		return a.writeJSON(rec)
	}
	return a.writeTable([]record{rec})
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) writeTable(records []record) error {
	table, err := export.TableFromRecords(records)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(table.Header, "\t")))
	for _, row := range table.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

func (a *app) exportPage(resource string, page query.Page[record]) error {
	f, err := os.Create(a.opts.exportPath)
	if err != nil {
		return err
	}
	if err := export.WriteXLSX(f, resource, page); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d %s to %s\n", len(page.Data), resource, a.opts.exportPath)
	return nil
}

// printStats dumps the counters collected during this run.
func (a *app) printStats() error {
	p := a.container.Metrics()
	if p == nil {
		return nil
	}
	families, err := p.Registry().Gather()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(a.out)
	fmt.Fprintln(w, "METRIC\tLABELS\tVALUE")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			sort.Strings(labels)

			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprintf("%g", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				value = fmt.Sprintf("%d in %s", h.GetSampleCount(), time.Duration(h.GetSampleSum()*float64(time.Second)).Round(time.Microsecond))
			default:
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	return w.Flush()
}
