/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Command docstore runs one datastore operation against a configured entity
// and prints the result as JSON.
//
//	docstore -config app.yaml -entity user -op insertOne -data '{"name":"a"}' -tenant t1
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"

	"github.com/suparena/docstore"
	"github.com/suparena/docstore/config"
	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/storagemodels"
)

var ops = []string{
	"insertOne", "insertMany",
	"updateById", "updateMany",
	"deleteById", "deleteByIds", "deleteMany",
	"findById", "findByIds", "findOne", "find", "count",
}

type cliFlags struct {
	config  string
	entity  string
	op      string
	data    string
	id      string
	ids     string
	filter  string
	tenant  string
	admin   bool
	version bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("docstore", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f cliFlags
	fs.StringVar(&f.config, "config", "docstore.yaml", "Path to the configuration file (YAML or TOML)")
	fs.StringVar(&f.entity, "entity", "", "Entity name")
	fs.StringVar(&f.op, "op", "", "Operation: "+strings.Join(ops, ", "))
	fs.StringVar(&f.data, "data", "", "JSON document, document array or update")
	fs.StringVar(&f.id, "id", "", "Document id")
	fs.StringVar(&f.ids, "ids", "", "Comma separated document ids")
	fs.StringVar(&f.filter, "filter", "{}", "JSON filter")
	fs.StringVar(&f.tenant, "tenant", "", "Tenant id passed as call metadata")
	fs.BoolVar(&f.admin, "admin", false, "Bypass tenant scoping")
	fs.BoolVar(&f.version, "version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if f.version {
		printVersion(stdout)
		return 0
	}

	result, err := execute(ctx, f)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, f cliFlags) (any, error) {
	if f.entity == "" || f.op == "" {
		return nil, stderrors.New("-entity and -op are required")
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	m, err := docstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	store, err := m.Get(f.entity)
	if err != nil {
		return nil, err
	}

	opts := storagemodels.Options{Meta: map[string]any{}}
	if f.tenant != "" {
		e, _ := cfg.Entity(f.entity)
		opts.Meta[e.Tenant.Identifier] = f.tenant
	}
	if f.admin {
		opts.Meta[storagemodels.IgnoreTenantKey] = true
	}

	return dispatch(ctx, store, f, opts)
}

func dispatch(ctx context.Context, store datastore.Store, f cliFlags, opts storagemodels.Options) (any, error) {
	switch f.op {
	case "insertOne":
		var doc storagemodels.Document
		if err := decode("-data", f.data, &doc); err != nil {
			return nil, err
		}
		return store.InsertOne(ctx, doc, opts)
	case "insertMany":
		var docs []storagemodels.Document
		if err := decode("-data", f.data, &docs); err != nil {
			return nil, err
		}
		return store.InsertMany(ctx, docs, opts)
	case "updateById":
		var update map[string]any
		if err := decode("-data", f.data, &update); err != nil {
			return nil, err
		}
		return store.UpdateByID(ctx, f.id, update, opts)
	case "updateMany":
		filter, err := parseFilter(f.filter)
		if err != nil {
			return nil, err
		}
		var update map[string]any
		if err := decode("-data", f.data, &update); err != nil {
			return nil, err
		}
		n, err := store.UpdateMany(ctx, filter, update, opts)
		return map[string]int64{"updatedCount": n}, err
	case "deleteById":
		id, err := store.DeleteByID(ctx, f.id, opts)
		return map[string]string{"id": id}, err
	case "deleteByIds":
		return store.DeleteByIDs(ctx, splitIDs(f.ids), opts)
	case "deleteMany":
		filter, err := parseFilter(f.filter)
		if err != nil {
			return nil, err
		}
		n, err := store.DeleteMany(ctx, filter, opts)
		return map[string]int64{"deletedCount": n}, err
	case "findById":
		return store.FindByID(ctx, f.id, opts)
	case "findByIds":
		return store.FindByIDs(ctx, splitIDs(f.ids), opts)
	case "findOne":
		filter, err := parseFilter(f.filter)
		if err != nil {
			return nil, err
		}
		return store.FindOne(ctx, filter, opts)
	case "find":
		filter, err := parseFilter(f.filter)
		if err != nil {
			return nil, err
		}
		return store.Find(ctx, filter, opts)
	case "count":
		filter, err := parseFilter(f.filter)
		if err != nil {
			return nil, err
		}
		n, err := store.Count(ctx, filter, opts)
		return map[string]int64{"count": n}, err
	default:
		return nil, fmt.Errorf("unknown operation %q (want one of %s)", f.op, strings.Join(ops, ", "))
	}
}

func decode(name, raw string, v any) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

func parseFilter(raw string) (storagemodels.Filter, error) {
	var filter storagemodels.Filter
	if err := decode("-filter", raw, &filter); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = storagemodels.Filter{}
	}
	return filter, nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printVersion(w io.Writer) {
	info := docstore.GetVersionInfo()
	cyan := color.New(color.FgCyan)
	cyan.Fprint(w, "docstore version ")
	fmt.Fprintln(w, info.Version)
	cyan.Fprint(w, "Git commit: ")
	fmt.Fprintln(w, info.GitCommit)
	cyan.Fprint(w, "Build date: ")
	fmt.Fprintln(w, info.BuildDate)
	cyan.Fprint(w, "Go version: ")
	fmt.Fprintln(w, info.GoVersion)
	cyan.Fprint(w, "Drivers: ")
	fmt.Fprintln(w, strings.Join(info.Drivers, ", "))
}

func printError(w io.Writer, err error) {
	red := color.New(color.FgRed)

	var verr *errors.ValidationError
	if stderrors.As(err, &verr) {
		red.Fprintf(w, "Error: %s\n", verr.Message)
		for _, f := range verr.Data {
			path := f.Path
			if path == "" {
				path = "/"
			}
			red.Fprintf(w, "  %s: %s (%s)\n", path, f.Message, f.Keyword)
		}
		return
	}
	red.Fprintf(w, "Error: %v\n", err)
}
