package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftdb/chunkindex/plan"
	"github.com/driftdb/chunkindex/runtime"
	"github.com/driftdb/chunkindex/schema"
)

type filterFlags []string

func (a *filterFlags) String() string {
	return fmt.Sprintf("%v", *a)
}

func (a *filterFlags) Set(value string) error {
	*a = append(*a, value)
	return nil
}

// parseFilter turns a "col=v", "col>v", "col>=v", "col<v", "col<=v",
// or "col in v1,v2" flag into a compiler filter. Values for int/long
// columns are parsed as integers against the dataset schema.
func parseFilter(ds schema.Dataset, s string) (plan.Filter, error) {
	ops := []struct {
		token string
		kind  plan.FilterKind
	}{
		{">=", plan.GreaterThanOrEqual},
		{"<=", plan.LessThanOrEqual},
		{">", plan.GreaterThan},
		{"<", plan.LessThan},
		{"=", plan.EqualTo},
	}

	if col, rest, ok := strings.Cut(s, " in "); ok {
		var values []any
		for _, part := range strings.Split(rest, ",") {
			v, err := parseValue(ds, strings.TrimSpace(col), strings.TrimSpace(part))
			if err != nil {
				return plan.Filter{}, err
			}
			values = append(values, v)
		}
		return plan.Filter{Column: strings.TrimSpace(col), Kind: plan.In, Values: values}, nil
	}

	for _, op := range ops {
		if col, rest, ok := strings.Cut(s, op.token); ok {
			v, err := parseValue(ds, strings.TrimSpace(col), strings.TrimSpace(rest))
			if err != nil {
				return plan.Filter{}, err
			}
			return plan.Filter{Column: strings.TrimSpace(col), Kind: op.kind, Value: v}, nil
		}
	}
	return plan.Filter{}, fmt.Errorf("cannot parse filter %q", s)
}

func parseValue(ds schema.Dataset, col, raw string) (any, error) {
	def, ok := ds.ColumnByName(col)
	if !ok {
		return nil, fmt.Errorf("unknown column %q", col)
	}
	switch def.KeyType {
	case "int":
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		return int32(n), nil
	case "long", "timestamp":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		return n, nil
	default:
		return raw, nil
	}
}

func main() {
	var (
		dataset string
		columns string
		version int
		limit   int
		timeout time.Duration
		filters filterFlags
	)

	nodeCfg := runtime.Config{}
	nodeCfg.RegisterFlagsAndApplyDefaults("node", flag.CommandLine)

	flag.StringVar(&dataset, "dataset", "", "Dataset to scan")
	flag.StringVar(&columns, "columns", "", "Comma-separated columns to read (default: all data columns)")
	flag.IntVar(&version, "version", 0, "Schema version to scan at")
	flag.IntVar(&limit, "limit", 100, "Max rows to print")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Query timeout")
	flag.Var(&filters, "filter", "Filter expression, e.g. 'year=1979' or 'month in 1,2,3' (repeatable)")

	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if dataset == "" {
		fmt.Fprintf(os.Stderr, "Error: -dataset is required\n")
		flag.Usage()
		os.Exit(1)
	}

	node, err := runtime.New(nodeCfg, logger, prometheus.NewRegistry())
	if err != nil {
		level.Error(logger).Log("msg", "failed to initialize node", "err", err)
		os.Exit(1)
	}
	defer node.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ds, err := node.MetadataStore().GetDataset(ctx, schema.DatasetRef{Name: dataset})
	if err != nil {
		level.Error(logger).Log("msg", "dataset lookup failed", "dataset", dataset, "err", err)
		os.Exit(1)
	}
	proj, err := schema.NewProjection(ds)
	if err != nil {
		level.Error(logger).Log("msg", "bad dataset definition", "err", err)
		os.Exit(1)
	}

	var parsed []plan.Filter
	for _, f := range filters {
		pf, err := parseFilter(ds, f)
		if err != nil {
			level.Error(logger).Log("msg", "bad filter", "filter", f, "err", err)
			os.Exit(1)
		}
		parsed = append(parsed, pf)
	}

	p, err := plan.Compile(proj, parsed, node.PlanConfig(), logger)
	if err != nil {
		level.Error(logger).Log("msg", "plan compilation failed", "err", err)
		os.Exit(1)
	}

	cols := proj.Dataset.Columns
	var colNames []string
	if columns != "" {
		colNames = strings.Split(columns, ",")
	} else {
		for _, c := range cols {
			colNames = append(colNames, c.Name)
		}
	}

	rows, err := node.Executor.ScanRows(ctx, proj, colNames, version, p, nil)
	if err != nil {
		level.Error(logger).Log("msg", "scan failed", "err", err)
		os.Exit(1)
	}
	defer rows.Close()

	count := 0
	for count < limit {
		row, err := rows.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			level.Error(logger).Log("msg", "scan aborted", "err", err)
			os.Exit(1)
		}
		fmt.Printf("chunk=%d offset=%d columns=%d\n", row.ChunkID, row.Offset, len(row.Values))
		count++
	}
	level.Info(logger).Log("msg", "scan complete", "rows", count)
}
