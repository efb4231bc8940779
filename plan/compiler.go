package plan

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/multierr"

	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/schema"
)

// Config is the compiler's tunable knob, corresponding to the
// columnstore.inquery-partitions-limit configuration key of spec.md §6.
type Config struct {
	InqueryPartitionsLimit int
}

// Plan is the compiler's full output: a partition scan method and a
// chunk scan method.
type Plan struct {
	Partition PartitionScanMethod
	Chunk     ChunkScanMethod
}

// Compile implements spec.md §4.4: it groups filters by column,
// determines the partition enumeration strategy, and derives a
// row-key interval for chunk pruning. logger receives non-fatal
// compiler warnings (unpushable filter, gapped row-key prefix,
// partition count above the cap); it may be nil.
func Compile(proj schema.RichProjection, filters []Filter, cfg Config, logger log.Logger) (Plan, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	partitionMethod, err := compilePartitionScan(proj, filters, cfg, logger)
	if err != nil {
		return Plan{}, err
	}

	chunkMethod, err := compileChunkScan(proj, filters, logger)
	if err != nil {
		return Plan{}, err
	}

	return Plan{Partition: partitionMethod, Chunk: chunkMethod}, nil
}

// compilePartitionScan implements §4.4 steps 1-4.
func compilePartitionScan(proj schema.RichProjection, filters []Filter, cfg Config, logger log.Logger) (PartitionScanMethod, error) {
	_, byColumn := groupByColumn(filters)

	pkLayout, err := proj.PartitionKeyLayout()
	if err != nil {
		return PartitionScanMethod{}, err
	}

	sets := make([][]any, len(proj.PartitionKeys))
	allPushable := true
	for i, col := range proj.PartitionKeys {
		fs := byColumn[col.Name]
		set, pushable, perr := pushablePartitionSet(fs, pkLayout[i])
		if perr != nil {
			return PartitionScanMethod{}, perr
		}
		if !pushable {
			allPushable = false
			continue
		}
		sets[i] = set
	}

	if allPushable && len(proj.PartitionKeys) > 0 {
		method, ok, err := tryEnumerate(pkLayout, sets, cfg.InqueryPartitionsLimit, logger)
		if err != nil {
			return PartitionScanMethod{}, err
		}
		if ok {
			return method, nil
		}
	}

	predicate, unfiltered, err := compileResidualPredicate(proj, pkLayout, byColumn, logger)
	if err != nil {
		return PartitionScanMethod{}, err
	}
	return PartitionScanMethod{Kind: Filtered, Predicate: predicate, Unfiltered: unfiltered}, nil
}

// pushablePartitionSet maps one partition column's grouped filters to
// its enumeration set, per §4.4 step 2. A column with no filters at
// all is not pushable (set is empty, not "all values").
func pushablePartitionSet(fs []Filter, kt keys.KeyType) (set []any, pushable bool, err error) {
	if len(fs) == 0 {
		return nil, false, nil
	}
	for _, f := range fs {
		switch f.Kind {
		case EqualTo:
			v, perr := kt.ParseText(f.Value)
			if perr != nil {
				return nil, false, perr
			}
			set = append(set, v)
		case In:
			vs, perr := keys.ParseValues(kt, f.Values)
			if perr != nil {
				return nil, false, perr
			}
			set = append(set, vs...)
		default:
			return nil, false, nil
		}
	}
	return set, true, nil
}

// tryEnumerate implements §4.4 step 3: compute the Cartesian product
// of per-column sets, lazily, aborting if it exceeds the cap.
func tryEnumerate(layout keys.KeyLayout, sets [][]any, limit int, logger log.Logger) (PartitionScanMethod, bool, error) {
	var combos [][]any
	count, aborted := lazyCartesian(sets, limit, func(combo []any) bool {
		combos = append(combos, append([]any{}, combo...))
		return true
	})
	if aborted {
		level.Info(logger).Log("msg", "partition combination count exceeds inquery-partitions-limit; falling back to filtered scan",
			"count_at_abort", count, "limit", limit)
		return PartitionScanMethod{}, false, nil
	}

	recs := make([]keys.BinaryRecord, 0, len(combos))
	for _, combo := range combos {
		rec, err := keys.Encode(layout, combo)
		if err != nil {
			return PartitionScanMethod{}, false, err
		}
		recs = append(recs, rec)
	}

	switch len(recs) {
	case 0:
		return PartitionScanMethod{}, false, nil
	case 1:
		return PartitionScanMethod{Kind: Single, Keys: recs}, true, nil
	default:
		return PartitionScanMethod{Kind: Multi, Keys: recs}, true, nil
	}
}

// compileResidualPredicate implements §4.4 step 4: per partition
// column with any pushable predicate, compile Eq/In into a per-column
// check, AND them together, and reject anything else with
// UnsupportedFilterError.
func compileResidualPredicate(proj schema.RichProjection, layout keys.KeyLayout, byColumn map[string][]Filter, logger log.Logger) (PartitionPredicate, bool, error) {
	type columnCheck struct {
		pos   int
		check func(v any) bool
	}
	var checks []columnCheck
	var errs error

	for i, col := range proj.PartitionKeys {
		fs := byColumn[col.Name]
		if len(fs) == 0 {
			continue
		}
		kt := layout[i]
		var eqVals []any
		supported := true
		for _, f := range fs {
			switch f.Kind {
			case EqualTo:
				v, err := kt.ParseText(f.Value)
				if err != nil {
					errs = multierr.Append(errs, err)
					supported = false
					continue
				}
				eqVals = append(eqVals, v)
			case In:
				vs, err := keys.ParseValues(kt, f.Values)
				if err != nil {
					errs = multierr.Append(errs, err)
					supported = false
					continue
				}
				eqVals = append(eqVals, vs...)
			default:
				errs = multierr.Append(errs, &UnsupportedFilterError{Filter: f})
				supported = false
			}
		}
		if !supported {
			continue
		}
		set := make(map[any]bool, len(eqVals))
		for _, v := range eqVals {
			set[v] = true
		}
		pos := i
		checks = append(checks, columnCheck{pos: pos, check: func(v any) bool { return set[v] }})
		level.Debug(logger).Log("msg", "partition column predicate pushed into residual filter", "column", col.Name)
	}

	if errs != nil {
		return nil, false, errs
	}

	if len(checks) == 0 {
		return func(keys.BinaryRecord) bool { return true }, true, nil
	}

	pkLayout := layout
	predicate := func(rec keys.BinaryRecord) bool {
		raw := rec.Bytes()
		for _, col := range checks {
			// decode field `pos` out of the encoded partition key.
			v, skip := decodeField(pkLayout, raw, col.pos)
			if skip {
				return false
			}
			if !col.check(v) {
				return false
			}
		}
		return true
	}
	return predicate, false, nil
}

// decodeField walks rec's encoded fields up to position pos and
// returns the decoded value there. Returns skip=true if decoding
// failed (corrupt record -- treated as a non-match rather than a
// panic, since the residual predicate must never crash the scan).
func decodeField(layout keys.KeyLayout, raw []byte, pos int) (value any, skip bool) {
	off := 0
	for i := 0; i <= pos; i++ {
		v, n, err := layout[i].Parse(raw[off:])
		if err != nil {
			return nil, true
		}
		if i == pos {
			return v, false
		}
		off += n
	}
	return nil, true
}

// compileChunkScan implements §4.4 step 5.
func compileChunkScan(proj schema.RichProjection, filters []Filter, logger log.Logger) (ChunkScanMethod, error) {
	_, byColumn := groupByColumn(filters)

	rkLayout, err := proj.RowKeyLayout()
	if err != nil {
		return ChunkScanMethod{}, err
	}

	positions := map[int]bool{}
	for i, col := range proj.RowKeys {
		if len(byColumn[col.Name]) > 0 {
			positions[i] = true
		}
	}
	if len(positions) == 0 {
		return ChunkScanMethod{Kind: AllChunks}, nil
	}

	maxPos := -1
	for p := range positions {
		if p > maxPos {
			maxPos = p
		}
	}
	for p := 0; p <= maxPos; p++ {
		if !positions[p] {
			level.Info(logger).Log("msg", "row-key filter prefix has a gap; degrading to full chunk scan", "max_position", maxPos, "missing_position", p)
			return ChunkScanMethod{Kind: AllChunks}, nil
		}
	}

	lowValues := make([]any, maxPos+1)
	highValues := make([]any, maxPos+1)

	for i := 0; i < maxPos; i++ {
		col := proj.RowKeys[i]
		fs := byColumn[col.Name]
		v, ok := singleEquality(fs, rkLayout[i])
		if !ok {
			level.Info(logger).Log("msg", "row-key prefix position requires a single equality filter", "column", col.Name)
			return ChunkScanMethod{Kind: AllChunks}, nil
		}
		lowValues[i] = v
		highValues[i] = v
	}

	lastCol := proj.RowKeys[maxPos]
	lastFilters := byColumn[lastCol.Name]
	lo, hi, ok := boundsForLastPosition(lastFilters, rkLayout[maxPos])
	if !ok {
		level.Info(logger).Log("msg", "row-key filter shape at max position is not Eq or a paired range bound; degrading to full chunk scan", "column", lastCol.Name)
		return ChunkScanMethod{Kind: AllChunks}, nil
	}
	lowValues[maxPos] = lo
	highValues[maxPos] = hi

	first, err := keys.Encode(rkLayout[:maxPos+1], lowValues)
	if err != nil {
		return ChunkScanMethod{}, err
	}
	last, err := keys.Encode(rkLayout[:maxPos+1], highValues)
	if err != nil {
		return ChunkScanMethod{}, err
	}
	return ChunkScanMethod{Kind: RowKeyRange, First: first, Last: last}, nil
}

// singleEquality returns the single Eq value for a prefix position,
// or ok=false if the filters there are anything else.
func singleEquality(fs []Filter, kt keys.KeyType) (any, bool) {
	if len(fs) != 1 || fs[0].Kind != EqualTo {
		return nil, false
	}
	v, err := kt.ParseText(fs[0].Value)
	if err != nil {
		return nil, false
	}
	return v, true
}

// boundsForLastPosition implements the max(S) case of §4.4 step 5:
// either a single Eq, or a paired (Gt|Gte, Lt|Lte) bound.
func boundsForLastPosition(fs []Filter, kt keys.KeyType) (lo, hi any, ok bool) {
	if len(fs) == 1 && fs[0].Kind == EqualTo {
		v, err := kt.ParseText(fs[0].Value)
		if err != nil {
			return nil, nil, false
		}
		return v, v, true
	}

	if len(fs) != 2 {
		return nil, nil, false
	}
	var lower, upper *Filter
	for i := range fs {
		switch fs[i].Kind {
		case GreaterThan, GreaterThanOrEqual:
			if lower != nil {
				return nil, nil, false
			}
			lower = &fs[i]
		case LessThan, LessThanOrEqual:
			if upper != nil {
				return nil, nil, false
			}
			upper = &fs[i]
		default:
			return nil, nil, false
		}
	}
	if lower == nil || upper == nil {
		return nil, nil, false
	}
	lv, err := kt.ParseText(lower.Value)
	if err != nil {
		return nil, nil, false
	}
	hv, err := kt.ParseText(upper.Value)
	if err != nil {
		return nil, nil, false
	}
	return lv, hv, true
}
