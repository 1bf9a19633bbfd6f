package memory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"graphboard/application/ports"
)

// columns exposes a row by its column names, the JSON names of its fields.
func columns(row interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func columnString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// likePattern compiles a SQL ILIKE pattern.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

type matcher func(cols map[string]interface{}) bool

func compileFilters(filters []ports.Filter) ([]matcher, error) {
	out := make([]matcher, 0, len(filters))
	for _, f := range filters {
		f := f
		switch f.Op {
		case ports.FilterEq:
			out = append(out, func(cols map[string]interface{}) bool {
				return columnString(cols[f.Column]) == f.Value
			})
		case ports.FilterIlike:
			re, err := likePattern(f.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, func(cols map[string]interface{}) bool {
				return re.MatchString(columnString(cols[f.Column]))
			})
		default:
			return nil, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	return out, nil
}

// lessColumn orders timestamps chronologically, numbers numerically and
// everything else lexically.
func lessColumn(a, b interface{}) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		at, aerr := time.Parse(time.RFC3339Nano, as)
		bt, berr := time.Parse(time.RFC3339Nano, bs)
		if aerr == nil && berr == nil {
			return at.Before(bt)
		}
		return as < bs
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return columnString(a) < columnString(b)
}

// query filters, orders and caps rows the way the hosted store does.
func query[T any](rows []T, opts ports.ListOptions) ([]T, error) {
	matchers, err := compileFilters(opts.Filters)
	if err != nil {
		return nil, err
	}

	type entry struct {
		row  T
		cols map[string]interface{}
	}
	kept := make([]entry, 0, len(rows))
	for _, row := range rows {
		cols, err := columns(row)
		if err != nil {
			return nil, err
		}
		ok := true
		for _, m := range matchers {
			if !m(cols) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, entry{row: row, cols: cols})
		}
	}

	if opts.OrderBy != "" {
		sort.SliceStable(kept, func(i, j int) bool {
			a, b := kept[i].cols[opts.OrderBy], kept[j].cols[opts.OrderBy]
			if opts.Ascending {
				return lessColumn(a, b)
			}
			return lessColumn(b, a)
		})
	}
	if opts.Limit > 0 && len(kept) > opts.Limit {
		kept = kept[:opts.Limit]
	}

	out := make([]T, len(kept))
	for i, e := range kept {
		out[i] = e.row
	}
	return out, nil
}
