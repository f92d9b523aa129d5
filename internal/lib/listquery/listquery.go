// Package listquery разбирает параметры списочных запросов:
// select, sort, page, limit и фильтры вида field=value или field[op]=value.
package listquery

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Operator оператор сравнения в фильтре
type Operator string

const (
	OpEq  Operator = "eq"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

var ErrInvalidQuery = errors.New("invalid query")

// reserved - параметры, которые не являются фильтрами
var reserved = map[string]struct{}{
	"select": {},
	"sort":   {},
	"page":   {},
	"limit":  {},
}

var filterKey = regexp.MustCompile(`^(\w+)\[(gt|gte|lt|lte|in)\]$`)

type Filter struct {
	Field  string
	Op     Operator
	Values []string
}

type SortField struct {
	Field string
	Desc  bool
}

// Query разобранный списочный запрос
type Query struct {
	Filters []Filter
	Select  []string
	Sort    []SortField
	Page    int
	Limit   int
}

// PageRef описание соседней страницы
type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

// New возвращает пустой запрос с пагинацией по умолчанию
func New() Query {
	return Query{Page: DefaultPage, Limit: DefaultLimit}
}

// Parse строит Query из query-параметров URL
func Parse(values url.Values) (Query, error) {
	q := New()

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Query{}, fmt.Errorf("%w: page must be a positive integer", ErrInvalidQuery)
		}
		q.Page = page
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Query{}, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidQuery)
		}
		q.Limit = min(limit, MaxLimit)
	}

	q.Select = splitList(values.Get("select"))

	for _, field := range splitList(values.Get("sort")) {
		if strings.HasPrefix(field, "-") {
			q.Sort = append(q.Sort, SortField{Field: strings.TrimPrefix(field, "-"), Desc: true})
			continue
		}
		q.Sort = append(q.Sort, SortField{Field: strings.TrimPrefix(field, "+")})
	}

	for key, vals := range values {
		if _, ok := reserved[key]; ok {
			continue
		}
		if len(vals) == 0 {
			continue
		}
		value := vals[len(vals)-1]

		if m := filterKey.FindStringSubmatch(key); m != nil {
			f := Filter{Field: m[1], Op: Operator(m[2]), Values: []string{value}}
			if f.Op == OpIn {
				f.Values = splitList(value)
				if len(f.Values) == 0 {
					return Query{}, fmt.Errorf("%w: empty list for %s", ErrInvalidQuery, key)
				}
			}
			q.Filters = append(q.Filters, f)
			continue
		}
		if strings.ContainsAny(key, "[]") {
			return Query{}, fmt.Errorf("%w: unsupported filter %s", ErrInvalidQuery, key)
		}
		q.Filters = append(q.Filters, Filter{Field: key, Op: OpEq, Values: []string{value}})
	}

	return q, nil
}

// Where добавляет фильтр на равенство, заменяя пользовательские фильтры по этому полю
func (q *Query) Where(field, value string) {
	filters := q.Filters[:0:0]
	for _, f := range q.Filters {
		if f.Field != field {
			filters = append(filters, f)
		}
	}
	q.Filters = append(filters, Filter{Field: field, Op: OpEq, Values: []string{value}})
}

// Offset смещение для LIMIT/OFFSET
func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Pagination описание соседних страниц для total найденных записей
func (q Query) Pagination(total int) Pagination {
	var p Pagination
	if q.Page*q.Limit < total {
		p.Next = &PageRef{Page: q.Page + 1, Limit: q.Limit}
	}
	if q.Offset() > 0 {
		p.Prev = &PageRef{Page: q.Page - 1, Limit: q.Limit}
	}
	return p
}

// Project оставляет у каждого элемента только поля из select (id остаётся всегда).
// При пустом select items возвращаются как есть.
func Project[T any](items []T, fields []string) (any, error) {
	if len(fields) == 0 {
		return items, nil
	}
	keep := map[string]struct{}{"id": {}}
	for _, f := range fields {
		keep[f] = struct{}{}
	}

	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		var full map[string]json.RawMessage
		if err := json.Unmarshal(raw, &full); err != nil {
			return nil, err
		}
		projected := make(map[string]json.RawMessage, len(keep))
		for k, v := range full {
			if _, ok := keep[k]; ok {
				projected[k] = v
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
