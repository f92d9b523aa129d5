package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/linemk/farmsync/internal/lib/listquery"
	"github.com/shopspring/decimal"
)

// ErrUnknownField поле фильтра или сортировки не разрешено
var ErrUnknownField = errors.New("unknown field")

// ErrInvalidFilterValue значение фильтра не приводится к типу колонки
var ErrInvalidFilterValue = errors.New("invalid filter value")

// column описывает колонку, доступную для фильтрации и сортировки
type column struct {
	expr    string // выражение в SQL, например c.price
	sqlType string // тип для явного приведения параметра
}

// columnSet отображение имени поля из JSON в колонку
type columnSet map[string]column

// whereBuilder накапливает условия и аргументы запроса
type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) add(cond string, args ...any) {
	for _, arg := range args {
		b.args = append(b.args, arg)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(b.args)), 1)
	}
	b.conds = append(b.conds, cond)
}

func (b *whereBuilder) sql() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

var sqlOps = map[listquery.Operator]string{
	listquery.OpEq:  "=",
	listquery.OpGt:  ">",
	listquery.OpGte: ">=",
	listquery.OpLt:  "<",
	listquery.OpLte: "<=",
}

// applyFilters переводит фильтры запроса в условия над разрешёнными колонками
func (b *whereBuilder) applyFilters(cols columnSet, filters []listquery.Filter) error {
	for _, f := range filters {
		col, ok := cols[f.Field]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, f.Field)
		}
		for _, v := range f.Values {
			if err := checkValue(col.sqlType, v); err != nil {
				return fmt.Errorf("%w: %s=%q", ErrInvalidFilterValue, f.Field, v)
			}
		}

		if f.Op == listquery.OpIn {
			b.add(fmt.Sprintf("%s = ANY(?::%s[])", col.expr, col.sqlType), pq.Array(f.Values))
			continue
		}
		op, ok := sqlOps[f.Op]
		if !ok {
			return fmt.Errorf("%w: operator %s", ErrUnknownField, f.Op)
		}
		b.add(fmt.Sprintf("%s %s ?::%s", col.expr, op, col.sqlType), f.Values[0])
	}
	return nil
}

// checkValue отсекает значения, которые Postgres не сможет привести к типу колонки
func checkValue(sqlType, v string) error {
	var err error
	switch sqlType {
	case "bigint", "integer":
		_, err = strconv.ParseInt(v, 10, 64)
	case "numeric":
		_, err = decimal.NewFromString(v)
	case "boolean":
		_, err = strconv.ParseBool(v)
	case "timestamptz":
		if _, err = time.Parse(time.RFC3339, v); err != nil {
			_, err = time.Parse(time.DateOnly, v)
		}
	}
	return err
}

// orderBy строит ORDER BY по разрешённым колонкам, fallback используется при пустой сортировке
func orderBy(cols columnSet, sort []listquery.SortField, fallback string) (string, error) {
	if len(sort) == 0 {
		return " ORDER BY " + fallback, nil
	}
	parts := make([]string, 0, len(sort))
	for _, s := range sort {
		col, ok := cols[s.Field]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownField, s.Field)
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, col.expr+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// isUniqueViolation код 23505 - нарушение уникального индекса
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
