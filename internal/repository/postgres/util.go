package postgres

import (
	"strconv"

	"github.com/samber/lo"
)

func itoa(i int) string {
	return strconv.Itoa(i)
}

func toAny[T any](values []T) []interface{} {
	return lo.Map(values, func(v T, _ int) interface{} { return v })
}
