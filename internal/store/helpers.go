package store

import (
	"database/sql"
	"strconv"

	"marketplace-backoffice/internal/apperr"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

// requireAffected returns notFound when res touched no rows
func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("rows affected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
