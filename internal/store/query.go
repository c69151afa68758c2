package store

import "database/sql"

// Select runs a SELECT query and maps every row with scanner.
func Select[T any](s *Store, query string, args []any, scanner func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		item, err := scanner(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// SelectOne runs a SELECT query expected to return zero or one rows,
// returning nil (not an error) when no row matches.
func SelectOne[T any](s *Store, query string, args []any, scanner func(*sql.Row) (T, error)) (*T, error) {
	row := s.conn.QueryRow(query, args...)
	item, err := scanner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Exec runs an INSERT/UPDATE/DELETE query against the store's connection.
func (s *Store) Exec(query string, args ...any) (sql.Result, error) {
	return s.conn.Exec(query, args...)
}
