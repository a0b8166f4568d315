package database

import "database/sql"

// nullIfEmpty 空字符串落库为 NULL,便于区分"无当前中枢"与空值。
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
