package redis

import "fmt"

// RowsKey holds the number of rows in a grid.
func RowsKey(grid string) string {
	return fmt.Sprintf("gridrunner:%s:rows", grid)
}

// RowKey is the hash holding one row's cells.
func RowKey(grid string, row int) string {
	return fmt.Sprintf("%s%d", rowKeyPrefix(grid), row)
}

func rowKeyPrefix(grid string) string {
	return fmt.Sprintf("gridrunner:%s:row:", grid)
}
