package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// PrintQuery runs query and prints its rows tab separated, with a header when
// there is more than one column
func PrintQuery(ctx context.Context, w io.Writer, db *sql.Tx, query string, args ...any) error {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	result, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return err
	}
	defer result.Close()
	columns, err := result.Columns()
	if err != nil {
		return err
	}
	if len(columns) > 1 {
		fmt.Fprintln(w, strings.Join(columns, "\t"))
	}
	pointers := make([]any, len(columns))
	container := make([]sql.NullString, len(columns))
	for i := range columns {
		pointers[i] = &container[i]
	}
	values := make([]string, len(columns))
	for result.Next() {
		if err := result.Scan(pointers...); err != nil {
			return err
		}
		for i, v := range container {
			values[i] = v.String
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	return result.Err()
}

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [sql] [args...]",
	Short: "Queries the annotation database",
	Long: `Runs a read-only SQL query against the database and prints the rows tab
separated. Without a query, lists the projects with their image and annotation
counts.

Example:
  demarca query "select filename, status from images where status = ?" pending`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		tx, err := app.DB.BeginTx(cmd.Context(), &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer tx.Rollback()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			return PrintQuery(cmd.Context(), out, tx, `
SELECT p.name, p.task,
       (SELECT COUNT(*) FROM images i WHERE i.project_id = p.id) AS images,
       (SELECT COUNT(*) FROM annotations a WHERE a.project_id = p.id) AS annotations
FROM projects p ORDER BY p.id`)
		}
		queryArgs := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			queryArgs = append(queryArgs, a)
		}
		return PrintQuery(cmd.Context(), out, tx, args[0], queryArgs...)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
