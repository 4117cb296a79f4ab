// Command migrate applies migrations/*.sql in lexical order, each file
// in its own transaction. Files are idempotent (IF NOT EXISTS), so
// re-running after a partial failure is safe. --list prints the tables
// currently in the public schema instead of applying anything.
//
// Exits 1 if any file fails; files after a failure are still attempted.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

func main() {
	os.Exit(run())
}

func run() int {
	listOnly := flag.Bool("list", false, "print public-schema tables and exit")
	flag.Parse()

	dir := "migrations"
	if flag.NArg() > 0 {
		dir = flag.Arg(0)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Print("DATABASE_URL is required")
		return 1
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Printf("connect: %v", err)
		return 1
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Printf("ping: %v", err)
		return 1
	}

	if *listOnly {
		if err := listTables(db); err != nil {
			log.Printf("list tables: %v", err)
			return 1
		}
		return 0
	}

	applied, failed, err := applyDir(db, dir)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	log.Printf("Done: %d applied, %d failed", applied, failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func listTables(db *sql.DB) error {
	rows, err := db.Query(`SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		fmt.Println(" ", name)
		count++
	}
	fmt.Printf("Total: %d tables\n", count)
	return rows.Err()
}

// applyDir runs every .sql file under dir in lexical order. A failing
// file rolls back alone and the rest still run; the caller decides what
// a nonzero failed count means.
func applyDir(db *sql.DB, dir string) (applied, failed int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return applied, failed, fmt.Errorf("read %s: %w", name, err)
		}
		if strings.TrimSpace(string(ddl)) == "" {
			continue
		}

		fmt.Printf("  %s ... ", name)
		if err := applyOne(db, string(ddl)); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failed++
			continue
		}
		fmt.Println("ok")
		applied++
	}
	return applied, failed, nil
}

func applyOne(db *sql.DB, ddl string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ddl); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
