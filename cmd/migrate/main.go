// Command migrate manages the database schema with golang-migrate.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const usage = `Usage: migrate [options] <command> [args]

Commands:
  up [N]       Apply all pending migrations, or the next N
  down [N]     Roll back all migrations, or the last N
  goto V       Migrate up or down to version V
  force V      Mark version V as applied without running anything
  version      Print the current schema version
  drop         Drop every table (asks for confirmation)
  create NAME  Write an empty up/down migration pair

Options:
`

func main() {
	databaseURL := flag.String("database", os.Getenv("DATABASE_URL"),
		"PostgreSQL connection URL (defaults to DATABASE_URL)")
	dir := flag.String("dir", envOr("MIGRATIONS_DIR", "migrations"),
		"Directory holding the migration files")
	lockTimeout := flag.Duration("lock-timeout", 5*time.Minute,
		"How long to wait for the schema lock")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cli := &cli{databaseURL: *databaseURL, dir: *dir, lockTimeout: *lockTimeout}
	if err := cli.run(flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type cli struct {
	databaseURL string
	dir         string
	lockTimeout time.Duration
}

func (c *cli) run(command string, args []string) error {
	switch command {
	case "up":
		return c.step(args, +1)
	case "down":
		return c.step(args, -1)
	case "goto":
		target, err := argVersion(args)
		if err != nil {
			return err
		}
		return c.withMigrate(func(m *migrate.Migrate) error {
			return describe(m.Migrate(uint(target)), fmt.Sprintf("now at version %d", target))
		})
	case "force":
		target, err := argVersion(args)
		if err != nil {
			return err
		}
		return c.withMigrate(func(m *migrate.Migrate) error {
			if err := m.Force(target); err != nil {
				return err
			}
			log.Printf("schema version forced to %d", target)
			return nil
		})
	case "version":
		return c.withMigrate(c.printVersion)
	case "drop":
		return c.drop()
	case "create":
		if len(args) == 0 {
			return errors.New("create needs a migration name")
		}
		return c.create(args[0])
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func argVersion(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("a version number is required")
	}
	v, err := strconv.Atoi(args[0])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("bad version %q", args[0])
	}
	return v, nil
}

// step applies N migrations in the given direction; N = 0 means all
func (c *cli) step(args []string, direction int) error {
	n := 0
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			return fmt.Errorf("bad step count %q", args[0])
		}
		n = parsed
	}

	return c.withMigrate(func(m *migrate.Migrate) error {
		before, _, _ := m.Version()

		var err error
		switch {
		case n > 0:
			err = m.Steps(n * direction)
		case direction > 0:
			err = m.Up()
		default:
			err = m.Down()
		}
		if err != nil {
			return describe(err, "")
		}

		after, _, _ := m.Version()
		log.Printf("schema moved from version %d to %d", before, after)
		return nil
	})
}

func describe(err error, success string) error {
	if err == nil {
		if success != "" {
			log.Print(success)
		}
		return nil
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Print("schema already up to date")
		return nil
	}
	return err
}

func (c *cli) printVersion(m *migrate.Migrate) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Print("no migrations applied yet")
		return nil
	}
	if err != nil {
		return err
	}
	if dirty {
		log.Printf("version %d (dirty)", v)
	} else {
		log.Printf("version %d", v)
	}
	return nil
}

func (c *cli) drop() error {
	fmt.Fprint(os.Stderr, "This drops EVERY table in the database. Type 'yes' to continue: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != "yes" {
		log.Print("aborted")
		return nil
	}

	return c.withMigrate(func(m *migrate.Migrate) error {
		if err := m.Drop(); err != nil {
			return err
		}
		log.Print("all tables dropped")
		return nil
	})
}

func (c *cli) create(name string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	seq, err := nextSequence(c.dir)
	if err != nil {
		return err
	}

	for _, direction := range []string{"up", "down"} {
		path := filepath.Join(c.dir, fmt.Sprintf("%04d_%s.%s.sql", seq, name, direction))
		header := fmt.Sprintf("-- %s (%s)\n", name, direction)
		if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
			return err
		}
		log.Printf("created %s", path)
	}
	return nil
}

// nextSequence scans the migrations directory for the highest NNNN_ prefix
func nextSequence(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, e := range entries {
		prefix, _, found := strings.Cut(e.Name(), "_")
		if !found {
			continue
		}
		if n, err := strconv.Atoi(prefix); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

func (c *cli) withMigrate(fn func(*migrate.Migrate) error) error {
	if c.databaseURL == "" {
		return errors.New("no database URL; set DATABASE_URL or pass -database")
	}

	db, err := sql.Open("pgx", c.databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("connect: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		db.Close()
		return fmt.Errorf("postgres driver: %w", err)
	}

	absDir, err := filepath.Abs(c.dir)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+absDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	m.LockTimeout = c.lockTimeout
	defer m.Close()

	return fn(m)
}
