package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const (
	versionLayout = "20060102150405"

	markerUp             = "-- +goose Up"
	markerDown           = "-- +goose Down"
	markerStatementBegin = "-- +goose StatementBegin"
	markerStatementEnd   = "-- +goose StatementEnd"
)

var (
	fileNameRe    = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeNameRe  = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatedUnder = regexp.MustCompile(`_{2,}`)
)

const sqlTemplate = markerUp + `
` + markerStatementBegin + `
-- %[1]s
` + markerStatementEnd + `

` + markerDown + `
` + markerStatementBegin + `
-- rollback %[1]s
` + markerStatementEnd + `
`

// slug lowers and collapses a free-form migration name into the
// characters allowed in a migration filename.
func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = unsafeNameRe.ReplaceAllString(s, "_")
	s = repeatedUnder.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its path.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createAt(dir, name, time.Now().UTC())
}

func createAt(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	s := slug(name)
	if s == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	full := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now.Format(versionLayout), s))
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("migration already exists: %s", full)
		}
		return "", fmt.Errorf("create migration %q: %w", full, err)
	}
	_, werr := fmt.Fprintf(f, sqlTemplate, s)
	if err := multierr.Append(werr, f.Close()); err != nil {
		return "", fmt.Errorf("write migration %q: %w", full, err)
	}
	return full, nil
}

// ValidateDir checks the migrations stored on disk under dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS checks every .sql file in dir of fsys: the filename must carry
// a unique 14 digit version, both goose sections must be present and
// StatementBegin/StatementEnd markers must pair up. All problems are
// reported together.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	versions := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		match := fileNameRe.FindStringSubmatch(name)
		if match == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := versions[match[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", match[1], prev, name))
		}
		versions[match[1]] = name

		errs = multierr.Append(errs, checkMarkers(fsys, path.Join(dir, name)))
	}
	return errs
}

func checkMarkers(fsys fs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	defer f.Close()

	var (
		up, down bool
		depth    int
		errs     error
	)
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		switch strings.TrimSpace(scanner.Text()) {
		case markerUp:
			up = true
		case markerDown:
			if !up {
				errs = multierr.Append(errs, fmt.Errorf("%s:%d: Down section before Up", name, line))
			}
			down = true
		case markerStatementBegin:
			if depth > 0 {
				errs = multierr.Append(errs, fmt.Errorf("%s:%d: nested StatementBegin", name, line))
			}
			depth++
		case markerStatementEnd:
			if depth == 0 {
				errs = multierr.Append(errs, fmt.Errorf("%s:%d: StatementEnd without StatementBegin", name, line))
				continue
			}
			depth--
		}
	}
	if err := scanner.Err(); err != nil {
		return multierr.Append(errs, fmt.Errorf("scan %q: %w", name, err))
	}
	if !up {
		errs = multierr.Append(errs, fmt.Errorf("migration %q missing %q", name, markerUp))
	}
	if !down {
		errs = multierr.Append(errs, fmt.Errorf("migration %q missing %q", name, markerDown))
	}
	if depth != 0 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has an unterminated StatementBegin", name))
	}
	return errs
}
