package migrate

import "embed"

// Embedded holds the SQL migrations compiled into every binary so the dev
// auto-run does not depend on the working directory.
//
//go:embed migrations/*.sql
var Embedded embed.FS

// EmbeddedDir is the directory of Embedded that holds the migrations.
const EmbeddedDir = "migrations"
