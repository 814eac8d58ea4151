package database

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v11"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DbType string

const (
	DbTypeSqlite   DbType = "sqlite"
	DbTypePostgres DbType = "postgres"
	DbTypeMysql    DbType = "mysql"
)

// DbParams selects the journal database. Sqlite uses File, the others DSN.
type DbParams struct {
	Type DbType `env:"TYPE" envDefault:"sqlite"`
	File string `env:"FILE"`
	DSN  string `env:"DSN"`
}

// Configured reports whether a database was requested at all.
func (p *DbParams) Configured() bool {
	return p.File != "" || p.DSN != ""
}

// InitDbParams reads TELEX_DB_TYPE, TELEX_DB_FILE and TELEX_DB_DSN.
func InitDbParams() *DbParams {
	params := &DbParams{}
	if err := env.ParseWithOptions(params, env.Options{Prefix: "TELEX_DB_"}); err != nil {
		log.Printf("Error reading database settings: %v", err)
	}
	return params
}

// DbConnect opens the database described by params. It panics when the
// parameters are incomplete or the connection fails.
func DbConnect(params *DbParams) *gorm.DB {
	var dialector gorm.Dialector
	switch params.Type {
	case "", DbTypeSqlite:
		if params.File == "" {
			panic("database file path is required")
		}
		dialector = sqlite.Open(params.File)
	case DbTypePostgres:
		if params.DSN == "" {
			panic("DSN is required for postgres")
		}
		dialector = postgres.Open(params.DSN)
	case DbTypeMysql:
		if params.DSN == "" {
			panic("DSN is required for mysql")
		}
		dialector = mysql.Open(params.DSN)
	default:
		panic(fmt.Sprintf("unsupported database type: %s", params.Type))
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		panic(fmt.Sprintf("failed to connect database: %v", err))
	}
	return db
}
