package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hoshinonyaruko/snake-torus/structs"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryDSN keeps the journal in process memory; results do not outlive the server.
const MemoryDSN = "file:snake?mode=memory&cache=shared"

const createResultsTableSQL = `
CREATE TABLE IF NOT EXISTS Results (
    GameID TEXT PRIMARY KEY,
    Score INTEGER,
    Length INTEGER,
    Ticks INTEGER,
    Cause TEXT,
    Food INTEGER,
    Hazards INTEGER,
    FinishedAt TIMESTAMP
);
`

const createResultsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_results_score ON Results (Score DESC, FinishedAt);
`

func executeSQL(db *sql.DB, sqlStatement string) error {
	if _, err := db.Exec(sqlStatement); err != nil {
		return fmt.Errorf("executing SQL statement %q: %w", sqlStatement, err)
	}
	return nil
}

// Open opens the journal database and creates its tables.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// 共享内存库在最后一个连接关闭时消失，保持一个常驻连接
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := InitializeDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InitializeDatabase(db *sql.DB) error {
	if err := executeSQL(db, createResultsTableSQL); err != nil {
		return err
	}
	return executeSQL(db, createResultsIndexSQL)
}

// RecordResult stores one finished game.
func RecordResult(db *sql.DB, r structs.Result) error {
	// 开启事务
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec("INSERT OR REPLACE INTO Results (GameID, Score, Length, Ticks, Cause, Food, Hazards, FinishedAt) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		r.GameID, r.Score, r.Length, r.Ticks, string(r.Cause), r.Food, r.Hazards, r.FinishedAt.UTC())
	if err != nil {
		tx.Rollback()
		return err
	}

	// 提交事务
	return tx.Commit()
}

// TopResults returns up to limit results, best score first, older games first on ties.
func TopResults(db *sql.DB, limit int) ([]structs.Result, error) {
	rows, err := db.Query("SELECT GameID, Score, Length, Ticks, Cause, Food, Hazards, FinishedAt FROM Results ORDER BY Score DESC, FinishedAt ASC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []structs.Result{}
	for rows.Next() {
		var r structs.Result
		var cause string
		var finished time.Time
		if err := rows.Scan(&r.GameID, &r.Score, &r.Length, &r.Ticks, &cause, &r.Food, &r.Hazards, &finished); err != nil {
			return nil, err
		}
		r.Cause = structs.Cause(cause)
		r.FinishedAt = finished
		results = append(results, r)
	}
	return results, rows.Err()
}
