// Package killlog 会话内只追加的终止记录
//
// 记录保存在内存数据库中，进程退出即丢弃，不跨会话保留。
package killlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Hara602/folderSentry/internal/model"
	_ "modernc.org/sqlite"
)

type Log struct {
	db *sql.DB
}

// Open 初始化内存表结构
func Open() (*Log, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 每个连接都是独立的 :memory: 库，只能保留一个
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS kills (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		proc_name TEXT NOT NULL,
		pid INTEGER NOT NULL,
		path TEXT NOT NULL,
		kind INTEGER NOT NULL,
		file_type TEXT,
		killed_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &Log{db: db}, nil
}

// Append 追加一条记录并返回带序号的副本
func (l *Log) Append(rec model.KillRecord) (model.KillRecord, error) {
	if rec.TimeStamp.IsZero() {
		rec.TimeStamp = time.Now()
	}
	res, err := l.db.Exec(
		"INSERT INTO kills(proc_name, pid, path, kind, file_type, killed_at) VALUES (?, ?, ?, ?, ?, ?)",
		rec.ProcName, rec.PID, rec.Path, int(rec.Kind), rec.FileType, rec.TimeStamp.UnixNano(),
	)
	if err != nil {
		return rec, fmt.Errorf("append kill record: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("append kill record: %w", err)
	}
	rec.Seq = seq
	return rec, nil
}

// All 按追加顺序返回全部记录
func (l *Log) All() ([]model.KillRecord, error) {
	rows, err := l.db.Query(
		"SELECT seq, proc_name, pid, path, kind, file_type, killed_at FROM kills ORDER BY seq",
	)
	if err != nil {
		return nil, fmt.Errorf("query kill records: %w", err)
	}
	defer rows.Close()

	var out []model.KillRecord
	for rows.Next() {
		var (
			rec      model.KillRecord
			kind     int
			fileType sql.NullString
			killedAt int64
		)
		if err := rows.Scan(&rec.Seq, &rec.ProcName, &rec.PID, &rec.Path, &kind, &fileType, &killedAt); err != nil {
			return nil, fmt.Errorf("scan kill record: %w", err)
		}
		rec.Kind = model.EventKind(kind)
		rec.FileType = fileType.String
		rec.TimeStamp = time.Unix(0, killedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByProcess 每个进程名被终止的次数
func (l *Log) CountByProcess() (map[string]int, error) {
	rows, err := l.db.Query("SELECT proc_name, COUNT(*) FROM kills GROUP BY proc_name")
	if err != nil {
		return nil, fmt.Errorf("count kill records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

func (l *Log) Close() error {
	return l.db.Close()
}
