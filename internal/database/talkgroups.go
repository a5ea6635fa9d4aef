package database

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Talkgroup mirrors a talk_groups row. Effectively immutable at runtime.
type Talkgroup struct {
	ID       string `json:"id"`
	AlphaTag string `json:"alpha_tag"`
	Tag      string `json:"tag"`
	County   string `json:"county"`
}

// ListTalkgroups returns all talkgroups ordered by id.
func (db *DB) ListTalkgroups(ctx context.Context) ([]Talkgroup, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, alpha_tag, tag, county FROM talk_groups ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tgs []Talkgroup
	for rows.Next() {
		var tg Talkgroup
		if err := rows.Scan(&tg.ID, &tg.AlphaTag, &tg.Tag, &tg.County); err != nil {
			return nil, err
		}
		tgs = append(tgs, tg)
	}
	return tgs, rows.Err()
}

// GetTalkgroup returns one talkgroup by id.
func (db *DB) GetTalkgroup(ctx context.Context, id string) (*Talkgroup, error) {
	var tg Talkgroup
	err := db.Pool.QueryRow(ctx, `
		SELECT id, alpha_tag, tag, county FROM talk_groups WHERE id = $1
	`, id).Scan(&tg.ID, &tg.AlphaTag, &tg.Tag, &tg.County)
	if err != nil {
		return nil, err
	}
	return &tg, nil
}

// UpsertTalkgroup inserts or updates a talkgroup, never overwriting good
// data with empty strings.
func (db *DB) UpsertTalkgroup(ctx context.Context, tg Talkgroup) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO talk_groups (id, alpha_tag, tag, county)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			alpha_tag = COALESCE(NULLIF($2, ''), talk_groups.alpha_tag),
			tag       = COALESCE(NULLIF($3, ''), talk_groups.tag),
			county    = COALESCE(NULLIF($4, ''), talk_groups.county)
	`, tg.ID, tg.AlphaTag, tg.Tag, tg.County)
	return err
}

// ImportTalkgroupCSV loads talkgroups from a radioreference-style CSV
// (Decimal, Alpha Tag, ..., Tag, Category). Header row is detected by a
// non-numeric first column. Returns the number of rows imported.
func (db *DB) ImportTalkgroupCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open talkgroup csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	count := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read talkgroup csv: %w", err)
		}
		if len(rec) == 0 {
			continue
		}
		id := strings.TrimSpace(rec[0])
		if !isDigits(id) {
			continue // header or junk row
		}
		tg := Talkgroup{ID: id}
		if len(rec) > 1 {
			tg.AlphaTag = strings.TrimSpace(rec[1])
		}
		if len(rec) > 4 {
			tg.Tag = strings.TrimSpace(rec[4])
		}
		if len(rec) > 5 {
			tg.County = strings.TrimSpace(rec[5])
		}
		if err := db.UpsertTalkgroup(ctx, tg); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
