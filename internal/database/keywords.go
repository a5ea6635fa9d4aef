package database

import (
	"context"
)

// AlertKeyword is a global_keywords row. A nil TalkGroupID means the
// keyword fires on every talkgroup.
type AlertKeyword struct {
	Keyword     string  `json:"keyword"`
	TalkGroupID *string `json:"talk_group_id,omitempty"`
}

// ListKeywords returns all alert keywords.
func (db *DB) ListKeywords(ctx context.Context) ([]AlertKeyword, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT keyword, talk_group_id FROM global_keywords ORDER BY keyword
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kws []AlertKeyword
	for rows.Next() {
		var kw AlertKeyword
		if err := rows.Scan(&kw.Keyword, &kw.TalkGroupID); err != nil {
			return nil, err
		}
		kws = append(kws, kw)
	}
	return kws, rows.Err()
}

// AddKeyword registers an alert keyword. Duplicate (keyword, talkgroup)
// pairs are ignored.
func (db *DB) AddKeyword(ctx context.Context, kw AlertKeyword) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO global_keywords (keyword, talk_group_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, kw.Keyword, kw.TalkGroupID)
	return err
}

// RemoveKeyword deletes an alert keyword. A nil talkgroup removes the
// global entry only.
func (db *DB) RemoveKeyword(ctx context.Context, kw AlertKeyword) error {
	if kw.TalkGroupID == nil {
		_, err := db.Pool.Exec(ctx, `
			DELETE FROM global_keywords WHERE keyword = $1 AND talk_group_id IS NULL
		`, kw.Keyword)
		return err
	}
	_, err := db.Pool.Exec(ctx, `
		DELETE FROM global_keywords WHERE keyword = $1 AND talk_group_id = $2
	`, kw.Keyword, *kw.TalkGroupID)
	return err
}
