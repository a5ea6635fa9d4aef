// dbcheck is an operator tool for poking at the scanmap database:
// table counts by default, plus cleanup subcommands for orphaned rows
// and the legacy audio blob table.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	pool, err := pgxpool.New(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "cleanup" {
		tag, _ := pool.Exec(ctx, "DELETE FROM transcriptions WHERE audio_file_path = ''")
		fmt.Printf("Deleted %d calls with no audio key\n", tag.RowsAffected())
		tag, _ = pool.Exec(ctx, `
			DELETE FROM audio_files af
			WHERE NOT EXISTS (SELECT 1 FROM transcriptions t WHERE t.id = af.transcription_id)
		`)
		fmt.Printf("Deleted %d orphaned audio blobs\n", tag.RowsAffected())
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "prune-blobs" {
		days := 7
		cutoff := time.Now().AddDate(0, 0, -days)
		tag, err := pool.Exec(ctx, "DELETE FROM audio_files WHERE created_at < $1", cutoff)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Deleted %d audio blobs older than %d days\n", tag.RowsAffected(), days)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "calls" {
		investigateCalls(ctx, pool)
		return
	}

	// Default: table counts
	tables := []string{
		"transcriptions", "talk_groups", "global_keywords", "audio_files",
	}
	fmt.Println("Table                    Count")
	fmt.Println("─────────────────────────────────")
	for _, t := range tables {
		var count int64
		pool.QueryRow(ctx, "SELECT count(*) FROM "+t).Scan(&count)
		fmt.Printf("%-25s %d\n", t, count)
	}
}

func investigateCalls(ctx context.Context, pool *pgxpool.Pool) {
	// 1. Transcription states
	fmt.Println("── Transcription States ──")
	var empty, nonEmpty int64
	pool.QueryRow(ctx, "SELECT count(*) FROM transcriptions WHERE transcription = ''").Scan(&empty)
	pool.QueryRow(ctx, "SELECT count(*) FROM transcriptions WHERE transcription <> ''").Scan(&nonEmpty)
	fmt.Printf("  Transcribed:   %d\n", nonEmpty)
	fmt.Printf("  Empty/pending: %d\n", empty)

	// 2. Geocoding yield
	fmt.Println("\n── Geocoding ──")
	var mapped int64
	pool.QueryRow(ctx, "SELECT count(*) FROM transcriptions WHERE lat IS NOT NULL").Scan(&mapped)
	fmt.Printf("  Calls with coordinates: %d\n", mapped)

	var halfApplied int64
	pool.QueryRow(ctx, `
		SELECT count(*) FROM transcriptions
		WHERE (lat IS NULL) <> (lon IS NULL) OR (lat IS NULL AND address IS NOT NULL)
	`).Scan(&halfApplied)
	fmt.Printf("  Rows violating the coords-paired invariant: %d\n", halfApplied)

	// 3. Calls per talkgroup
	fmt.Println("\n── Calls Per Talkgroup (top 15) ──")
	rows, _ := pool.Query(ctx, `
		SELECT t.talk_group_id, COALESCE(tg.alpha_tag, ''), count(*)
		FROM transcriptions t
		LEFT JOIN talk_groups tg ON tg.id = t.talk_group_id
		GROUP BY t.talk_group_id, tg.alpha_tag
		ORDER BY count(*) DESC
		LIMIT 15
	`)
	defer rows.Close()
	for rows.Next() {
		var tgid, alpha string
		var count int64
		rows.Scan(&tgid, &alpha, &count)
		fmt.Printf("  %s (%s): %d calls\n", tgid, alpha, count)
	}

	// 4. Talkgroups seen in calls but missing from talk_groups
	fmt.Println("\n── Unknown Talkgroups ──")
	rows2, _ := pool.Query(ctx, `
		SELECT DISTINCT t.talk_group_id FROM transcriptions t
		WHERE NOT EXISTS (SELECT 1 FROM talk_groups tg WHERE tg.id = t.talk_group_id)
		LIMIT 20
	`)
	defer rows2.Close()
	found := false
	for rows2.Next() {
		found = true
		var tgid string
		rows2.Scan(&tgid)
		fmt.Printf("  %s\n", tgid)
	}
	if !found {
		fmt.Println("  (none found)")
	}

	// 5. Duplicate audio keys (should be impossible)
	fmt.Println("\n── Duplicate Audio Keys ──")
	rows3, _ := pool.Query(ctx, `
		SELECT audio_file_path, count(*) FROM transcriptions
		GROUP BY audio_file_path HAVING count(*) > 1
		LIMIT 20
	`)
	defer rows3.Close()
	found = false
	for rows3.Next() {
		found = true
		var key string
		var count int64
		rows3.Scan(&key, &count)
		fmt.Printf("  %s: %d rows\n", key, count)
	}
	if !found {
		fmt.Println("  (none found)")
	}
}
