package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// Retrieval answers by looking up the best-matching reply in a SQLite corpus
type Retrieval struct {
	db   *sql.DB
	mode persona.Mode
}

// OpenCorpus opens (or creates) the reply corpus database and seeds it when empty
func OpenCorpus(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	createRepliesTable := `
	CREATE TABLE IF NOT EXISTS replies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL
	);`

	createKeywordsTable := `
	CREATE TABLE IF NOT EXISTS reply_keywords (
		reply_id INTEGER NOT NULL,
		keyword TEXT NOT NULL,
		FOREIGN KEY(reply_id) REFERENCES replies(id)
	);`

	createKeywordIndex := `
	CREATE INDEX IF NOT EXISTS idx_reply_keywords_keyword ON reply_keywords(keyword);`

	for _, stmt := range []string{createRepliesTable, createKeywordsTable, createKeywordIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create corpus schema: %w", err)
		}
	}

	if err := seedCorpus(db, persona.Corpus()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// seedCorpus inserts entries if the replies table is empty
func seedCorpus(db *sql.DB, entries []persona.Entry) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM replies").Scan(&count); err != nil {
		return fmt.Errorf("failed to count replies: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		res, err := tx.Exec("INSERT INTO replies (mode, text) VALUES (?, ?)", string(e.Mode), e.Text)
		if err != nil {
			return fmt.Errorf("failed to insert reply: %w", err)
		}
		replyID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read reply id: %w", err)
		}
		for _, kw := range e.Keywords {
			if _, err := tx.Exec("INSERT INTO reply_keywords (reply_id, keyword) VALUES (?, ?)", replyID, strings.ToLower(kw)); err != nil {
				return fmt.Errorf("failed to insert keyword: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NewRetrieval creates a retrieval backend over an opened corpus
func NewRetrieval(db *sql.DB, mode persona.Mode) *Retrieval {
	return &Retrieval{db: db, mode: mode}
}

// Name returns the backend identifier
func (r *Retrieval) Name() string {
	return "retrieval"
}

// Generate returns the corpus reply sharing the most keywords with the latest
// user message. Mode-specific replies win ties over general ones.
func (r *Retrieval) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	words := wordSet(lastUserText(snap))
	if len(words) == 0 {
		return assistantReply(r.Name(), persona.Fallback(r.mode))
	}

	keywords := make([]string, 0, len(words))
	for w := range words {
		keywords = append(keywords, w)
	}
	sort.Strings(keywords)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keywords)), ",")
	query := fmt.Sprintf(`
	SELECT r.text, COUNT(*) AS hits
	FROM replies r
	JOIN reply_keywords k ON k.reply_id = r.id
	WHERE (r.mode = ? OR r.mode = '') AND k.keyword IN (%s)
	GROUP BY r.id, r.text, r.mode
	ORDER BY hits DESC, CASE WHEN r.mode = '' THEN 1 ELSE 0 END, r.id
	LIMIT 1`, placeholders)

	args := make([]any, 0, len(keywords)+1)
	args = append(args, string(r.mode))
	for _, kw := range keywords {
		args = append(args, kw)
	}

	var text string
	var hits int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&text, &hits)
	if errors.Is(err, sql.ErrNoRows) {
		return assistantReply(r.Name(), persona.Fallback(r.mode))
	}
	if err != nil {
		return session.Message{}, fmt.Errorf("failed to query corpus: %w", err)
	}
	return assistantReply(r.Name(), text)
}

// Close closes the corpus database
func (r *Retrieval) Close() error {
	return r.db.Close()
}
