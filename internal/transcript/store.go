package transcript

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Speakers recorded in a transcript.
const (
	SpeakerYou      = "you"
	SpeakerStranger = "stranger"
	SpeakerSystem   = "system"
)

type Line struct {
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	Speaker        string    `json:"speaker"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS transcript_lines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    speaker TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcript_conversation ON transcript_lines(conversation_id, id);
CREATE INDEX IF NOT EXISTS idx_transcript_created ON transcript_lines(created_at);
`

// timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Open opens (or creates) the sqlite database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	return db, nil
}

// NewStore creates a transcript store using the provided database connection
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate transcript schema: %w", err)
	}
	return s, nil
}

// Add appends a line to a conversation
func (s *Store) Add(conversationID, sessionID, speaker, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO transcript_lines (conversation_id, session_id, speaker, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, sessionID, speaker, content, s.now().UTC().Format(timeLayout))
	return err
}

// Lines returns every line of a conversation, oldest first
func (s *Store) Lines(conversationID string) ([]Line, error) {
	rows, err := s.db.Query(`
		SELECT conversation_id, session_id, speaker, content, created_at
		FROM transcript_lines
		WHERE conversation_id = ?
		ORDER BY id ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		var createdAt string
		if err := rows.Scan(&l.ConversationID, &l.SessionID, &l.Speaker, &l.Content, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		lines = append(lines, l)
	}

	return lines, rows.Err()
}

// Conversations returns the ids of conversations with lines newer than since
func (s *Store) Conversations(since time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT conversation_id
		FROM transcript_lines
		WHERE created_at >= ?
		GROUP BY conversation_id
		ORDER BY MIN(id) ASC`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Prune deletes lines older than maxAge and reports how many were removed
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UTC().Format(timeLayout)

	result, err := s.db.Exec(`DELETE FROM transcript_lines WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
