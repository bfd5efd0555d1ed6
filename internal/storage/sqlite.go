package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding conversation continuity state and
// the interaction audit log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "askdb.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Conversations ---

// SetConversationResponseID records the latest completion-service response
// id for a conversation, creating the conversation on first use.
func (s *Store) SetConversationResponseID(conversationID, responseID string) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, response_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET response_id = excluded.response_id, updated_at = excluded.updated_at`,
		conversationID, responseID, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetConversationResponseID returns the stored response id for a
// conversation, or ErrNotFound for an unknown conversation.
func (s *Store) GetConversationResponseID(conversationID string) (string, error) {
	var responseID string
	err := s.db.QueryRow("SELECT response_id FROM conversations WHERE id = ?", conversationID).Scan(&responseID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return responseID, err
}

// DeleteConversation removes a conversation's continuity state. Deleting an
// unknown conversation is not an error.
func (s *Store) DeleteConversation(conversationID string) error {
	_, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", conversationID)
	return err
}

// DeleteAllConversations clears continuity state for every conversation.
func (s *Store) DeleteAllConversations() error {
	_, err := s.db.Exec("DELETE FROM conversations")
	return err
}

func (s *Store) GetConversation(conversationID string) (Conversation, error) {
	var c Conversation
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT id, response_id, updated_at FROM conversations WHERE id = ?`, conversationID,
	).Scan(&c.ID, &c.ResponseID, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	c.UpdatedAt = t
	return c, nil
}

// --- Interactions ---

func (s *Store) SaveInteraction(i Interaction) error {
	createdAt := i.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (id, conversation_id, created_at, question, pipeline_json, answer, success, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.ConversationID, createdAt.UTC().Format(time.RFC3339),
		i.Question, i.PipelineJSON, i.Answer, i.Success, i.Error, i.DurationMs,
	)
	return err
}

func (s *Store) GetInteraction(id string) (Interaction, error) {
	var i Interaction
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, conversation_id, created_at, question, pipeline_json, answer, success, error, duration_ms
		FROM interactions WHERE id = ?`, id,
	).Scan(&i.ID, &i.ConversationID, &createdAt, &i.Question, &i.PipelineJSON, &i.Answer, &i.Success, &i.Error, &i.DurationMs)
	if err == sql.ErrNoRows {
		return Interaction{}, ErrNotFound
	}
	if err != nil {
		return Interaction{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	return i, nil
}

func (s *Store) GetRecentInteractions(limit int) ([]Interaction, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, created_at, question, pipeline_json, answer, success, error, duration_ms
		FROM interactions ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		var i Interaction
		var createdAt string
		if err := rows.Scan(&i.ID, &i.ConversationID, &createdAt, &i.Question, &i.PipelineJSON, &i.Answer, &i.Success, &i.Error, &i.DurationMs); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		i.CreatedAt = t
		results = append(results, i)
	}
	return results, rows.Err()
}

// CountInteractions reports total interactions and how many succeeded.
func (s *Store) CountInteractions() (total, succeeded int, err error) {
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM interactions`).Scan(&total, &succeeded)
	return total, succeeded, err
}
