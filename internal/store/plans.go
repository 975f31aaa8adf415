package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"planforge/internal/core"
	"planforge/internal/logging"
	"planforge/internal/types"
)

// SQLitePlanStore implements core.PlanStore. Plans are stored as JSON keyed
// by (user_id, chat_id); Load falls back to a case-insensitive company match
// for the user when the chat has no plan yet.
type SQLitePlanStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLitePlanStore opens or creates the plan database at path.
func NewSQLitePlanStore(path string) (*SQLitePlanStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		company TEXT NOT NULL,
		plan TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, chat_id)
	);
	CREATE INDEX IF NOT EXISTS idx_plans_company ON plans(user_id, company);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create plan schema: %w", err)
	}

	logging.Store("plan store ready at %s", path)
	return &SQLitePlanStore{db: db}, nil
}

// Save upserts the plan for (userID, chatID). Every generated section
// survives the round trip through the JSON column.
func (s *SQLitePlanStore) Save(ctx context.Context, userID, chatID string, plan *types.AccountPlan) error {
	if userID == "" || chatID == "" {
		return fmt.Errorf("store: %w: user and chat required", core.ErrInvalidInput)
	}
	if plan == nil || plan.CompanyName == "" {
		return fmt.Errorf("store: %w: plan with company name required", core.ErrInvalidInput)
	}

	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("store: serialize plan: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (user_id, chat_id, company, plan, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, chat_id) DO UPDATE SET
			company = excluded.company,
			plan = excluded.plan,
			updated_at = excluded.updated_at`,
		userID, chatID, strings.ToLower(plan.CompanyName), string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save plan: %w", err)
	}
	logging.Store("saved plan for %s (user %s, chat %s)", plan.CompanyName, userID, chatID)
	return nil
}

// Load fetches the plan for (userID, chatID). When the chat has none and a
// company is given, the user's most recent plan for that company is returned
// instead. Missing plans surface as ErrNotFound.
func (s *SQLitePlanStore) Load(ctx context.Context, userID, chatID, company string) (*types.AccountPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT plan FROM plans WHERE user_id = ? AND chat_id = ?",
		userID, chatID).Scan(&payload)
	if err == sql.ErrNoRows && company != "" {
		err = s.db.QueryRowContext(ctx,
			"SELECT plan FROM plans WHERE user_id = ? AND company = ? ORDER BY updated_at DESC LIMIT 1",
			userID, strings.ToLower(company)).Scan(&payload)
	}
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: no plan for user %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load plan: %w", err)
	}

	var plan types.AccountPlan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("store: %w: unreadable plan: %v", core.ErrDataCorruption, err)
	}
	return &plan, nil
}

// Delete removes the plan for (userID, chatID).
func (s *SQLitePlanStore) Delete(ctx context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM plans WHERE user_id = ? AND chat_id = ?", userID, chatID)
	if err != nil {
		return fmt.Errorf("store: delete plan: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLitePlanStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
