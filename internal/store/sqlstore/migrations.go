package sqlstore

import "fmt"

// migrate runs all database migrations. The DDL sticks to types both
// dialects accept; timestamps are fixed-width UTC text.
func (s *Store) migrate() error {
	migrations := []string{
		migrationCreateCards,
		migrationCardsIndexes,
		migrationCreateListables,
		migrationCreateChains,
		migrationCreateChainSteps,
	}

	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

const migrationCreateCards = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    board_id TEXT,
    title TEXT NOT NULL DEFAULT '',
    description TEXT,
    date TEXT,
    is_recurring_template BOOLEAN NOT NULL DEFAULT FALSE,
    recurrence_rule TEXT,
    template_id TEXT,
    status TEXT NOT NULL DEFAULT 'todo',
    is_active BOOLEAN,
    completed_at TEXT,
    priority TEXT,
    due_date TEXT,
    tags TEXT,
    listable_id TEXT,
    item_type TEXT,
    assigned_to TEXT,
    assigned_to_both BOOLEAN NOT NULL DEFAULT FALSE,
    scheduled_time TEXT,
    chain_id TEXT,
    step_order INTEGER,
    created_at TEXT NOT NULL,
    created_by TEXT
);
`

// idx_cards_template_slot holds one row per (routine, day) whatever its
// status, so a cancelled instance keeps its slot.
const migrationCardsIndexes = `
CREATE INDEX IF NOT EXISTS idx_cards_board_date ON cards(board_id, date);
CREATE INDEX IF NOT EXISTS idx_cards_template ON cards(is_recurring_template);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cards_template_slot ON cards(template_id, date) WHERE template_id IS NOT NULL;
`

const migrationCreateListables = `
CREATE TABLE IF NOT EXISTS listables (
    id TEXT PRIMARY KEY,
    board_id TEXT NOT NULL,
    name TEXT NOT NULL,
    color TEXT NOT NULL DEFAULT '#4ECDC4',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listables_board ON listables(board_id);
`

const migrationCreateChains = `
CREATE TABLE IF NOT EXISTS event_chains (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    created_at TEXT NOT NULL
);
`

const migrationCreateChainSteps = `
CREATE TABLE IF NOT EXISTS chain_steps (
    id TEXT PRIMARY KEY,
    chain_id TEXT NOT NULL REFERENCES event_chains(id) ON DELETE CASCADE,
    step_order INTEGER NOT NULL,
    title TEXT NOT NULL,
    default_delay_hours INTEGER,
    pending_since TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chain_steps_chain ON chain_steps(chain_id, step_order);
`
