package storage

import (
	"context"
	"fmt"
)

// Migrate creates all necessary tables
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "create_users",
			sql: `CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tg_id INTEGER NOT NULL UNIQUE,
				username TEXT NOT NULL DEFAULT '',
				first_name TEXT NOT NULL DEFAULT '',
				balance REAL NOT NULL DEFAULT 0,
				referred_by INTEGER,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
		},
		{
			name: "create_vpn_clients",
			sql: `CREATE TABLE IF NOT EXISTS vpn_clients (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				uuid TEXT NOT NULL UNIQUE,
				email TEXT NOT NULL DEFAULT '',
				sub_id TEXT,
				xui_client_id TEXT,
				inbound_id INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'active',
				upload INTEGER NOT NULL DEFAULT 0,
				download INTEGER NOT NULL DEFAULT 0,
				total_traffic INTEGER NOT NULL DEFAULT 0,
				expiry_time INTEGER NOT NULL DEFAULT 0,
				config_url TEXT,
				notification_step INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
		},
		{
			name: "create_indexes",
			sql: `CREATE INDEX IF NOT EXISTS idx_users_tg_id ON users(tg_id);
				CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by);
				CREATE INDEX IF NOT EXISTS idx_vpn_clients_user_id ON vpn_clients(user_id);
				CREATE INDEX IF NOT EXISTS idx_vpn_clients_status ON vpn_clients(status);
				CREATE INDEX IF NOT EXISTS idx_vpn_clients_expiry ON vpn_clients(expiry_time);`,
		},
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.name, err)
		}
	}

	return nil
}
