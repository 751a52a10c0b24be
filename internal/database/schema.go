package database

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS domains (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT 'want-to',
            created_at DATETIME NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT,
            domain_id INTEGER,
            priority TEXT NOT NULL DEFAULT 'should-do',
            estimated_minutes INTEGER NOT NULL DEFAULT 30,
            due_at DATETIME,
            status TEXT NOT NULL DEFAULT 'todo',
            recurrence_rule TEXT,
            energy_level TEXT NOT NULL DEFAULT 'medium',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS task_sync_metadata (
            task_id INTEGER PRIMARY KEY,
            google_event_id TEXT,
            google_task_id TEXT,
            google_task_list_id TEXT,
            is_fixed BOOLEAN NOT NULL DEFAULT 0,
            last_sync_at DATETIME,
            sync_status TEXT NOT NULL DEFAULT 'pending',
            last_error TEXT,
            retry_count INTEGER NOT NULL DEFAULT 0
        )`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            operation TEXT NOT NULL,
            entity_type TEXT NOT NULL,
            entity_id INTEGER NOT NULL,
            payload TEXT NOT NULL DEFAULT '{}',
            status TEXT NOT NULL DEFAULT 'pending',
            last_error TEXT,
            retry_count INTEGER NOT NULL DEFAULT 0,
            next_retry_at DATETIME,
            created_at DATETIME NOT NULL,
            claimed_at DATETIME,
            processed_at DATETIME
        )`,
	`CREATE TABLE IF NOT EXISTS sync_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            operation TEXT NOT NULL,
            entity_type TEXT NOT NULL,
            entity_id INTEGER NOT NULL,
            status TEXT NOT NULL,
            details TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS credentials (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            provider TEXT NOT NULL,
            access_token TEXT NOT NULL,
            refresh_token TEXT NOT NULL,
            expires_at DATETIME NOT NULL,
            scopes TEXT NOT NULL DEFAULT '[]',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            UNIQUE(user_id, provider)
        )`,
	`CREATE TABLE IF NOT EXISTS completions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            status TEXT NOT NULL,
            occurred_at DATETIME NOT NULL,
            actual_minutes INTEGER,
            source TEXT NOT NULL DEFAULT 'google',
            external_id TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            UNIQUE(task_id, status, occurred_at)
        )`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks(user_id, due_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_meta_event ON task_sync_metadata(google_event_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_meta_gtask ON task_sync_metadata(google_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_due ON sync_queue(status, next_retry_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_log_user ON sync_log(user_id, created_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS domains (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            name TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT 'want-to',
            created_at TIMESTAMPTZ NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS tasks (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            title TEXT NOT NULL,
            description TEXT,
            domain_id BIGINT,
            priority TEXT NOT NULL DEFAULT 'should-do',
            estimated_minutes INTEGER NOT NULL DEFAULT 30,
            due_at TIMESTAMPTZ,
            status TEXT NOT NULL DEFAULT 'todo',
            recurrence_rule TEXT,
            energy_level TEXT NOT NULL DEFAULT 'medium',
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS task_sync_metadata (
            task_id BIGINT PRIMARY KEY,
            google_event_id TEXT,
            google_task_id TEXT,
            google_task_list_id TEXT,
            is_fixed BOOLEAN NOT NULL DEFAULT FALSE,
            last_sync_at TIMESTAMPTZ,
            sync_status TEXT NOT NULL DEFAULT 'pending',
            last_error TEXT,
            retry_count INTEGER NOT NULL DEFAULT 0
        )`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            operation TEXT NOT NULL,
            entity_type TEXT NOT NULL,
            entity_id BIGINT NOT NULL,
            payload TEXT NOT NULL DEFAULT '{}',
            status TEXT NOT NULL DEFAULT 'pending',
            last_error TEXT,
            retry_count INTEGER NOT NULL DEFAULT 0,
            next_retry_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL,
            claimed_at TIMESTAMPTZ,
            processed_at TIMESTAMPTZ
        )`,
	`CREATE TABLE IF NOT EXISTS sync_log (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            operation TEXT NOT NULL,
            entity_type TEXT NOT NULL,
            entity_id BIGINT NOT NULL,
            status TEXT NOT NULL,
            details TEXT NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS credentials (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            provider TEXT NOT NULL,
            access_token TEXT NOT NULL,
            refresh_token TEXT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL,
            scopes TEXT NOT NULL DEFAULT '[]',
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            UNIQUE(user_id, provider)
        )`,
	`CREATE TABLE IF NOT EXISTS completions (
            id BIGSERIAL PRIMARY KEY,
            task_id BIGINT NOT NULL,
            user_id BIGINT NOT NULL,
            status TEXT NOT NULL,
            occurred_at TIMESTAMPTZ NOT NULL,
            actual_minutes INTEGER,
            source TEXT NOT NULL DEFAULT 'google',
            external_id TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(task_id, status, occurred_at)
        )`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks(user_id, due_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_meta_event ON task_sync_metadata(google_event_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_meta_gtask ON task_sync_metadata(google_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_due ON sync_queue(status, next_retry_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_log_user ON sync_log(user_id, created_at)`,
}
