package store

// SchemaDDL defines the SQLite schema for the cascade runtime database.
// Tables: tasks, task_comments, users, dependencies, rules, rule_executions,
// escalations, bottlenecks, notifications, events.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Task schedule projections. The engine owns scheduling fields only; the
-- originating system remains the source of truth for everything else.
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    project_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'open',
    priority TEXT NOT NULL DEFAULT 'medium',
    assignee_id TEXT NOT NULL DEFAULT '',
    creator_id TEXT NOT NULL DEFAULT '',
    progress_percent INTEGER NOT NULL DEFAULT 0,
    started_at TEXT,
    completed_at TEXT,
    deadline TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, status);
CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline);

CREATE TABLE IF NOT EXISTS task_comments (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Directory projection used for recipient and manager resolution
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    manager_id TEXT NOT NULL DEFAULT ''
);

-- Typed dependency edges; one row per (predecessor, successor) pair
CREATE TABLE IF NOT EXISTS dependencies (
    predecessor_id TEXT NOT NULL,
    successor_id TEXT NOT NULL,
    dependency_type TEXT NOT NULL,
    lag_days INTEGER NOT NULL DEFAULT 0,
    auto_adjust INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (predecessor_id, successor_id)
);

-- Workflow rules; conditions and actions as the YAML-equivalent JSON
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    trigger_type TEXT NOT NULL,
    trigger_config TEXT NOT NULL DEFAULT '{}',
    project_filter TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    conditions TEXT NOT NULL DEFAULT '[]',
    actions TEXT NOT NULL DEFAULT '[]',
    execution_count INTEGER NOT NULL DEFAULT 0,
    last_executed_at TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- One row per rule firing
CREATE TABLE IF NOT EXISTS rule_executions (
    id TEXT PRIMARY KEY,
    rule_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    trigger_context TEXT NOT NULL DEFAULT '{}',
    result_data TEXT NOT NULL DEFAULT '{}',
    started_at TEXT NOT NULL,
    completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_executions_rule ON rule_executions(rule_id, started_at);

-- Deduplicated alerts: at most one non-terminal row per (task, rule)
CREATE TABLE IF NOT EXISTS escalations (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    rule_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    reason TEXT NOT NULL DEFAULT '',
    suggested_actions TEXT NOT NULL DEFAULT '[]',
    escalated_to TEXT NOT NULL DEFAULT '[]',
    resolution_notes TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    acknowledged_at TEXT,
    resolved_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_escalations_task ON escalations(task_id, status);

CREATE UNIQUE INDEX IF NOT EXISTS idx_escalations_open
    ON escalations(task_id, rule_id)
    WHERE status IN ('pending', 'acknowledged', 'in_progress');

-- Analyzer findings: at most one unresolved row per task
CREATE TABLE IF NOT EXISTS bottlenecks (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    blocking_count INTEGER NOT NULL DEFAULT 0,
    cascade_delay_days REAL NOT NULL DEFAULT 0,
    delay_probability REAL NOT NULL DEFAULT 0,
    suggested_actions TEXT NOT NULL DEFAULT '[]',
    is_resolved INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bottlenecks_open
    ON bottlenecks(task_id) WHERE is_resolved = 0;

-- In-app notification outbox
CREATE TABLE IF NOT EXISTS notifications (
    id INTEGER PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    link TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'normal',
    read INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Append-only audit log of engine activity
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    task_id TEXT,
    rule_id TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
