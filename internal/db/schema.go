package db

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	role TEXT NOT NULL,
	email TEXT,
	can_approve_tasks INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	event_id TEXT,
	employee_id TEXT REFERENCES users(id),
	supervisor_id TEXT REFERENCES users(id),
	target_value REAL NOT NULL DEFAULT 0,
	done_value REAL NOT NULL DEFAULT 0,
	priority TEXT NOT NULL DEFAULT 'medium',
	start_date TEXT,
	due_date TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	progress_mode TEXT NOT NULL DEFAULT 'simple',
	created_by TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS task_stages (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	stage_key TEXT,
	stage_name TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 0,
	assigned_to TEXT REFERENCES users(id),
	progress REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'new',
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS task_updates (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	done_value REAL NOT NULL,
	note TEXT,
	created_by TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stage_updates (
	id TEXT PRIMARY KEY,
	stage_id TEXT NOT NULL REFERENCES task_stages(id),
	progress REAL NOT NULL,
	note TEXT,
	updated_by TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS approvals (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	decision TEXT NOT NULL,
	comment TEXT,
	approved_by TEXT NOT NULL,
	approved_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	stored_name TEXT NOT NULL,
	original_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	uploaded_by TEXT NOT NULL,
	uploaded_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT,
	url TEXT,
	meta_json TEXT,
	is_read INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_logs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	task_id TEXT NOT NULL,
	stage_id TEXT NOT NULL DEFAULT '',
	to_email TEXT NOT NULL,
	ref TEXT NOT NULL,
	meta_json TEXT,
	sent_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (type, task_id, stage_id, to_email, ref)
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_employee ON tasks(employee_id);
CREATE INDEX IF NOT EXISTS idx_tasks_supervisor ON tasks(supervisor_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
CREATE INDEX IF NOT EXISTS idx_stages_task ON task_stages(task_id);
CREATE INDEX IF NOT EXISTS idx_stages_assignee ON task_stages(assigned_to);
CREATE INDEX IF NOT EXISTS idx_task_updates_task ON task_updates(task_id);
CREATE INDEX IF NOT EXISTS idx_stage_updates_stage ON stage_updates(stage_id);
CREATE INDEX IF NOT EXISTS idx_approvals_task ON approvals(task_id);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read)
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	role TEXT NOT NULL,
	email TEXT,
	can_approve_tasks BOOLEAN NOT NULL DEFAULT FALSE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	event_id TEXT,
	employee_id TEXT REFERENCES users(id),
	supervisor_id TEXT REFERENCES users(id),
	target_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	done_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	priority TEXT NOT NULL DEFAULT 'medium',
	start_date TEXT,
	due_date TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	progress_mode TEXT NOT NULL DEFAULT 'simple',
	created_by TEXT,
	created_at TIMESTAMPTZ DEFAULT NOW(),
	updated_at TIMESTAMPTZ DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS task_stages (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	stage_key TEXT,
	stage_name TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	assigned_to TEXT REFERENCES users(id),
	progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'new',
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ DEFAULT NOW(),
	updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS task_updates (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	done_value DOUBLE PRECISION NOT NULL,
	note TEXT,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS stage_updates (
	id TEXT PRIMARY KEY,
	stage_id TEXT NOT NULL REFERENCES task_stages(id),
	progress DOUBLE PRECISION NOT NULL,
	note TEXT,
	updated_by TEXT NOT NULL,
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS approvals (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	decision TEXT NOT NULL,
	comment TEXT,
	approved_by TEXT NOT NULL,
	approved_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	stored_name TEXT NOT NULL,
	original_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	uploaded_by TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT,
	url TEXT,
	meta_json TEXT,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS email_logs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	task_id TEXT NOT NULL,
	stage_id TEXT NOT NULL DEFAULT '',
	to_email TEXT NOT NULL,
	ref TEXT NOT NULL,
	meta_json TEXT,
	sent_at TIMESTAMPTZ DEFAULT NOW(),
	UNIQUE (type, task_id, stage_id, to_email, ref)
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_employee ON tasks(employee_id);
CREATE INDEX IF NOT EXISTS idx_tasks_supervisor ON tasks(supervisor_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
CREATE INDEX IF NOT EXISTS idx_stages_task ON task_stages(task_id);
CREATE INDEX IF NOT EXISTS idx_stages_assignee ON task_stages(assigned_to);
CREATE INDEX IF NOT EXISTS idx_task_updates_task ON task_updates(task_id);
CREATE INDEX IF NOT EXISTS idx_stage_updates_stage ON stage_updates(stage_id);
CREATE INDEX IF NOT EXISTS idx_approvals_task ON approvals(task_id);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read)
`
