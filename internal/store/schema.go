package store

const schema = `
CREATE TABLE IF NOT EXISTS plans (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TIMESTAMP NOT NULL,
    outcome TEXT NOT NULL,
    message TEXT,
    server_mode BOOLEAN,
    meta_package TEXT,
    download_bytes INTEGER,
    installed_delta INTEGER
);

CREATE TABLE IF NOT EXISTS plan_changes (
    plan_id INTEGER NOT NULL,
    package TEXT NOT NULL,
    mark TEXT NOT NULL,
    auto BOOLEAN,
    from_version TEXT,
    to_version TEXT,
    download_bytes INTEGER,
    PRIMARY KEY (plan_id, package),
    FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS plan_space (
    plan_id INTEGER NOT NULL,
    mount_point TEXT NOT NULL,
    required_bytes INTEGER NOT NULL,
    short_by INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (plan_id, mount_point),
    FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS plan_notes (
    plan_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    value TEXT NOT NULL,
    FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_plans_created ON plans(created_at);
CREATE INDEX IF NOT EXISTS idx_changes_package ON plan_changes(package);
CREATE INDEX IF NOT EXISTS idx_notes_plan ON plan_notes(plan_id);
`
