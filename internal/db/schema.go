package db

const variablesSchema = `
CREATE TABLE IF NOT EXISTS variables (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// migrations[i] upgrades the schema from version i to i+1.
var migrations = []string{
	// v1: entity tables
	`
	CREATE TABLE IF NOT EXISTS family (
		id          INTEGER PRIMARY KEY,
		acronym     TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS control (
		id          INTEGER PRIMARY KEY,
		family_id   INTEGER NOT NULL REFERENCES family(id),
		number      INTEGER NOT NULL,
		enhancement INTEGER NOT NULL DEFAULT 0,
		title       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		UNIQUE (family_id, number, enhancement)
	);
	CREATE TABLE IF NOT EXISTS cci (
		id                  INTEGER PRIMARY KEY,
		control_id          INTEGER NOT NULL REFERENCES control(id),
		number              INTEGER NOT NULL UNIQUE,
		definition          TEXT NOT NULL DEFAULT '',
		is_import           INTEGER NOT NULL DEFAULT 0,
		import_compliance   TEXT NOT NULL DEFAULT '',
		import_date_tested  TEXT NOT NULL DEFAULT '',
		import_tested_by    TEXT NOT NULL DEFAULT '',
		import_test_results TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS stig (
		id           INTEGER PRIMARY KEY,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		release      TEXT NOT NULL DEFAULT '',
		version      INTEGER NOT NULL DEFAULT 0,
		benchmark_id TEXT NOT NULL DEFAULT '',
		file_name    TEXT NOT NULL DEFAULT '',
		UNIQUE (title, version, release)
	);
	CREATE TABLE IF NOT EXISTS stig_check (
		id                         INTEGER PRIMARY KEY,
		stig_id                    INTEGER NOT NULL REFERENCES stig(id),
		cci_id                     INTEGER NOT NULL REFERENCES cci(id),
		rule                       TEXT NOT NULL,
		vuln_num                   TEXT NOT NULL DEFAULT '',
		group_title                TEXT NOT NULL DEFAULT '',
		rule_version               TEXT NOT NULL DEFAULT '',
		severity                   INTEGER NOT NULL DEFAULT 0,
		weight                     REAL NOT NULL DEFAULT 10.0,
		title                      TEXT NOT NULL DEFAULT '',
		vuln_discussion            TEXT NOT NULL DEFAULT '',
		false_positives            TEXT NOT NULL DEFAULT '',
		false_negatives            TEXT NOT NULL DEFAULT '',
		fix                        TEXT NOT NULL DEFAULT '',
		check_content              TEXT NOT NULL DEFAULT '',
		documentable               INTEGER NOT NULL DEFAULT 0,
		mitigations                TEXT NOT NULL DEFAULT '',
		severity_override_guidance TEXT NOT NULL DEFAULT '',
		check_content_ref          TEXT NOT NULL DEFAULT '',
		potential_impact           TEXT NOT NULL DEFAULT '',
		third_party_tools          TEXT NOT NULL DEFAULT '',
		mitigation_control         TEXT NOT NULL DEFAULT '',
		responsibility             TEXT NOT NULL DEFAULT '',
		ia_controls                TEXT NOT NULL DEFAULT '',
		target_key                 TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS asset (
		id              INTEGER PRIMARY KEY,
		asset_type      TEXT NOT NULL DEFAULT 'Computing',
		host_name       TEXT NOT NULL UNIQUE,
		host_ip         TEXT NOT NULL DEFAULT '',
		host_mac        TEXT NOT NULL DEFAULT '',
		host_fqdn       TEXT NOT NULL DEFAULT '',
		tech_area       TEXT NOT NULL DEFAULT '',
		target_key      TEXT NOT NULL DEFAULT '',
		web_or_database INTEGER NOT NULL DEFAULT 0,
		web_db_site     TEXT NOT NULL DEFAULT '',
		web_db_instance TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS asset_stig (
		asset_id INTEGER NOT NULL REFERENCES asset(id),
		stig_id  INTEGER NOT NULL REFERENCES stig(id),
		PRIMARY KEY (asset_id, stig_id)
	);
	CREATE TABLE IF NOT EXISTS ckl_check (
		id                     INTEGER PRIMARY KEY,
		asset_id               INTEGER NOT NULL REFERENCES asset(id),
		stig_check_id          INTEGER NOT NULL REFERENCES stig_check(id),
		status                 INTEGER NOT NULL DEFAULT 0,
		finding_details        TEXT NOT NULL DEFAULT '',
		comments               TEXT NOT NULL DEFAULT '',
		severity_override      INTEGER NOT NULL DEFAULT 0,
		severity_justification TEXT NOT NULL DEFAULT '',
		UNIQUE (asset_id, stig_check_id)
	);`,

	// v2: job history
	`
	CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT PRIMARY KEY,
		kind         TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'queued',
		progress_pct INTEGER NOT NULL DEFAULT 0,
		progress_msg TEXT NOT NULL DEFAULT '',
		warnings     INTEGER NOT NULL DEFAULT 0,
		error_msg    TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		started_at   TEXT,
		finished_at  TEXT
	);`,

	// v3: lookup indexes
	`
	CREATE INDEX IF NOT EXISTS idx_control_family ON control(family_id);
	CREATE INDEX IF NOT EXISTS idx_cci_control ON cci(control_id);
	CREATE INDEX IF NOT EXISTS idx_stig_check_stig ON stig_check(stig_id);
	CREATE INDEX IF NOT EXISTS idx_stig_check_cci ON stig_check(cci_id);
	CREATE INDEX IF NOT EXISTS idx_stig_check_rule ON stig_check(rule);
	CREATE INDEX IF NOT EXISTS idx_asset_stig_stig ON asset_stig(stig_id);
	CREATE INDEX IF NOT EXISTS idx_ckl_check_check ON ckl_check(stig_check_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);`,

	// v4: the CCI each rule references, kept when the rule was mapped to
	// the fallback CCI
	`
	ALTER TABLE stig_check ADD COLUMN cci_ref INTEGER NOT NULL DEFAULT 0;
	UPDATE stig_check SET cci_ref = (SELECT number FROM cci WHERE cci.id = stig_check.cci_id);
	CREATE INDEX IF NOT EXISTS idx_stig_check_cci_ref ON stig_check(cci_ref);`,
}
