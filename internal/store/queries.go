package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Plan operations

// InsertPlan records a plan with its changes, space requirements and
// notes in one transaction and sets p.ID.
func (s *Store) InsertPlan(p *Plan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	result, err := tx.Exec(`
		INSERT INTO plans
		(created_at, outcome, message, server_mode, meta_package, download_bytes, installed_delta)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.Outcome,
		p.Message,
		p.ServerMode,
		p.MetaPackage,
		p.DownloadBytes,
		p.InstalledDelta,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", notInitialized(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get plan id: %w", err)
	}

	for _, ch := range p.Changes {
		_, err := tx.Exec(`
			INSERT INTO plan_changes
			(plan_id, package, mark, auto, from_version, to_version, download_bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, ch.Package, ch.Mark, ch.Auto, ch.FromVersion, ch.ToVersion, ch.DownloadBytes)
		if err != nil {
			return fmt.Errorf("failed to insert change for %s: %w", ch.Package, err)
		}
	}
	for _, sp := range p.Space {
		_, err := tx.Exec(`
			INSERT INTO plan_space (plan_id, mount_point, required_bytes, short_by)
			VALUES (?, ?, ?, ?)
		`, id, sp.MountPoint, sp.RequiredBytes, sp.ShortBy)
		if err != nil {
			return fmt.Errorf("failed to insert space for %s: %w", sp.MountPoint, err)
		}
	}
	for _, n := range p.Notes {
		_, err := tx.Exec(`INSERT INTO plan_notes (plan_id, kind, value) VALUES (?, ?, ?)`, id, n.Kind, n.Value)
		if err != nil {
			return fmt.Errorf("failed to insert %s note: %w", n.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan: %w", err)
	}
	p.ID = id
	p.ChangeCount = len(p.Changes)
	return nil
}

const planColumns = `
	p.id, p.created_at, p.outcome, p.message, p.server_mode, p.meta_package,
	p.download_bytes, p.installed_delta,
	(SELECT COUNT(*) FROM plan_changes c WHERE c.plan_id = p.id)
`

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*Plan, error) {
	var p Plan
	var createdAt string
	var message, meta sql.NullString
	err := row.Scan(
		&p.ID,
		&createdAt,
		&p.Outcome,
		&message,
		&p.ServerMode,
		&meta,
		&p.DownloadBytes,
		&p.InstalledDelta,
		&p.ChangeCount,
	)
	if err != nil {
		return nil, err
	}
	p.Message = message.String
	p.MetaPackage = meta.String
	p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for plan %d: %w", p.ID, err)
	}
	return &p, nil
}

// GetPlan retrieves a plan with its changes, space and notes.
func (s *Store) GetPlan(id int64) (*Plan, error) {
	row := s.db.QueryRow(`SELECT `+planColumns+` FROM plans p WHERE p.id = ?`, id)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %d: %w", id, notInitialized(err))
	}
	if err := s.loadDetails(p); err != nil {
		return nil, err
	}
	return p, nil
}

// LatestPlan returns the most recently recorded plan, or nil if there is
// none.
func (s *Store) LatestPlan() (*Plan, error) {
	plans, err := s.ListPlans(1)
	if err != nil || len(plans) == 0 {
		return nil, err
	}
	return s.GetPlan(plans[0].ID)
}

// ListPlans returns the newest plans first, without details. A limit of
// zero or less returns every plan.
func (s *Store) ListPlans(limit int) ([]*Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans p ORDER BY p.created_at DESC, p.id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", notInitialized(err))
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plans = append(plans, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

// PlansChanging returns the ids of plans that change pkg, newest first.
func (s *Store) PlansChanging(pkg string) ([]int64, error) {
	rows, err := s.db.Query(`
		SELECT c.plan_id
		FROM plan_changes c JOIN plans p ON p.id = c.plan_id
		WHERE c.package = ?
		ORDER BY p.created_at DESC, p.id DESC
	`, pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to find plans changing %s: %w", pkg, notInitialized(err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan plan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan ids: %w", err)
	}
	return ids, nil
}

// DeletePlansBefore removes plans created before t and returns how many
// were removed.
func (s *Store) DeletePlansBefore(t time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM plans WHERE created_at < ?`, t.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete plans: %w", notInitialized(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) loadDetails(p *Plan) error {
	rows, err := s.db.Query(`
		SELECT package, mark, auto, from_version, to_version, download_bytes
		FROM plan_changes
		WHERE plan_id = ?
		ORDER BY package
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to get changes of plan %d: %w", p.ID, err)
	}
	for rows.Next() {
		var ch Change
		if err := rows.Scan(&ch.Package, &ch.Mark, &ch.Auto, &ch.FromVersion, &ch.ToVersion, &ch.DownloadBytes); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan change row: %w", err)
		}
		p.Changes = append(p.Changes, ch)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating changes: %w", err)
	}

	rows, err = s.db.Query(`
		SELECT mount_point, required_bytes, short_by
		FROM plan_space
		WHERE plan_id = ?
		ORDER BY mount_point
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to get space of plan %d: %w", p.ID, err)
	}
	for rows.Next() {
		var sp Space
		if err := rows.Scan(&sp.MountPoint, &sp.RequiredBytes, &sp.ShortBy); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan space row: %w", err)
		}
		p.Space = append(p.Space, sp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating space: %w", err)
	}

	rows, err = s.db.Query(`SELECT kind, value FROM plan_notes WHERE plan_id = ? ORDER BY rowid`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to get notes of plan %d: %w", p.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.Kind, &n.Value); err != nil {
			return fmt.Errorf("failed to scan note row: %w", err)
		}
		p.Notes = append(p.Notes, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating notes: %w", err)
	}
	return nil
}
