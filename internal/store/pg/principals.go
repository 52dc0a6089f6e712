package pg

import (
	"context"
	"database/sql"
	"errors"

	"docportal.org/internal/perm"
)

var _ perm.PrincipalStore = (*Store)(nil)

// GetPrincipal loads a user together with their department assignments. Ended
// assignments are included so callers can reason about history; Active() on
// each assignment tells them apart.
func (s *Store) GetPrincipal(ctx context.Context, userID string) (perm.Principal, error) {
	if s.db == nil {
		return perm.Principal{}, errors.New("database connection unavailable")
	}
	var p perm.Principal
	err := s.db.QueryRowContext(ctx, `
		select id, role, is_active
		from users
		where id = $1
	`, userID).Scan(&p.ID, &p.Role, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return perm.Principal{}, perm.ErrNotFound
	}
	if err != nil {
		return perm.Principal{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select department_id, start_date, end_date, is_primary
		from department_assignments
		where user_id = $1
		order by start_date
	`, userID)
	if err != nil {
		return perm.Principal{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a       perm.Assignment
			endDate sql.NullTime
		)
		if err := rows.Scan(&a.DepartmentID, &a.StartDate, &endDate, &a.IsPrimary); err != nil {
			return perm.Principal{}, err
		}
		a.EndDate = timePtr(endDate)
		p.Assignments = append(p.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return perm.Principal{}, err
	}
	return p, nil
}
