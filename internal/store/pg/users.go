package pg

import (
	"context"
	"fmt"
)

type userRepo struct {
	db dbtx
}

// ListSuperuserIDs returns up to limit platform user ids flagged as admin,
// used by the Critical Handler (spec §4.4 step 1).
func (r *userRepo) ListSuperuserIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM users WHERE is_superuser = true ORDER BY user_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list superuser ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan superuser id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
