package store

import (
	"context"
	"fmt"

	"github.com/dezgo/tradintel/internal/alerts"
)

// ActiveAlerts implements alerts.AlertStore, listing every alert still
// flagged active, for internal/alerts.Monitor.Tick.
func (s *Store) ActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, target_price, condition, email
		FROM price_alerts WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("active alerts: %w", err)
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		var a alerts.Alert
		var condition string
		if err := rows.Scan(&a.ID, &a.Symbol, &a.TargetPrice, &condition, &a.Email); err != nil {
			return nil, fmt.Errorf("active alerts: scan: %w", err)
		}
		a.Condition = alerts.Condition(condition)
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkChecked records when an alert was last evaluated (last_checked_ts);
// the price argument is not stored.
func (s *Store) MarkChecked(ctx context.Context, alertID int64, price float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE price_alerts SET last_checked_ts = unixepoch() WHERE id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	return nil
}

// MarkTriggered deactivates an alert once its condition fires, so it
// notifies exactly once.
func (s *Store) MarkTriggered(ctx context.Context, alertID int64, triggeredTs int64, price float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE price_alerts SET active = 0, triggered_ts = ?, triggered_price = ? WHERE id = ?`,
		triggeredTs, price, alertID)
	if err != nil {
		return fmt.Errorf("mark triggered: %w", err)
	}
	return nil
}
