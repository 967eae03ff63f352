package mytunmcp

import (
	"context"
	"fmt"
	"time"
)

// ListTables returns all tables and views in the configured database.
// Bypasses the read-only guard (the statement is fixed) but goes through the
// orchestrator like any other operation, so it resets the idle timer and
// participates in transient-failure recovery.
func (m *MysqlTunnelMcp) ListTables(ctx context.Context) (*ListTablesOutput, error) {
	startTime := time.Now()

	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("ListTables: failed to acquire query slot: all %d slots are in use, context cancelled while waiting: %w", cap(m.semaphore), ctx.Err())
	}
	defer func() { <-m.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(m.config.Query.ListTablesTimeoutSeconds)*time.Second)
	defer cancel()

	var tables []TableEntry
	err := m.orch.Run(queryCtx, func(ctx context.Context, s Session) error {
		db, err := s.DB(ctx)
		if err != nil {
			return err
		}
		rows, err := db.QueryContext(ctx, "SHOW FULL TABLES")
		if err != nil {
			return fmt.Errorf("ListTables query failed: %w", err)
		}
		defer rows.Close()

		tables = tables[:0]
		for rows.Next() {
			var name, kind string
			if err := rows.Scan(&name, &kind); err != nil {
				return fmt.Errorf("ListTables scan failed: %w", err)
			}
			entry := TableEntry{Name: name, Type: "table"}
			if kind == "VIEW" {
				entry.Type = "view"
			}
			tables = append(tables, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if tables == nil {
		tables = []TableEntry{}
	}

	m.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Database: m.config.Database.Name, Tables: tables}, nil
}
