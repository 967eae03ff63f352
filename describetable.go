package mytunmcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sqlbridge/mysql-tunnel-mcp/internal/guard"
)

const indexesSQL = `
SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE
FROM information_schema.statistics
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY INDEX_NAME, SEQ_IN_INDEX
`

// DescribeTable returns the columns and indexes of a table. The table name
// is an identifier and cannot be parameter-bound in the DESCRIBE statement,
// so it is sanitized to [A-Za-z0-9_] before being embedded — the only place
// raw string concatenation into SQL is permitted.
func (m *MysqlTunnelMcp) DescribeTable(ctx context.Context, table string) (*DescribeTableOutput, error) {
	startTime := time.Now()

	name := guard.SanitizeIdentifier(table)
	if name == "" {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid table name %q: nothing remains after sanitization", table)}
	}

	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("DescribeTable: failed to acquire query slot: all %d slots are in use, context cancelled while waiting: %w", cap(m.semaphore), ctx.Err())
	}
	defer func() { <-m.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(m.config.Query.DescribeTableTimeoutSeconds)*time.Second)
	defer cancel()

	output := &DescribeTableOutput{Name: name}
	err := m.orch.Run(queryCtx, func(ctx context.Context, s Session) error {
		db, err := s.DB(ctx)
		if err != nil {
			return err
		}
		output.Columns, err = describeColumns(ctx, db, name)
		if err != nil {
			return err
		}
		output.Indexes, err = describeIndexes(ctx, db, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("table", name).
		Dur("duration", time.Since(startTime)).
		Int("column_count", len(output.Columns)).
		Msg("DescribeTable executed")

	return output, nil
}

func describeColumns(ctx context.Context, db *sql.DB, name string) ([]ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, "DESCRIBE `"+name+"`")
	if err != nil {
		return nil, fmt.Errorf("DESCRIBE failed: %w", err)
	}
	defer rows.Close()

	columns := []ColumnInfo{}
	for rows.Next() {
		var field, colType, nullable, key, extra string
		var defaultVal sql.NullString
		if err := rows.Scan(&field, &colType, &nullable, &key, &defaultVal, &extra); err != nil {
			return nil, fmt.Errorf("DESCRIBE scan failed: %w", err)
		}
		columns = append(columns, ColumnInfo{
			Name:     field,
			Type:     colType,
			Nullable: nullable == "YES",
			Key:      key,
			Default:  defaultVal.String,
			Extra:    extra,
		})
	}
	return columns, rows.Err()
}

func describeIndexes(ctx context.Context, db *sql.DB, name string) ([]IndexInfo, error) {
	rows, err := db.QueryContext(ctx, indexesSQL, name)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	defer rows.Close()

	indexes := []IndexInfo{}
	for rows.Next() {
		var indexName, columnName string
		var nonUnique int
		if err := rows.Scan(&indexName, &columnName, &nonUnique); err != nil {
			return nil, fmt.Errorf("index scan failed: %w", err)
		}
		// Rows arrive ordered by index name and column sequence, so
		// consecutive rows of the same index fold into one entry.
		if n := len(indexes); n > 0 && indexes[n-1].Name == indexName {
			indexes[n-1].Columns = append(indexes[n-1].Columns, columnName)
			continue
		}
		indexes = append(indexes, IndexInfo{
			Name:     indexName,
			Columns:  []string{columnName},
			IsUnique: nonUnique == 0,
		})
	}
	return indexes, rows.Err()
}
