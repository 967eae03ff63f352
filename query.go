package mytunmcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/sqlbridge/mysql-tunnel-mcp/internal/guard"
)

// ReadQuery executes the full read-only query pipeline and returns only
// QueryOutput. All errors (validation rejections, tunnel failures, MySQL
// errors) are converted to output.Error, annotated with any matching hints.
// Callers only need to check output.Error, never a Go error.
func (m *MysqlTunnelMcp) ReadQuery(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()
	sqlText := input.SQL

	// 1. Acquire semaphore (respects context cancellation to prevent deadlock)
	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		return m.handleError(fmt.Errorf("failed to acquire query slot: all %d slots are in use, context cancelled while waiting: %w", cap(m.semaphore), ctx.Err()))
	}
	defer func() { <-m.semaphore }()

	// 2. Check SQL length before any processing
	if len(sqlText) > m.config.Query.MaxSQLLength {
		return m.handleError(&ValidationError{Reason: fmt.Sprintf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(sqlText), m.config.Query.MaxSQLLength)})
	}

	// 3. Read-only check — rejected queries never reach the orchestrator,
	// so a rejection cannot open a tunnel.
	if err := guard.CheckReadOnly(sqlText); err != nil {
		return m.handleError(&ValidationError{Reason: err.Error()})
	}

	// 4. Determine timeout
	queryTimeout, timeoutRule := m.timeoutRes.Resolve(sqlText)
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 5. Execute through the orchestrator (tunnel ensured, one retry on
	// transient connection failure)
	var result *QueryOutput
	err := m.orch.Run(queryCtx, func(ctx context.Context, s Session) error {
		db, err := s.DB(ctx)
		if err != nil {
			return err
		}
		rows, err := db.QueryContext(ctx, sqlText)
		if err != nil {
			return err
		}
		result, err = collectRows(rows)
		return err
	})
	if err != nil {
		return m.handleError(err)
	}

	// 6. Apply sanitization and result length truncation
	result.Rows = m.masker.MaskRows(result.Rows)
	m.truncateIfNeeded(result)

	// 7. Log successful execution
	logEvent := m.logger.Info().
		Str("sql", truncateForLog(sqlText, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(result.Rows))
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if m.masker.HasRules() {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("query executed")

	return result
}

// collectRows reads all rows from sql.Rows into a QueryOutput.
func collectRows(rows *sql.Rows) (*QueryOutput, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := make([]map[string]interface{}, 0)
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryOutput{Columns: columns, Rows: resultRows}, nil
}

// convertValue converts a driver-returned value to a JSON-friendly Go type.
// The MySQL driver hands back []byte for text, decimal, and blob columns.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	default:
		return val
	}
}

func convertFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}

// handleError converts any error into a QueryOutput with an error message,
// annotated with matching hint messages.
func (m *MysqlTunnelMcp) handleError(err error) *QueryOutput {
	errMsg, patterns := m.hints.Annotate(err.Error())

	logEvent := m.logger.Error().Err(err)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("hints", patterns)
	}
	logEvent.Msg("query error")

	return &QueryOutput{Error: errMsg}
}

// truncateIfNeeded truncates query output rows if their JSON encoding
// exceeds MaxResultLength characters.
func (m *MysqlTunnelMcp) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= m.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	truncated := string(runes[:m.config.Query.MaxResultLength])
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
