package mytunmcp

// QueryInput is the input for the ReadQuery tool.
type QueryInput struct {
	SQL string `json:"sql"`
}

// QueryOutput is the output of the ReadQuery tool. All errors (MySQL errors,
// validation rejections, tunnel failures) are placed in Error; matching hint
// messages are appended to it. Callers only check Error, never a Go error.
type QueryOutput struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
	Error   string                   `json:"error,omitempty"`
}

// TableEntry represents a single table or view in the ListTables output.
type TableEntry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "table" or "view"
}

// ListTablesOutput is the output of the ListTables tool.
type ListTablesOutput struct {
	Database string       `json:"database"`
	Tables   []TableEntry `json:"tables"`
	Error    string       `json:"error,omitempty"`
}

// ColumnInfo describes a single column as reported by DESCRIBE.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      string `json:"key,omitempty"` // PRI, UNI, MUL
	Default  string `json:"default,omitempty"`
	Extra    string `json:"extra,omitempty"` // auto_increment etc.
}

// IndexInfo describes a single index as reported by SHOW INDEX.
type IndexInfo struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
}

// DescribeTableOutput is the output of the DescribeTable tool.
type DescribeTableOutput struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
	Indexes []IndexInfo  `json:"indexes"`
	Error   string       `json:"error,omitempty"`
}

// ConnectOutput is the output of the ConnectDB tool.
type ConnectOutput struct {
	Connected bool   `json:"connected"`
	Tunnel    string `json:"tunnel"` // "open" or "closed"
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Error     string `json:"error,omitempty"`
}
