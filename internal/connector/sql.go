package connector

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"opsbridge/console/internal/secrets"
)

// sqlConnector runs ad hoc queries against a database target. One gorm
// connection is opened lazily and reused for the branch's lifetime.
type sqlConnector struct {
	driver string
	dsn    string
	addr   string
	db     *gorm.DB
}

// NewSQL builds a SQL connector. Settings: "driver" selects the dialect
// ("postgres" or "mysql", default postgres), "database" names the schema.
func NewSQL(ep Endpoint, cred secrets.Credential) (Connector, error) {
	driver := ep.Settings["driver"]
	if driver == "" {
		driver = "postgres"
	}
	database := ep.Settings["database"]

	var dsn string
	port := ep.Port
	switch driver {
	case "postgres":
		if port == 0 {
			port = 5432
		}
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
			ep.Host, cred.Username, cred.Password, database, port)
	case "mysql":
		if port == 0 {
			port = 3306
		}
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cred.Username, cred.Password, ep.Host, port, database)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}

	return &sqlConnector{
		driver: driver,
		dsn:    dsn,
		addr:   fmt.Sprintf("%s:%d", ep.Host, port),
	}, nil
}

func (c *sqlConnector) dial() error {
	if c.db != nil {
		return nil
	}
	var dialector gorm.Dialector
	switch c.driver {
	case "mysql":
		dialector = mysql.Open(c.dsn)
	default:
		dialector = postgres.Open(c.dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return &ConnectionError{
			Protocol: "sql",
			Addr:     c.addr,
			Auth:     strings.Contains(err.Error(), "authentication") || strings.Contains(err.Error(), "Access denied"),
			Err:      err,
		}
	}
	c.db = db
	return nil
}

func (c *sqlConnector) Execute(ctx context.Context, act Action) (Outcome, error) {
	if err := c.dial(); err != nil {
		return Outcome{}, err
	}

	query := strings.TrimSpace(act.Command)
	session := c.db.WithContext(ctx)

	if isRowQuery(query) {
		rows, err := session.Raw(query).Rows()
		if err != nil {
			return c.queryFailure(ctx, act, err)
		}
		defer rows.Close()
		output, count, err := formatRows(rows)
		if err != nil {
			return Outcome{ExitCode: 1, ErrOutput: err.Error()}, nil
		}
		return Outcome{Output: fmt.Sprintf("%s(%d rows)\n", output, count)}, nil
	}

	res := session.Exec(query)
	if res.Error != nil {
		return c.queryFailure(ctx, act, res.Error)
	}
	return Outcome{Output: fmt.Sprintf("%d rows affected\n", res.RowsAffected)}, nil
}

// queryFailure separates infrastructure failures from queries the server
// rejected: the latter ran and are recorded, not retried.
func (c *sqlConnector) queryFailure(ctx context.Context, act Action, err error) (Outcome, error) {
	if ctx.Err() != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Outcome{}, &TimeoutError{Protocol: "sql", Action: act.Name}
		}
		return Outcome{}, ctx.Err()
	}
	if strings.Contains(err.Error(), "connect") || strings.Contains(err.Error(), "broken pipe") {
		c.Close()
		return Outcome{}, &ConnectionError{Protocol: "sql", Addr: c.addr, Err: err}
	}
	return Outcome{ExitCode: 1, ErrOutput: err.Error()}, nil
}

func isRowQuery(query string) bool {
	head := strings.ToLower(query)
	for _, prefix := range []string{"select", "show", "with", "explain", "describe"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

func formatRows(rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) (string, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", 0, err
	}

	var b strings.Builder
	b.WriteString(strings.Join(cols, "\t"))
	b.WriteString("\n")

	count := 0
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", count, err
		}
		fields := make([]string, len(cols))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				fields[i] = "NULL"
			case []byte:
				fields[i] = string(val)
			default:
				fields[i] = fmt.Sprintf("%v", val)
			}
		}
		b.WriteString(strings.Join(fields, "\t"))
		b.WriteString("\n")
		count++
	}
	// Next() returning false can mean a read failure mid-stream, not the
	// end of the result set.
	if err := rows.Err(); err != nil {
		return "", count, err
	}
	return b.String(), count, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	if err := c.dial(); err != nil {
		return err
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &ConnectionError{Protocol: "sql", Addr: c.addr, Err: err}
	}
	return nil
}

func (c *sqlConnector) Close() error {
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
