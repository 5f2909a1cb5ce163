package connector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRows struct {
	cols    []string
	data    [][]interface{}
	pos     int
	readErr error
}

func (r *stubRows) Columns() ([]string, error) { return r.cols, nil }

func (r *stubRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Scan(dest ...interface{}) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		*(d.(*interface{})) = row[i]
	}
	return nil
}

func (r *stubRows) Err() error { return r.readErr }

func TestFormatRows(t *testing.T) {
	rows := &stubRows{
		cols: []string{"id", "name", "note"},
		data: [][]interface{}{
			{int64(1), []byte("alice"), nil},
			{int64(2), []byte("bob"), "ops"},
		},
	}

	output, count, err := formatRows(rows)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "id\tname\tnote\n1\talice\tNULL\n2\tbob\tops\n", output)
}

func TestFormatRowsSurfacesMidStreamError(t *testing.T) {
	// The driver stops the iterator early on a read failure; that must not
	// pass for a complete result set.
	rows := &stubRows{
		cols:    []string{"id"},
		data:    [][]interface{}{{int64(1)}},
		readErr: errors.New("connection reset mid-stream"),
	}

	_, _, err := formatRows(rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mid-stream")
}

func TestIsRowQuery(t *testing.T) {
	assert.True(t, isRowQuery("select 1"))
	assert.True(t, isRowQuery("SHOW TABLES"))
	assert.True(t, isRowQuery("with t as (select 1) select * from t"))
	assert.False(t, isRowQuery("update jobs set name = 'x'"))
	assert.False(t, isRowQuery("delete from jobs"))
}
