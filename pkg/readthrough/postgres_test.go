package readthrough_test

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
	"github.com/calvinalkan/bucketcache/pkg/readthrough"
)

type user struct {
	ID    int64  `db:"id"`
	Email string `db:"email"`
}

// fakeRows serves a fixed result set through pgx.Rows.
type fakeRows struct {
	cols []string
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}

	return out
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}

	r.pos++

	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.pos-1], nil }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("fakeRows: column count mismatch")
	}

	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}

	return nil
}

type fakeQuerier struct {
	rows    *fakeRows
	err     error
	gotSQL  string
	gotArgs []any
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.gotSQL = sql
	q.gotArgs = args

	if q.err != nil {
		return nil, q.err
	}

	return q.rows, nil
}

const userByID = "SELECT id, email FROM users WHERE id = $1"

func Test_RowLoader_Scans_Row_By_Column_Name(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{rows: &fakeRows{
		cols: []string{"email", "id"},
		data: [][]any{{"ada@example.com", int64(7)}},
	}}

	load := readthrough.RowLoader[int64, user](q, userByID)

	u, err := load(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, user{ID: 7, Email: "ada@example.com"}, u)
	assert.Equal(t, userByID, q.gotSQL)
	assert.Equal(t, []any{int64(7)}, q.gotArgs)
}

func Test_RowLoader_Returns_ErrNotFound_When_No_Rows(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{rows: &fakeRows{cols: []string{"id", "email"}}}

	_, err := readthrough.RowLoader[int64, user](q, userByID)(t.Context(), 1)
	require.ErrorIs(t, err, readthrough.ErrNotFound)
}

func Test_RowLoader_Returns_Error_When_Query_Fails_Or_Too_Many_Rows(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")

	_, err := readthrough.RowLoader[int64, user](&fakeQuerier{err: boom}, userByID)(t.Context(), 1)
	require.ErrorIs(t, err, boom)

	q := &fakeQuerier{rows: &fakeRows{
		cols: []string{"id", "email"},
		data: [][]any{{int64(1), "a@example.com"}, {int64(1), "b@example.com"}},
	}}

	_, err = readthrough.RowLoader[int64, user](q, userByID)(t.Context(), 1)
	require.ErrorIs(t, err, pgx.ErrTooManyRows)
}

func Test_Cache_Loads_From_Postgres(t *testing.T) {
	connString := os.Getenv("PG_CONN_URL")
	if connString == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := t.Context()

	pool, err := readthrough.ConnectPostgres(ctx, connString)
	require.NoError(t, err)

	t.Cleanup(pool.Close)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)

	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })

	_, err = tx.Exec(ctx, `CREATE TEMP TABLE users (id bigint PRIMARY KEY, email text NOT NULL) ON COMMIT DROP`)
	require.NoError(t, err)

	_, err = tx.Exec(ctx, `INSERT INTO users (id, email) VALUES (1, 'ada@example.com'), (2, 'alan@example.com')`)
	require.NoError(t, err)

	store, err := bucketcache.NewStore()
	require.NoError(t, err)

	cache := readthrough.New(
		bucketcache.Keys[int64](store, "users"),
		readthrough.RowLoader[int64, user](tx, userByID),
		readthrough.Options{MaxAgeSec: 30},
	)

	u, err := cache.GetOrLoad(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "alan@example.com", u.Email)

	_, err = cache.GetOrLoad(ctx, 99)
	require.ErrorIs(t, err, readthrough.ErrNotFound)

	_, err = cache.GetOrLoad(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cache.Loads())
}
