package output

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"

	"eorc20-indexer/pkg/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordArray 匹配 pq.Array 编码后的 jsonb 数组参数，按顺序比较记录ID
type recordArray []string

func (ids recordArray) Match(v driver.Value) bool {
	var arr pq.StringArray
	if err := arr.Scan(v); err != nil {
		return false
	}
	if len(arr) != len(ids) {
		return false
	}
	for i, raw := range arr {
		var rec models.InscriptionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.ID != ids[i] {
			return false
		}
	}
	return true
}

func newMockPostgres(t *testing.T) (*PostgresOutput, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	mock.ExpectExec(postgresSchema).WillReturnResult(sqlmock.NewResult(0, 0))
	out, err := NewPostgresOutputWithDB(context.Background(), db, newTestLogger())
	require.NoError(t, err)
	return out, mock
}

func TestPostgresOutput_InsertKeepsOrderAndDedups(t *testing.T) {
	// 按数组下标排序插入，tx_id 冲突时跳过
	assert.Contains(t, insertInscriptionsSQL, "WITH ORDINALITY")
	assert.Contains(t, insertInscriptionsSQL, "ORDER BY ord")
	assert.Contains(t, insertInscriptionsSQL, "ON CONFLICT (tx_id) DO NOTHING")
	assert.Contains(t, insertBlockSQL, "ON CONFLICT (eos_block_id) DO NOTHING")

	out, mock := newMockPostgres(t)
	ctx := context.Background()

	batch := NewBatch()
	for _, id := range []string{"0xc", "0xa", "0xb"} {
		require.NoError(t, batch.Append(testRecord(id, 5)))
	}

	mock.ExpectBegin()
	mock.ExpectExec(insertInscriptionsSQL).
		WithArgs(recordArray{"0xc", "0xa", "0xb"}).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	// 重复投递：全部冲突，影响行数为 0
	mock.ExpectBegin()
	mock.ExpectExec(insertInscriptionsSQL).
		WithArgs(recordArray{"0xc", "0xa", "0xb"}).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, out.WriteInscriptions(ctx, batch))
	require.NoError(t, out.WriteInscriptions(ctx, batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutput_WriteFailureRollsBack(t *testing.T) {
	out, mock := newMockPostgres(t)
	batch := NewBatch()
	require.NoError(t, batch.Append(testRecord("0xa", 1)))

	diskFull := errors.New("could not extend file")
	mock.ExpectBegin()
	mock.ExpectExec(insertInscriptionsSQL).WithArgs(recordArray{"0xa"}).WillReturnError(diskFull)
	mock.ExpectRollback()

	err := out.WriteInscriptions(context.Background(), batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutput_CommitFailure(t *testing.T) {
	out, mock := newMockPostgres(t)
	batch := NewBatch()
	require.NoError(t, batch.Append(testRecord("0xa", 1)))

	mock.ExpectBegin()
	mock.ExpectExec(insertInscriptionsSQL).WithArgs(recordArray{"0xa"}).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(driver.ErrBadConn)

	assert.Error(t, out.WriteInscriptions(context.Background(), batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutput_EmptyBatchSkipsDatabase(t *testing.T) {
	out, mock := newMockPostgres(t)

	require.NoError(t, out.WriteInscriptions(context.Background(), nil))
	require.NoError(t, out.WriteInscriptions(context.Background(), NewBatch()))
	require.NoError(t, out.WriteBlock(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutput_WriteBlock(t *testing.T) {
	out, mock := newMockPostgres(t)
	block := &models.BlockRecord{Timestamp: 1700000000, BlockNumber: 5, EOSBlockNumber: 50, EOSBlockID: "b5"}

	mock.ExpectExec(insertBlockSQL).
		WithArgs("b5", uint64(50), uint64(5), int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertBlockSQL).
		WithArgs("b5", uint64(50), uint64(5), int64(1700000000)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectClose()

	require.NoError(t, out.WriteBlock(context.Background(), block))
	assert.Error(t, out.WriteBlock(context.Background(), block))
	require.NoError(t, out.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
