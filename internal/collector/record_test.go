package collector

import (
	"math/big"
	"testing"
	"time"

	"eorc20-indexer/internal/errors"
	"eorc20-indexer/internal/validation"
	"eorc20-indexer/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRecord(t *testing.T) {
	meta := BlockMeta{Number: 42, Timestamp: 1700000000, EOSBlockNumber: 99, EOSBlockID: "abc"}
	content := `data:,{"p":"eorc20","op":"deploy","tick":"eoss","max":"21000000","lim":"1000"}`
	op, err := validation.NewOpCodeValidator(nil, "").Validate(content)
	require.NoError(t, err)

	tx := &models.DecodedTransaction{
		Hash:  "0xhash",
		To:    "0xto",
		Data:  []byte(content),
		Value: big.NewInt(7),
	}

	t.Run("valid", func(t *testing.T) {
		rec, err := BuildRecord(meta, tx, content, op, "0xfrom")
		require.NoError(t, err)
		assert.Equal(t, &models.InscriptionRecord{
			ID:          "0xhash",
			Block:       42,
			Timestamp:   1700000000,
			From:        "0xfrom",
			To:          "0xto",
			ContentType: "application/json",
			Content:     content,
			Value:       "7",
		}, rec)
	})

	t.Run("missing opcode", func(t *testing.T) {
		_, err := BuildRecord(meta, tx, content, nil, "0xfrom")
		assert.ErrorIs(t, err, errors.ErrInvalidOpCode)
	})

	t.Run("empty sender", func(t *testing.T) {
		_, err := BuildRecord(meta, tx, content, op, "")
		assert.ErrorIs(t, err, errors.ErrSenderResolution)
	})

	t.Run("zero value omitted", func(t *testing.T) {
		noValue := *tx
		noValue.Value = nil
		rec, err := BuildRecord(meta, &noValue, content, op, "0xfrom")
		require.NoError(t, err)
		assert.Empty(t, rec.Value)
	})
}

func TestBlockMeta_Record(t *testing.T) {
	meta := BlockMeta{Number: 1, Timestamp: 2, EOSBlockNumber: 3, EOSBlockID: "id"}
	assert.Equal(t, &models.BlockRecord{Timestamp: 2, BlockNumber: 1, EOSBlockNumber: 3, EOSBlockID: "id"}, meta.Record())
}

func TestReporter_ThrottlesOncePerSecond(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := newReporterWithClock(newTestLogger(), func() time.Time { return now })

	// 与启动时间同一秒内不输出
	assert.False(t, r.Record(1))
	assert.False(t, r.Record(1))

	now = now.Add(time.Second)
	assert.True(t, r.Record(2))
	assert.False(t, r.Record(2))

	now = now.Add(3 * time.Second)
	assert.True(t, r.Record(5))

	assert.Equal(t, uint64(5), r.Total())
	assert.Equal(t, uint64(5), r.LastBlock())
	assert.InDelta(t, 5.0/4.0, r.Rate(), 0.001)
}
