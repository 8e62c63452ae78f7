package validation

import (
	"io"
	"math/big"
	"testing"

	"eorc20-indexer/internal/errors"
	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *OpCodeValidator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewOpCodeValidator(logger, "")
}

func TestNewOpCodeValidator(t *testing.T) {
	v := NewOpCodeValidator(logrus.New(), "")
	assert.Equal(t, "eorc20", v.Protocol())

	v = NewOpCodeValidator(logrus.New(), "rrc-20")
	assert.Equal(t, "rrc-20", v.Protocol())
}

func TestValidate_Deploy(t *testing.T) {
	v := newTestValidator()

	content := `data:application/json,{"p":"eorc20","op":"deploy","tick":"eoss","max":"210000000000","lim":"10000","prec":0}`
	op, err := v.Validate(content)
	require.NoError(t, err)

	deploy, ok := op.(*models.DeployOpCode)
	require.True(t, ok, "应解析为部署操作")
	assert.Equal(t, models.OpDeploy, deploy.Kind())
	assert.Equal(t, "eorc20", deploy.Protocol())
	assert.Equal(t, "eoss", deploy.Ticker())
	assert.Equal(t, "210000000000", deploy.Max.String())

	lim, ok := deploy.Limit()
	require.True(t, ok)
	assert.Equal(t, big.NewInt(10000), lim)

	prec, ok := deploy.Precision()
	require.True(t, ok)
	assert.Equal(t, 0, prec)

	assert.JSONEq(t, `{"p":"eorc20","op":"deploy","tick":"eoss","max":"210000000000","lim":"10000","prec":0}`, string(deploy.Raw()))
}

func TestValidate_DeployWithoutOptionalFields(t *testing.T) {
	v := newTestValidator()

	op, err := v.Validate(`data:,{"p":"eorc20","op":"deploy","tick":"eoss","max":"21"}`)
	require.NoError(t, err)

	deploy := op.(*models.DeployOpCode)
	_, ok := deploy.Limit()
	assert.False(t, ok)
	_, ok = deploy.Precision()
	assert.False(t, ok)
}

func TestValidate_MintAndTransfer(t *testing.T) {
	v := newTestValidator()

	op, err := v.Validate(`data:,{"p":"eorc20","op":"mint","tick":"eoss","amt":"10000"}`)
	require.NoError(t, err)
	mint, ok := op.(*models.MintOpCode)
	require.True(t, ok)
	assert.Equal(t, "10000", mint.Amt.String())

	op, err = v.Validate(`data:application/json,{"p":"eorc20","op":"transfer","tick":"eoss","amt":"1"}`)
	require.NoError(t, err)
	transfer, ok := op.(*models.TransferOpCode)
	require.True(t, ok)
	assert.Equal(t, models.OpTransfer, transfer.Kind())
	assert.Equal(t, "1", transfer.Amt.String())
}

func TestValidate_Rejections(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"no marker", `{"p":"eorc20","op":"mint","tick":"eoss","amt":"1"}`, ReasonNoMarker},
		{"empty payload", `data:,`, ReasonNoMarker},
		{"unknown media type", `data:text/plain,{"p":"eorc20","op":"mint","tick":"eoss","amt":"1"}`, ReasonNoMarker},
		{"not json", `data:,hello world`, ReasonInvalidJSON},
		{"json array", `data:,[1,2,3]`, ReasonInvalidJSON},
		{"json null", `data:,null`, ReasonInvalidJSON},
		{"missing p", `data:,{"op":"mint","tick":"eoss","amt":"1"}`, ReasonMissingField},
		{"missing tick", `data:,{"p":"eorc20","op":"mint","amt":"1"}`, ReasonMissingField},
		{"empty tick", `data:,{"p":"eorc20","op":"mint","tick":"","amt":"1"}`, ReasonMissingField},
		{"missing op", `data:,{"p":"eorc20","tick":"eoss","amt":"1"}`, ReasonMissingField},
		{"numeric tick", `data:,{"p":"eorc20","op":"mint","tick":5,"amt":"1"}`, ReasonMissingField},
		{"wrong protocol", `data:,{"p":"brc-20","op":"mint","tick":"eoss","amt":"1"}`, ReasonWrongProtocol},
		{"protocol case", `data:,{"p":"EORC20","op":"mint","tick":"eoss","amt":"1"}`, ReasonWrongProtocol},
		{"unknown op", `data:,{"p":"eorc20","op":"burn","tick":"eoss","amt":"1"}`, ReasonUnknownOp},
		{"negative amt", `data:application/json,{"p":"eorc20","op":"mint","tick":"eoss","amt":"-5"}`, ReasonInvalidAmount},
		{"decimal amt", `data:,{"p":"eorc20","op":"mint","tick":"eoss","amt":"1.5"}`, ReasonInvalidAmount},
		{"word amt", `data:,{"p":"eorc20","op":"transfer","tick":"eoss","amt":"ten"}`, ReasonInvalidAmount},
		{"missing amt", `data:,{"p":"eorc20","op":"transfer","tick":"eoss"}`, ReasonInvalidAmount},
		{"empty amt", `data:,{"p":"eorc20","op":"mint","tick":"eoss","amt":""}`, ReasonInvalidAmount},
		{"exponent amt", `data:,{"p":"eorc20","op":"mint","tick":"eoss","amt":"1e3"}`, ReasonInvalidAmount},
		{"negative max", `data:,{"p":"eorc20","op":"deploy","tick":"eoss","max":"-1"}`, ReasonInvalidMaximum},
		{"missing max", `data:,{"p":"eorc20","op":"deploy","tick":"eoss","lim":"1"}`, ReasonInvalidMaximum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := v.Validate(tt.content)
			assert.Nil(t, op)
			require.Error(t, err)

			ie, ok := errors.AsIndexerError(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrInvalidOpCode.Code, ie.Code)
			assert.Equal(t, tt.reason, ie.Context["reason"])

			assert.Nil(t, v.ParseOpCode(tt.content))
		})
	}
}

func TestValidate_AmountBoundaries(t *testing.T) {
	v := newTestValidator()

	accepted := []string{
		`"0"`,
		`"999999999999999999999999"`,
		`"115792089237316195423570985008687907853269984665640564039457584007913129639936"`,
		`10`,
	}
	for _, amt := range accepted {
		op, err := v.Validate(`data:,{"p":"eorc20","op":"mint","tick":"eoss","amt":` + amt + `}`)
		require.NoError(t, err, amt)
		assert.GreaterOrEqual(t, op.(*models.MintOpCode).Amt.Sign(), 0, amt)
	}

	op, err := v.Validate(`data:,{"p":"eorc20","op":"deploy","tick":"eoss","max":"0"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, op.(*models.DeployOpCode).Max.Sign())

	big24, ok := new(big.Int).SetString("999999999999999999999999", 10)
	require.True(t, ok)
	op, err = v.Validate(`data:,{"p":"eorc20","op":"transfer","tick":"eoss","amt":"999999999999999999999999"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, big24.Cmp(op.(*models.TransferOpCode).Amt))
}

func TestValidate_IsIdempotent(t *testing.T) {
	v := newTestValidator()
	content := `data:,{"p":"eorc20","op":"deploy","tick":"eoss","max":"210000000000","lim":"10000","prec":0}`

	first, err := v.Validate(content)
	require.NoError(t, err)
	second, err := v.Validate(content)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestValidate_SegmentBetweenMarkers(t *testing.T) {
	v := newTestValidator()

	// 只取第一个标记之后、下一个标记之前的内容
	op, err := v.Validate(`prefix data:,{"p":"eorc20","op":"mint","tick":"eoss","amt":"7"}data:,ignored`)
	require.NoError(t, err)
	assert.Equal(t, "eoss", op.Ticker())

	_, err = v.Validate(`data:,{"p":"eorc20","op":"mint","tick":"eoss","amt":"7"} trailing`)
	assert.Error(t, err)
}
