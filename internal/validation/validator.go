package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	"eorc20-indexer/internal/errors"
	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
)

// markerPattern data-URI 标记，允许 "data:," 与 "data:application/json,"
var markerPattern = regexp.MustCompile(`data:(?:application/json)?,`)

// 拒绝原因
const (
	ReasonNoMarker       = "no_marker"
	ReasonInvalidJSON    = "invalid_json"
	ReasonMissingField   = "missing_field"
	ReasonWrongProtocol  = "wrong_protocol"
	ReasonUnknownOp      = "unknown_op"
	ReasonInvalidAmount  = "invalid_amount"
	ReasonInvalidMaximum = "invalid_max"
)

// OpCodeValidator 铭文操作解析与校验器
type OpCodeValidator struct {
	logger   *logrus.Logger
	protocol string
}

// NewOpCodeValidator 创建校验器，protocol 为空时使用 eorc20
func NewOpCodeValidator(logger *logrus.Logger, protocol string) *OpCodeValidator {
	if protocol == "" {
		protocol = models.ProtocolEORC20
	}
	return &OpCodeValidator{
		logger:   logger,
		protocol: protocol,
	}
}

// Protocol 返回协议标识
func (v *OpCodeValidator) Protocol() string {
	return v.protocol
}

// ParseOpCode 解析并校验，失败时返回 nil
func (v *OpCodeValidator) ParseOpCode(content string) models.AnyOpCode {
	op, err := v.Validate(content)
	if err != nil {
		if v.logger != nil {
			v.logger.Debugf("铭文校验未通过: %v", err)
		}
		return nil
	}
	return op
}

// Validate 解析并校验铭文文本，失败时返回 ErrInvalidOpCode（带 reason 上下文）
func (v *OpCodeValidator) Validate(content string) (models.AnyOpCode, error) {
	payload, ok := extractPayload(content)
	if !ok {
		return nil, reject(ReasonNoMarker, "")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil || fields == nil {
		return nil, errors.ErrInvalidOpCode.Wrap(err).WithContext("reason", ReasonInvalidJSON)
	}

	// 必填字段
	p, okP := stringField(fields, "p")
	tick, okT := stringField(fields, "tick")
	op, okO := stringField(fields, "op")
	if !okP || !okT || !okO {
		return nil, reject(ReasonMissingField, "p/tick/op")
	}

	if p != v.protocol {
		return nil, reject(ReasonWrongProtocol, p)
	}

	kind := models.OpKind(op)
	if !kind.IsValid() {
		return nil, reject(ReasonUnknownOp, op)
	}

	header := models.OpHeader{P: p, Op: kind, Tick: tick}
	header.SetRaw([]byte(payload))

	switch kind {
	case models.OpMint, models.OpTransfer:
		amt, ok := models.ParseAmount(fields["amt"])
		if !ok {
			return nil, reject(ReasonInvalidAmount, string(fields["amt"]))
		}
		if kind == models.OpMint {
			return &models.MintOpCode{OpHeader: header, Amt: amt}, nil
		}
		return &models.TransferOpCode{OpHeader: header, Amt: amt}, nil

	default:
		maxSupply, ok := models.ParseAmount(fields["max"])
		if !ok {
			return nil, reject(ReasonInvalidMaximum, string(fields["max"]))
		}
		return &models.DeployOpCode{
			OpHeader: header,
			Max:      maxSupply,
			Lim:      fields["lim"],
			Prec:     fields["prec"],
		}, nil
	}
}

// extractPayload 取第一个标记之后、下一个标记之前的文本
func extractPayload(content string) (string, bool) {
	parts := markerPattern.Split(content, 3)
	if len(parts) < 2 {
		return "", false
	}
	payload := strings.TrimSpace(parts[1])
	if payload == "" {
		return "", false
	}
	return payload, true
}

// stringField 读取非空字符串字段
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, exists := fields[key]
	if !exists {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if s == "" {
		return "", false
	}
	return s, true
}

func reject(reason, detail string) error {
	err := errors.ErrInvalidOpCode.WithContext("reason", reason)
	if detail != "" {
		err = err.WithContext("detail", detail)
	}
	return err
}
