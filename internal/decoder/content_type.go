package decoder

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType 无法识别时的类型
const DefaultContentType = "application/octet-stream"

// DetectContentType 识别铭文内容类型
// data-URI 声明了媒体类型时直接使用，否则对数据部分做嗅探
func DetectContentType(content string) (contentType string) {
	defer func() {
		if r := recover(); r != nil {
			contentType = DefaultContentType
		}
	}()

	body := content
	if idx := strings.Index(content, "data:"); idx >= 0 {
		rest := content[idx+len("data:"):]
		if comma := strings.IndexByte(rest, ','); comma >= 0 {
			header := rest[:comma]
			if semi := strings.IndexByte(header, ';'); semi >= 0 {
				header = header[:semi]
			}
			if mt := strings.TrimSpace(header); mt != "" {
				return strings.ToLower(mt)
			}
			body = rest[comma+1:]
		}
	}

	if strings.TrimSpace(body) == "" {
		return DefaultContentType
	}
	mt := mimetype.Detect([]byte(body))
	if mt == nil {
		return DefaultContentType
	}
	return mt.String()
}
