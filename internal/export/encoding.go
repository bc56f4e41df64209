package export

import (
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// LookupEncoding 按名称查找输出编码，UTF-8 返回 nil（直接写出原始字节）
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown encoding %q", name)
	}
	if canonical, _ := htmlindex.Name(enc); canonical == "utf-8" {
		return nil, nil
	}
	return enc, nil
}
