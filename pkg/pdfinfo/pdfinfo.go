// Package pdfinfo 在入库前对上传文件做结构校验，拒绝无法解析的 PDF。
package pdfinfo

import (
	"bytes"
	"fmt"
	"sync"

	"policyqa-go/internal/model"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Inspector 使用 pdfcpu 读取 PDF 的交叉引用表并统计页数。
type Inspector struct{}

// NewInspector 创建一个 Inspector。pdfcpu 的用户配置目录会被关闭，避免在服务器上写入 $HOME。
func NewInspector() *Inspector {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Inspector{}
}

// PageCount 返回 PDF 的页数；文件为空、不是 PDF 或没有任何页面时返回 model.ErrUnsupportedInput。
func (i *Inspector) PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty file", model.ErrUnsupportedInput)
	}
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrUnsupportedInput, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: pdf has no pages", model.ErrUnsupportedInput)
	}
	return n, nil
}
