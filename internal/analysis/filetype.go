package analysis

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/h2non/filetype"
)

// headSize filetype 库建议读取的文件头长度
const headSize = 262

// Result 被访问目标的类型信息，用于补充终止记录
type Result struct {
	RealExt     string // 根据文件头识别的类型，目录为 "dir"，其他非普通文件为 "special"
	DeclaredExt string // 文件名后缀
	Masquerade  bool // 文件头与后缀不一致
}

// TypeInspector 识别受保护目录中被访问文件的真实类型
type TypeInspector struct {
	aliasMap map[string]map[string]bool
}

func NewTypeInspector() *TypeInspector {
	t := &TypeInspector{aliasMap: make(map[string]map[string]bool)}
	allow := func(realType string, exts ...string) {
		t.aliasMap[realType] = map[string]bool{realType: true}
		for _, ext := range exts {
			t.aliasMap[realType][ext] = true
		}
	}
	// 这些“表里不一”是合法的
	allow("zip", "docx", "xlsx", "pptx", "jar", "apk", "odt", "ods", "odp", "whl")
	allow("gz", "gzip", "tgz")
	allow("mp4", "m4v", "mov")
	allow("jpg", "jpeg")
	allow("tif", "tiff")
	return t
}

// Inspect 只读取文件头，不修改目标
func (t *TypeInspector) Inspect(path string) (Result, error) {
	res := Result{DeclaredExt: strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))}

	// FIFO、设备等非普通文件不打开，阻塞的 open 会卡住 worker
	info, err := os.Lstat(path)
	if err != nil {
		return res, fmt.Errorf("stat target failed: %w", err)
	}
	if info.IsDir() {
		res.RealExt = "dir"
		return res, nil
	}
	if !info.Mode().IsRegular() {
		res.RealExt = "special"
		return res, nil
	}

	// Lstat 之后路径可能被替换，O_NONBLOCK 保证 open 不阻塞
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return res, fmt.Errorf("open target failed: %w", err)
	}
	defer f.Close()

	if info, err = f.Stat(); err != nil {
		return res, fmt.Errorf("stat target failed: %w", err)
	}
	if !info.Mode().IsRegular() {
		res.RealExt = "special"
		return res, nil
	}

	head := make([]byte, headSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return res, fmt.Errorf("read header failed: %w", err)
	}
	if n == 0 {
		res.RealExt = "empty"
		return res, nil
	}

	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		// 纯文本等无 magic bytes 的文件
		res.RealExt = "unknown"
		return res, nil
	}

	res.RealExt = kind.Extension
	if res.DeclaredExt != "" && res.DeclaredExt != res.RealExt && !t.aliasMap[res.RealExt][res.DeclaredExt] {
		res.Masquerade = true
	}
	return res, nil
}

// Label 终止记录里展示的类型标签
func (r Result) Label() string {
	if r.RealExt == "" {
		return "unknown"
	}
	if r.Masquerade {
		return fmt.Sprintf("%s (as .%s)", r.RealExt, r.DeclaredExt)
	}
	return r.RealExt
}
