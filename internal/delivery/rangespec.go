package delivery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable 区间无法满足，代理端点以 416 响应
var ErrUnsatisfiable = errors.New("range not satisfiable")

// ByteRange 单一字节区间，End 为闭区间且已按对象大小收敛
type ByteRange struct {
	Start int64
	End   int64
	Size  int64
}

// Length 区间覆盖的字节数
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ContentRange 206 响应的 Content-Range 头值
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Size)
}

// UnsatisfiableRange 416 响应的 Content-Range 头值
func UnsatisfiableRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ParseRange 解析单一 bytes 区间请求头。
// 返回 (nil, nil) 表示整档下发：空头或非 bytes 单位。
// 支持 bytes=start-end 与 bytes=start-（开区间到末尾），
// end 超出对象末尾时收敛为 size-1；多区间与后缀区间不支持。
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		// 未知区间单位按无区间处理
		return nil, nil
	}

	spec := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if spec == "" || strings.Contains(spec, ",") {
		return nil, fmt.Errorf("range %q: %w", header, ErrUnsatisfiable)
	}
	dash := strings.Index(spec, "-")
	if dash <= 0 {
		// 缺分隔符或后缀区间 bytes=-N
		return nil, fmt.Errorf("range %q: %w", header, ErrUnsatisfiable)
	}

	start, err := strconv.ParseInt(strings.TrimSpace(spec[:dash]), 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("range %q: %w", header, ErrUnsatisfiable)
	}
	if start >= size {
		return nil, fmt.Errorf("range start %d beyond size %d: %w", start, size, ErrUnsatisfiable)
	}

	end := size - 1
	if rest := strings.TrimSpace(spec[dash+1:]); rest != "" {
		e, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || e < start {
			return nil, fmt.Errorf("range %q: %w", header, ErrUnsatisfiable)
		}
		if e < end {
			end = e
		}
	}

	return &ByteRange{Start: start, End: end, Size: size}, nil
}
