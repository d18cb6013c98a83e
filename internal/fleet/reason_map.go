package fleet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReasonMap OTA 失败原因映射：设备上报的数字错误码 -> 平台统一描述。
// 不同批次固件的错误码可能不同，可通过 YAML 文件覆盖默认映射。
type ReasonMap struct {
	Map map[int]string `yaml:"map"`
}

// DefaultReasonMap 返回内置的默认失败原因映射
func DefaultReasonMap() *ReasonMap {
	return &ReasonMap{
		Map: map[int]string{
			0:  "unknown failure",
			1:  "download interrupted",
			2:  "checksum mismatch",
			3:  "flash write failed",
			4:  "insufficient storage",
			5:  "battery too low",
			6:  "signature rejected",
			7:  "image too large",
			8:  "watchdog reset during update",
			9:  "version incompatible",
			10: "rollback on boot failure",
		},
	}
}

// LoadReasonMap 从 YAML 文件加载失败原因映射
func LoadReasonMap(path string) (*ReasonMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reason map: %w", err)
	}
	var m ReasonMap
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal reason map: %w", err)
	}
	if m.Map == nil {
		m.Map = make(map[int]string)
	}
	return &m, nil
}

// Translate 返回错误码对应的描述
func (m *ReasonMap) Translate(code int) (string, bool) {
	if m == nil || m.Map == nil {
		return "", false
	}
	v, ok := m.Map[code]
	return v, ok
}

// Describe 返回错误码描述；未知码返回带原始码的兜底文本
func (m *ReasonMap) Describe(code int) string {
	if v, ok := m.Translate(code); ok {
		return v
	}
	return fmt.Sprintf("device error code %d", code)
}
