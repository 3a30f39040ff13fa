package labels

import (
	"fmt"
	"strings"
)

// Registry 是 label 解析器的只读注册表（按 name 索引）。
// 解析器数量极小，用 map 保持简单即可。
type Registry struct {
	byName map[string]Parser
}

func NewRegistry(parsers ...Parser) (Registry, error) {
	byName := make(map[string]Parser, len(parsers))
	for _, p := range parsers {
		if p == nil {
			return Registry{}, fmt.Errorf("label 解析器不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("label 解析器 Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 label 解析器：%q", name)
		}
		byName[name] = p
	}
	return Registry{byName: byName}, nil
}

// Builtin 返回内置的 positional + keyed 注册表。
func Builtin() Registry {
	r, _ := NewRegistry(Positional{}, Keyed{})
	return r
}

func (r Registry) Get(name string) (Parser, bool) {
	if r.byName == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	p, ok := r.byName[name]
	return p, ok
}

// Names 返回已注册的解析器名称（无序）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}
