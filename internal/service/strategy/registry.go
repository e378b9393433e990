package strategy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
)

var ErrUnknownType = errors.New("strategy: unknown strategy type")

type Constructor func(svc exchange.Service, cfg Config) (Strategy, error)

// registry 配置里的 type 标签到构造函数的映射，
// 具体策略在各自文件的 init 里注册。
var registry = map[string]Constructor{}

func Register(typeTag string, ctor Constructor) {
	if _, exists := registry[typeTag]; exists {
		panic(fmt.Sprintf("strategy type %q registered twice", typeTag))
	}
	registry[typeTag] = ctor
}

// New 按 type 标签构造策略实例，未注册的标签返回 ErrUnknownType。
func New(typeTag string, svc exchange.Service, cfg Config) (Strategy, error) {
	ctor, exists := registry[typeTag]
	if !exists {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownType, typeTag, RegisteredTypes())
	}
	return ctor(svc, cfg)
}

func RegisteredTypes() []string {
	types := make([]string, 0, len(registry))
	for tag := range registry {
		types = append(types, tag)
	}
	sort.Strings(types)
	return types
}
