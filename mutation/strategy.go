package mutation

import (
	"fmt"

	"gorged/models"
)

// Strategy is one of the fixed DOM-mutation primitives an interceptor can use.
type Strategy int

const (
	NodeRemoval Strategy = iota + 1
	DisplayNone
	OpacityZero
	DynamicHide
)

var strategyNames = map[Strategy]string{
	NodeRemoval: "node-removal",
	DisplayNone: "display-none",
	OpacityZero: "opacity-0",
	DynamicHide: "dynamic-hide",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Strategies lists every known strategy in declaration order.
func Strategies() []Strategy {
	return []Strategy{NodeRemoval, DisplayNone, OpacityZero, DynamicHide}
}

// ParseStrategy resolves a strategy literal. Unknown literals are a
// configuration error; callers only parse at registry build time.
func ParseStrategy(literal string) (Strategy, error) {
	for s, name := range strategyNames {
		if name == literal {
			return s, nil
		}
	}
	return 0, &models.ConfigurationError{
		Component: "mutation",
		Subject:   literal,
		Err:       fmt.Errorf("unknown mutation strategy %q", literal),
	}
}

// IsStatic reports whether s can be applied without client-side script.
func (s Strategy) IsStatic() bool {
	return s == NodeRemoval || s == DisplayNone || s == OpacityZero
}
