package contract

import (
	"fmt"
	"strings"
)

// DataType: 记录的数据类型。
type DataType int

const (
	String DataType = iota
	Integer
)

func (t DataType) String() string {
	if t == Integer {
		return "integer"
	}
	return "string"
}

// Direction: 排序方向。
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Mode: 一次运行内不变的（类型, 方向），校验与比较共用。
type Mode struct {
	Type      DataType
	Direction Direction
}

func (m Mode) String() string { return m.Type.String() + "/" + m.Direction.String() }

// ParseDataType 接受 integer|int|i 与 string|str|s（大小写不敏感）。
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "i":
		return Integer, nil
	case "string", "str", "s":
		return String, nil
	default:
		return String, fmt.Errorf("%w: type %q", ErrInvalidMode, s)
	}
}

// ParseDirection 接受 asc|ascending|a 与 desc|descending|d。
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending", "a":
		return Ascending, nil
	case "desc", "descending", "d":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("%w: order %q", ErrInvalidMode, s)
	}
}
