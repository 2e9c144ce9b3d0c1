package tools

import (
	"fmt"

	xerrors "AgentFlow/internal/errors"
)

// Calculate 执行加法或乘法，其他运算返回 UNSUPPORTED_OPERATION。
func Calculate(operation string, a, b int64) (Calculation, error) {
	switch operation {
	case "add":
		result := a + b
		return Calculation{
			Operation:  "Addition",
			Operands:   []int64{a, b},
			Result:     result,
			Expression: fmt.Sprintf("%d + %d = %d", a, b, result),
		}, nil
	case "multiply":
		result := a * b
		return Calculation{
			Operation:  "Multiplication",
			Operands:   []int64{a, b},
			Result:     result,
			Expression: fmt.Sprintf("%d × %d = %d", a, b, result),
		}, nil
	default:
		return Calculation{}, xerrors.New(xerrors.CodeUnsupportedOperation,
			fmt.Sprintf("Unsupported operation: %s", operation),
			xerrors.WithMetadata("operation", operation))
	}
}
