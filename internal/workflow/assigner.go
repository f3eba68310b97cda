package workflow

import (
	"fmt"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// runAssigner applies an assigner node's ops in order, mutating only
// conv.* (§4.9: "Immutable namespaces (sys) reject writes").
func runAssigner(cfg *AssignerConfig, pool *varpool.Pool) error {
	for _, op := range cfg.Ops {
		sel, err := varpool.ParseSelector(op.VariableSelector)
		if err != nil {
			return err
		}
		if err := varpool.CheckImmutable(sel, "conv"); err != nil {
			return err
		}
		current, _ := pool.Get(sel)
		next, err := applyAssignerOp(op.Operation, current, op.Value)
		if err != nil {
			return fmt.Errorf("assigner: %s on %s: %w", op.Operation, sel, err)
		}
		if err := pool.SetConv(sel.Key, next); err != nil {
			return err
		}
	}
	return nil
}

func applyAssignerOp(op string, current varpool.Variable, value any) (varpool.Variable, error) {
	switch op {
	case "assign", "cover":
		return varpool.Variable{Type: inferType(value), Value: value}, nil
	case "clear":
		return varpool.Variable{Type: current.Type, Value: zeroFor(current.Type)}, nil
	case "add":
		return numericOp(current, value, func(a, b float64) float64 { return a + b })
	case "sub":
		return numericOp(current, value, func(a, b float64) float64 { return a - b })
	case "mul":
		return numericOp(current, value, func(a, b float64) float64 { return a * b })
	case "div":
		return numericOp(current, value, func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		})
	case "append":
		list, _ := current.Value.([]any)
		return varpool.Variable{Type: current.Type, Value: append(append([]any{}, list...), value)}, nil
	case "remove_first":
		list, _ := current.Value.([]any)
		if len(list) == 0 {
			return current, nil
		}
		return varpool.Variable{Type: current.Type, Value: append([]any{}, list[1:]...)}, nil
	case "remove_last":
		list, _ := current.Value.([]any)
		if len(list) == 0 {
			return current, nil
		}
		return varpool.Variable{Type: current.Type, Value: append([]any{}, list[:len(list)-1]...)}, nil
	default:
		return varpool.Variable{}, fmt.Errorf("unknown assigner operation %q", op)
	}
}

func numericOp(current varpool.Variable, value any, f func(a, b float64) float64) (varpool.Variable, error) {
	a, ok1 := toFloat(current.Value)
	b, ok2 := toFloat(value)
	if !ok1 {
		a = 0
	}
	if !ok2 {
		return varpool.Variable{}, fmt.Errorf("operand %v is not numeric", value)
	}
	return varpool.Variable{Type: varpool.TypeNumber, Value: f(a, b)}, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func inferType(v any) varpool.Type {
	switch v.(type) {
	case string:
		return varpool.TypeString
	case bool:
		return varpool.TypeBoolean
	case float64, int, int64, float32:
		return varpool.TypeNumber
	case []any:
		return varpool.TypeArrayObject
	case map[string]any:
		return varpool.TypeObject
	default:
		return varpool.TypeObject
	}
}

func zeroFor(t varpool.Type) any {
	switch t {
	case varpool.TypeString:
		return ""
	case varpool.TypeNumber:
		return float64(0)
	case varpool.TypeBoolean:
		return false
	case varpool.TypeArrayString, varpool.TypeArrayNumber, varpool.TypeArrayObject, varpool.TypeArrayFile:
		return []any{}
	default:
		return nil
	}
}
