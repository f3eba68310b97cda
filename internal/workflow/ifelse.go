package workflow

import (
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// selectorPattern matches variable-pool selectors like "sys.query" or
// "node1.output" embedded in an if-else/code expression.
var selectorPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+`)

// evalCase evaluates one IfElseCase's expressions against the pool,
// combining them with the declared logical operator. This generalizes
// warpp.EvalGuard's string-matching mini-language to arbitrary
// expressions (numeric comparisons, boolean composition) by compiling
// each expression with expr-lang/expr against a flattened environment
// built from the selectors the expression references.
func evalCase(c IfElseCase, pool *varpool.Pool) (bool, error) {
	if len(c.Expressions) == 0 {
		return true, nil
	}
	results := make([]bool, 0, len(c.Expressions))
	for _, raw := range c.Expressions {
		ok, err := evalExpression(raw, pool)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	switch strings.ToLower(c.LogicalOperator) {
	case "or":
		for _, r := range results {
			if r {
				return true, nil
			}
		}
		return false, nil
	default: // "and" (also the zero-value default: a single-expression case)
		for _, r := range results {
			if !r {
				return false, nil
			}
		}
		return true, nil
	}
}

// evalExpression compiles and runs one boolean expression. Bare
// selectors (e.g. "conv.flag") are resolved to a presence/truthiness
// check, mirroring warpp.EvalGuard's "A.key" form; anything containing
// an operator is handed to expr-lang/expr with every referenced
// selector bound into its environment.
func evalExpression(raw string, pool *varpool.Pool) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "true" {
		return true, nil
	}
	if raw == "false" {
		return false, nil
	}
	if sel, err := varpool.ParseSelector(raw); err == nil && !containsOperator(raw) {
		v, ok := pool.Get(sel)
		if !ok {
			return false, nil
		}
		return truthy(v.Value), nil
	}

	env := buildExprEnv(raw, pool)
	program, err := expr.Compile(rewriteSelectors(raw), expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

func containsOperator(s string) bool {
	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<", "&&", "||", " and ", " or ", " not "} {
		if strings.Contains(s, op) {
			return true
		}
	}
	return false
}

// rewriteSelectors turns "namespace.key" selectors into valid
// expr-lang identifiers ("namespace_key") since expr-lang identifiers
// cannot contain dots outside of field access on a known struct.
func rewriteSelectors(raw string) string {
	return selectorPattern.ReplaceAllStringFunc(raw, func(m string) string {
		return strings.ReplaceAll(m, ".", "_")
	})
}

func buildExprEnv(raw string, pool *varpool.Pool) map[string]any {
	env := map[string]any{}
	for _, m := range selectorPattern.FindAllString(raw, -1) {
		sel, err := varpool.ParseSelector(m)
		if err != nil {
			continue
		}
		v, _ := pool.Get(sel)
		env[strings.ReplaceAll(m, ".", "_")] = v.Value
	}
	return env
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
