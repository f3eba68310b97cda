package workflow

import (
	"github.com/expr-lang/expr"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// runCode evaluates cfg.Expression against the variable pool using
// expr-lang/expr, which exposes no filesystem/network/reflection
// surface — the "sandbox-safe code" the spec names for the `code` node.
func runCode(cfg *CodeConfig, pool *varpool.Pool) (any, error) {
	env := buildExprEnv(cfg.Expression, pool)
	program, err := expr.Compile(rewriteSelectors(cfg.Expression), expr.Env(env))
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}
