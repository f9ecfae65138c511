package raster

import (
	"fmt"

	goeval "github.com/edisonguo/govaluate"
)

// Calc evaluates a band math expression once per pixel. Input grids are
// bound to the expression's variables by name and must share a shape; the
// result inherits the first referenced input's georeferencing. Boolean
// results write 1 or 0.
func Calc(expression string, inputs map[string]*Grid) (*Grid, error) {
	expr, err := goeval.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("parsing band math %q: %w", expression, err)
	}

	vars := expr.Vars()
	if len(vars) == 0 {
		return nil, fmt.Errorf("band math %q references no inputs", expression)
	}
	grids := make([]*Grid, len(vars))
	for i, name := range vars {
		g, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("band math %q: no input named %q", expression, name)
		}
		grids[i] = g
	}
	base := grids[0]
	for _, g := range grids[1:] {
		if !g.SameShape(base) {
			return nil, fmt.Errorf("band math %q: input shapes differ", expression)
		}
	}

	out := base.Like()
	params := make(map[string]interface{}, len(vars))
	for i := range out.Pixels {
		for j, name := range vars {
			params[name] = grids[j].Pixels[i]
		}
		result, err := expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("evaluating band math %q: %w", expression, err)
		}
		switch v := result.(type) {
		case float64:
			out.Pixels[i] = v
		case bool:
			if v {
				out.Pixels[i] = 1
			}
		default:
			return nil, fmt.Errorf("band math %q produced %T, want a number", expression, result)
		}
	}
	return out, nil
}
