// Package problem generates random arithmetic problems.
package problem

import (
	"fmt"
	"math/rand/v2"
)

// Operator is the arithmetic operation of a problem.
type Operator int

const (
	Add Operator = iota
	Subtract
	Multiply
)

// multiplyCap bounds multiply operands so products stay small.
const multiplyCap = 10

func (o Operator) String() string {
	switch o {
	case Add:
		return "add"
	case Subtract:
		return "subtract"
	case Multiply:
		return "multiply"
	default:
		return fmt.Sprintf("operator(%d)", int(o))
	}
}

// Symbol returns the operator as written in a problem.
func (o Operator) Symbol() string {
	switch o {
	case Subtract:
		return "-"
	case Multiply:
		return "×"
	default:
		return "+"
	}
}

// Problem is one posed question and its expected answer.
type Problem struct {
	A      int      `json:"a"`
	B      int      `json:"b"`
	Op     Operator `json:"op"`
	Answer int      `json:"answer"`
}

// String renders the question, e.g. "7 × 3 = ?".
func (p Problem) String() string {
	return fmt.Sprintf("%d %s %d = ?", p.A, p.Op.Symbol(), p.B)
}

// Source supplies randomness. IntN returns a value in [0, n).
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Config is the difficulty policy, fixed per game.
type Config struct {
	MaxOperand      int
	IncludeMultiply bool
}

// Generator produces problems under a Config.
type Generator struct {
	cfg Config
	src Source
}

// NewGenerator returns a generator. A nil src uses math/rand/v2.
func NewGenerator(cfg Config, src Source) *Generator {
	if cfg.MaxOperand < 1 {
		cfg.MaxOperand = 1
	}
	if src == nil {
		src = globalSource{}
	}
	return &Generator{cfg: cfg, src: src}
}

// Config returns the generator's policy.
func (g *Generator) Config() Config { return g.cfg }

// Generate draws a new problem. Subtraction never goes negative and
// multiplication operands never exceed 10.
func (g *Generator) Generate() Problem {
	ops := []Operator{Add, Subtract}
	if g.cfg.IncludeMultiply {
		ops = append(ops, Multiply)
	}
	op := ops[g.src.IntN(len(ops))]

	hi := max(2, g.cfg.MaxOperand)
	a, b := g.draw(hi), g.draw(hi)

	switch op {
	case Subtract:
		if b > a {
			a, b = b, a
		}
		return Problem{A: a, B: b, Op: op, Answer: a - b}
	case Multiply:
		hi = max(2, min(multiplyCap, g.cfg.MaxOperand))
		a, b = g.draw(hi), g.draw(hi)
		return Problem{A: a, B: b, Op: op, Answer: a * b}
	default:
		return Problem{A: a, B: b, Op: op, Answer: a + b}
	}
}

// draw returns a uniform value in [1, hi].
func (g *Generator) draw(hi int) int {
	return g.src.IntN(hi) + 1
}
