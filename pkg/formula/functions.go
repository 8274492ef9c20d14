package formula

import (
	"math"
	"sort"
)

// Func is a built-in function. It receives arguments whose count has
// already been checked against the function's arity.
type Func func(args []float64) (float64, error)

// builtin is one entry of the function table.
type builtin struct {
	name    string
	minArgs int
	maxArgs int // -1 for no upper bound
	fn      Func
}

// constants are resolved before the scope, so they shadow variables of the
// same name.
var constants = map[string]float64{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
}

// functions is built once and never modified afterwards.
var functions = newFunctionTable()

// functionTable maps names to built-ins.
type functionTable map[string]*builtin

func newFunctionTable() functionTable {
	t := make(functionTable)

	// trigonometric
	t.register("sin", 1, 1, math1(math.Sin, false))
	t.register("cos", 1, 1, math1(math.Cos, false))
	t.register("tan", 1, 1, math1(math.Tan, false))
	t.register("asin", 1, 1, math1(math.Asin, false))
	t.register("acos", 1, 1, math1(math.Acos, false))
	t.register("atan", 1, 1, math1(math.Atan, false))
	t.register("atan2", 2, 2, math2(math.Atan2))

	// hyperbolic
	t.register("sinh", 1, 1, math1(math.Sinh, true))
	t.register("cosh", 1, 1, math1(math.Cosh, true))
	t.register("tanh", 1, 1, math1(math.Tanh, false))
	t.register("asinh", 1, 1, math1(math.Asinh, false))
	t.register("acosh", 1, 1, math1(math.Acosh, false))
	t.register("atanh", 1, 1, math1(math.Atanh, false))

	// angular conversion
	t.register("degrees", 1, 1, fnDegrees)
	t.register("radians", 1, 1, fnRadians)

	// rounding
	t.register("ceil", 1, 1, rounding(math.Ceil))
	t.register("floor", 1, 1, rounding(math.Floor))

	// exponential and logarithmic
	t.register("exp", 1, 1, math1(math.Exp, true))
	t.register("sqrt", 1, 1, math1(math.Sqrt, false))
	t.register("log", 1, 2, fnLog)
	t.register("log10", 1, 1, math1(math.Log10, false))
	t.register("log2", 1, 1, math1(math.Log2, false))

	// misc
	t.register("abs", 1, 1, fnAbs)
	t.register("min", 2, -1, fnMin)
	t.register("max", 2, -1, fnMax)
	t.register("factorial", 1, 1, fnFactorial)
	t.register("fmod", 2, 2, math2(math.Mod))
	t.register("remainder", 2, 2, math2(math.Remainder))
	t.register("copysign", 2, 2, fnCopysign)
	t.register("dist", 2, -1, fnDist)
	t.register("isclose", 2, 2, fnIsclose)
	t.register("isfinite", 1, 1, fnIsfinite)

	return t
}

// register adds a function to the table.
func (t functionTable) register(name string, minArgs, maxArgs int, fn Func) {
	t[name] = &builtin{name: name, minArgs: minArgs, maxArgs: maxArgs, fn: fn}
}

// call checks the argument count and invokes the function.
func (b *builtin) call(args []float64) (float64, error) {
	if err := requireArgs(b.name, len(args), b.minArgs, b.maxArgs); err != nil {
		return 0, err
	}
	return b.fn(args)
}

// requireArgs checks that the number of args is in range.
func requireArgs(name string, n, min, max int) error {
	switch {
	case max < 0 && n < min:
		return newRuntimeError("%s expects at least %d arguments, got %d", name, min, n)
	case max >= 0 && (n < min || n > max):
		if min == max {
			return newRuntimeError("%s expects %d argument(s), got %d", name, min, n)
		}
		return newRuntimeError("%s expects %d-%d arguments, got %d", name, min, max, n)
	}
	return nil
}

// FunctionNames returns the names of all built-in functions, sorted.
func FunctionNames() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConstantNames returns the names of the built-in constants, sorted.
func ConstantNames() []string {
	names := make([]string, 0, len(constants))
	for name := range constants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// checkResult applies the C math library error convention: NaN out of
// non-NaN inputs is a domain error, and an infinite result out of finite
// inputs is a range error when the function can overflow, else a domain
// error (a pole, like log10(0)).
func checkResult(r float64, canOverflow bool, in ...float64) (float64, error) {
	if math.IsNaN(r) {
		for _, x := range in {
			if math.IsNaN(x) {
				return r, nil
			}
		}
		return 0, newDomainError()
	}
	if math.IsInf(r, 0) {
		for _, x := range in {
			if math.IsInf(x, 0) || math.IsNaN(x) {
				return r, nil
			}
		}
		if canOverflow {
			return 0, newRangeError()
		}
		return 0, newDomainError()
	}
	return r, nil
}

func math1(fn func(float64) float64, canOverflow bool) Func {
	return func(args []float64) (float64, error) {
		return checkResult(fn(args[0]), canOverflow, args[0])
	}
}

func math2(fn func(float64, float64) float64) Func {
	return func(args []float64) (float64, error) {
		return checkResult(fn(args[0], args[1]), true, args[0], args[1])
	}
}

func rounding(fn func(float64) float64) Func {
	return func(args []float64) (float64, error) {
		x := args[0]
		switch {
		case math.IsNaN(x):
			return 0, newRuntimeError("cannot convert float NaN to integer")
		case math.IsInf(x, 0):
			return 0, newRuntimeError("cannot convert float infinity to integer")
		}
		return fn(x), nil
	}
}

func fnDegrees(args []float64) (float64, error) {
	return args[0] * (180 / math.Pi), nil
}

func fnRadians(args []float64) (float64, error) {
	return args[0] * (math.Pi / 180), nil
}

func fnLog(args []float64) (float64, error) {
	num, err := logOf(args[0])
	if err != nil || len(args) == 1 {
		return num, err
	}
	den, err := logOf(args[1])
	if err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, newZeroDivisionError()
	}
	return num / den, nil
}

func logOf(x float64) (float64, error) {
	if x <= 0 {
		return 0, newDomainError()
	}
	return math.Log(x), nil
}

func fnAbs(args []float64) (float64, error) {
	return math.Abs(args[0]), nil
}

// fnMin keeps the first of equal minima and never replaces the running
// result with NaN, matching a plain "<" scan.
func fnMin(args []float64) (float64, error) {
	r := args[0]
	for _, x := range args[1:] {
		if x < r {
			r = x
		}
	}
	return r, nil
}

func fnMax(args []float64) (float64, error) {
	r := args[0]
	for _, x := range args[1:] {
		if x > r {
			r = x
		}
	}
	return r, nil
}

// maxFactorial is the largest n whose factorial fits in a float64.
const maxFactorial = 170

func fnFactorial(args []float64) (float64, error) {
	x := args[0]
	switch {
	case math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x):
		return 0, newRuntimeError("factorial() only accepts integral values")
	case x < 0:
		return 0, newRuntimeError("factorial() not defined for negative values")
	case x > maxFactorial:
		return 0, newRuntimeError("factorial() result too large to convert to float")
	}
	r := 1.0
	for i := 2.0; i <= x; i++ {
		r *= i
	}
	return r, nil
}

func fnCopysign(args []float64) (float64, error) {
	return math.Copysign(args[0], args[1]), nil
}

// fnDist takes the coordinates of two points of equal dimension, the first
// point's coordinates followed by the second's: dist(x1, y1, x2, y2).
func fnDist(args []float64) (float64, error) {
	if len(args)%2 != 0 {
		return 0, newRuntimeError("dist expects two points of the same dimension, got %d coordinates", len(args))
	}
	n := len(args) / 2
	if n == 1 {
		return math.Abs(args[0] - args[1]), nil
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := args[i] - args[n+i]
		sum += d * d
	}
	return checkResult(math.Sqrt(sum), true, args...)
}

const iscloseRelTol = 1e-9

func fnIsclose(args []float64) (float64, error) {
	return boolToFloat(isclose(args[0], args[1])), nil
}

func isclose(a, b float64) bool {
	if a == b {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	diff := math.Abs(b - a)
	return diff <= math.Abs(iscloseRelTol*b) || diff <= math.Abs(iscloseRelTol*a)
}

func fnIsfinite(args []float64) (float64, error) {
	return boolToFloat(!math.IsInf(args[0], 0) && !math.IsNaN(args[0])), nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
