package effect

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
)

// evalCostLimit bounds CEL evaluation so a pathological condition cannot
// stall hook dispatch.
const evalCostLimit = 100_000

// ConditionInput carries the explicit state a condition may inspect. Nothing
// ambient: round and season always arrive as parameters.
type ConditionInput struct {
	Round    int
	SeasonID string
	TeamID   string
	Hook     string
	Meta     map[string]any
}

// ConditionEvaluator compiles and evaluates effect condition expressions.
// Programs are compiled once and cached by expression text.
type ConditionEvaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewConditionEvaluator builds the CEL environment for effect conditions.
func NewConditionEvaluator() (*ConditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("round", cel.IntType),
		cel.Variable("season_id", cel.StringType),
		cel.Variable("team_id", cel.StringType),
		cel.Variable("hook", cel.StringType),
		cel.Variable("meta", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	return &ConditionEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile checks and caches a condition expression. An empty expression is
// valid and always true.
func (ce *ConditionEvaluator) Compile(condition string) error {
	if condition == "" {
		return nil
	}
	_, err := ce.program(condition)
	return err
}

// Eval evaluates a condition against the given input. An empty condition is
// always true.
func (ce *ConditionEvaluator) Eval(condition string, input ConditionInput) (bool, error) {
	if condition == "" {
		return true, nil
	}
	prg, err := ce.program(condition)
	if err != nil {
		return false, err
	}

	meta := input.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{
		"round":     input.Round,
		"season_id": input.SeasonID,
		"team_id":   input.TeamID,
		"hook":      input.Hook,
		"meta":      meta,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, expected bool", out.Value())
	}
	return result, nil
}

func (ce *ConditionEvaluator) program(condition string) (cel.Program, error) {
	ce.mu.RLock()
	prg, ok := ce.programs[condition]
	ce.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := ce.env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeEffectInvalidCondition,
			fmt.Sprintf("compile condition: %v", issues.Err()),
			map[string]string{"condition": condition},
		)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperrors.WithMetadata(apperrors.CodeEffectInvalidCondition,
			fmt.Sprintf("condition yields %s, expected bool", ast.OutputType()),
			map[string]string{"condition": condition},
		)
	}

	prg, err := ce.env.Program(ast, cel.CostLimit(evalCostLimit))
	if err != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeEffectInvalidCondition,
			fmt.Sprintf("build condition program: %v", err),
			map[string]string{"condition": condition},
		)
	}

	ce.mu.Lock()
	ce.programs[condition] = prg
	ce.mu.Unlock()
	return prg, nil
}
