package workflow

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// Transition is one edge of the workflow graph. Guards are expr
// expressions over the state environment; an empty guard always
// matches. For a given From stage the first matching transition wins,
// so ordering in the table is part of the routing contract.
type Transition struct {
	From  models.Stage
	Guard string
	To    models.Stage

	program *vm.Program
}

// transitionTable is the whole workflow graph as data. Routing is
// testable without executing a single stage body.
var transitionTable = []Transition{
	{From: models.StageStart, To: models.StageRoute},

	// Route: malformed state terminates without side effects; a user
	// query selects the chat path; otherwise content analysis.
	{From: models.StageRoute, Guard: `!has_campaign`, To: models.StageError},
	{From: models.StageRoute, Guard: `has_query`, To: models.StageChatbot},
	{From: models.StageRoute, To: models.StageScout},

	// Clean is skipped when the scouted batch is empty or already
	// clean. Evaluated from this run's scout output, never cached.
	{From: models.StageScout, Guard: `scouted_count == 0 || all_clean`, To: models.StageAnalyze},
	{From: models.StageScout, To: models.StageClean},

	{From: models.StageClean, To: models.StageAnalyze},
	{From: models.StageAnalyze, To: models.StageMonitoring},
	{From: models.StageChatbot, To: models.StageMonitoring},
	{From: models.StageMonitoring, To: models.StageDone},
}

// Router evaluates the transition table against workflow state.
type Router struct {
	transitions []Transition
}

// NewRouter compiles the guard expressions once at construction.
func NewRouter() (*Router, error) {
	transitions := make([]Transition, len(transitionTable))
	copy(transitions, transitionTable)

	for i := range transitions {
		if transitions[i].Guard == "" {
			continue
		}
		program, err := expr.Compile(transitions[i].Guard,
			expr.Env(guardEnv(nil)),
			expr.AsBool(),
		)
		if err != nil {
			return nil, fmt.Errorf("compile guard %q: %w", transitions[i].Guard, err)
		}
		transitions[i].program = program
	}
	return &Router{transitions: transitions}, nil
}

// guardEnv derives the expression environment from workflow state.
func guardEnv(st *models.WorkflowState) map[string]interface{} {
	env := map[string]interface{}{
		"has_campaign":  false,
		"has_query":     false,
		"scouted_count": 0,
		"all_clean":     false,
	}
	if st == nil {
		return env
	}
	env["has_campaign"] = st.Campaign != nil && st.Campaign.ID != ""
	env["has_query"] = st.UserQuery != ""
	if out := st.StageOutputFor(models.StageScout); out != nil {
		if n, ok := out.Payload["scouted_count"].(int); ok {
			env["scouted_count"] = n
		} else if f, ok := out.Payload["scouted_count"].(float64); ok {
			// Payloads restored from a JSON checkpoint carry numbers
			// as float64.
			env["scouted_count"] = int(f)
		}
		if clean, ok := out.Payload["all_clean"].(bool); ok {
			env["all_clean"] = clean
		}
	}
	return env
}

// Next returns the destination for the state's current stage.
func (r *Router) Next(st *models.WorkflowState) (models.Stage, error) {
	env := guardEnv(st)
	for _, t := range r.transitions {
		if t.From != st.CurrentStage {
			continue
		}
		if t.program == nil {
			return t.To, nil
		}
		out, err := expr.Run(t.program, env)
		if err != nil {
			return models.StageError, fmt.Errorf("evaluate guard %q: %w", t.Guard, err)
		}
		if out.(bool) {
			return t.To, nil
		}
	}
	return models.StageError, fmt.Errorf("no transition from stage %s", st.CurrentStage)
}
