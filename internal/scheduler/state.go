package scheduler

type State int

const (
	Starting State = iota
	Paging
	Filtering
	Dispatching
	InlineExecuting
	Draining
	Finished
	Failed
)

var stateNames = map[State]string{
	Starting:        "starting",
	Paging:          "paging",
	Filtering:       "filtering",
	Dispatching:     "dispatching",
	InlineExecuting: "inline_executing",
	Draining:        "draining",
	Finished:        "finished",
	Failed:          "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
