package thread

import (
	"fmt"

	"github.com/me/uthread/pkg/model"
)

// ActionKind tells the dispatcher what a thread asked for after a step.
type ActionKind int

const (
	ActContinue ActionKind = iota // keep running; counts against the quantum
	ActYield                      // yield to Target (TidAny, TidSelf or an id)
	ActExit                       // terminate the calling thread
	ActKill                       // kill the ready thread Target
	ActSpawn                      // create a new ready thread
)

func (k ActionKind) String() string {
	switch k {
	case ActContinue:
		return "continue"
	case ActYield:
		return "yield"
	case ActExit:
		return "exit"
	case ActKill:
		return "kill"
	case ActSpawn:
		return "spawn"
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// Action is the result of one step.
type Action struct {
	Kind   ActionKind
	Target model.Tid
	Name   string // ActSpawn
	Body   Body   // ActSpawn
}

// Continue keeps the thread running.
func Continue() Action { return Action{Kind: ActContinue} }

// Yield gives up the CPU to target.
func Yield(target model.Tid) Action { return Action{Kind: ActYield, Target: target} }

// Exit terminates the thread.
func Exit() Action { return Action{Kind: ActExit} }

// Kill destroys the ready thread target.
func Kill(target model.Tid) Action { return Action{Kind: ActKill, Target: target} }

// Spawn creates a new thread running body.
func Spawn(name string, body Body) Action {
	return Action{Kind: ActSpawn, Name: name, Body: body}
}

func (a Action) String() string {
	switch a.Kind {
	case ActYield, ActKill:
		return fmt.Sprintf("%s:%s", a.Kind, a.Target)
	case ActSpawn:
		return fmt.Sprintf("%s:%s", a.Kind, a.Name)
	}
	return a.Kind.String()
}
