package interpreter

import (
	"context"
	"errors"
	"fmt"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/action"
	"github.com/frobware/go-teamsync/store"
)

type executor struct {
	lags    store.Table
	members store.Table
}

// NewExecutor returns an executor writing bundle records to lags and
// member records to members.
func NewExecutor(lags, members store.Table) ActionExecutor {
	return &executor{lags: lags, members: members}
}

func (e *executor) Execute(ctx context.Context, a action.Action) error {
	switch a := a.(type) {
	case action.SetMemberStatus:
		return e.members.Set(ctx, teamsync.MemberKey(a.Bundle, a.Member), teamsync.FieldValues{
			{Field: teamsync.FieldStatus, Value: teamsync.EnabledDisabled(a.Enabled)},
		})

	case action.DeleteMember:
		return e.members.Del(ctx, teamsync.MemberKey(a.Bundle, a.Member))

	case action.DeleteBundle:
		return e.lags.Del(ctx, a.Name)

	case action.Sequence:
		return e.ExecuteAll(ctx, a.Actions)

	default:
		return fmt.Errorf("unknown action type: %T", a)
	}
}

// ExecuteAll runs every action in order and joins the failures.
func (e *executor) ExecuteAll(ctx context.Context, actions []action.Action) error {
	var errs []error
	for _, a := range actions {
		if err := e.Execute(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
