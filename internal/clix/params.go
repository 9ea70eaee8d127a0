package clix

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, err := flags.GetInt("limit")
	if err != nil {
		return PaginationParams{}, err
	}
	offset, err := flags.GetInt("offset")
	if err != nil {
		return PaginationParams{}, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

// TaskStates are the queue states accepted by --state.
var TaskStates = []string{"pending", "active", "scheduled", "retry", "archived", "completed"}

// ParseTaskState reads --state, lower-cased, and rejects unknown values.
func ParseTaskState(flags *pflag.FlagSet) (string, error) {
	state, err := flags.GetString("state")
	if err != nil {
		return "", err
	}
	state = strings.ToLower(strings.TrimSpace(state))
	for _, s := range TaskStates {
		if s == state {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown state %q, want one of %s", state, strings.Join(TaskStates, ", "))
}
