package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuongbtq/openclerk/internal/jobs/runner"
)

// unset is the placeholder for a skipped positional argument
const unset = "-"

type invocation struct {
	key     string
	options runner.Options
}

func parseArgs(args []string) (*invocation, error) {
	if len(args) == 0 || args[0] == "" || args[0] == unset {
		return nil, fmt.Errorf("KEY is required")
	}
	inv := &invocation{key: args[0]}

	if len(args) > 1 && args[1] != unset {
		for _, jobType := range strings.Split(args[1], ",") {
			if jobType = strings.TrimSpace(jobType); jobType != "" {
				inv.options.JobTypes = append(inv.options.JobTypes, jobType)
			}
		}
	}

	if len(args) > 2 && args[2] != unset {
		id, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid JOB_ID %q", args[2])
		}
		inv.options.JobID = id
	}

	if len(args) > 3 && args[3] != unset && args[3] != "" {
		inv.options.Force = true
	}

	return inv, nil
}
