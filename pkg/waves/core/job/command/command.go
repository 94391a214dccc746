// Package command assembles a job command line from its input bindings.
package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
)

// Build returns "<binary> <args...>" where args are rendered from the job
// inputs sorted by Order, then by name.
func Build(binary string, inputs []model.JobInput) (string, error) {
	parts := []string{binary}
	args, err := Args(inputs)
	if err != nil {
		return "", err
	}
	parts = append(parts, args...)
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Args renders the inputs as shell-quoted arguments.
func Args(inputs []model.JobInput) ([]string, error) {
	sorted := append([]model.JobInput(nil), inputs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].Name < sorted[j].Name
	})

	var args []string
	for _, in := range sorted {
		switch in.CmdFormat {
		case model.CmdNone:
		case model.CmdOption, model.CmdNamedOption:
			on, err := truthy(in.Value)
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", in.Name, err)
			}
			if !on {
				continue
			}
			if in.CmdFormat == model.CmdOption {
				args = append(args, "-"+in.Name)
			} else {
				args = append(args, "--"+in.Name)
			}
		case model.CmdSimple:
			if in.Value == "" {
				continue
			}
			args = append(args, "-"+in.Name, Quote(in.Value))
		case model.CmdValuated:
			if in.Value == "" {
				continue
			}
			args = append(args, "--"+in.Name+"="+Quote(in.Value))
		case model.CmdPosix, "":
			if in.Value == "" {
				continue
			}
			args = append(args, Quote(in.Value))
		default:
			return nil, fmt.Errorf("input %s: unknown command format %q", in.Name, in.CmdFormat)
		}
	}
	return args, nil
}

func truthy(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// Quote single-quotes s for a POSIX shell when it contains anything beyond a
// conservative safe set.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
