package formula

import (
	"errors"
	"fmt"
	"strings"
)

var ErrCycle = errors.New("formula_dependency_cycle")

// Order returns the nodes in dependency order: every node appears after the
// nodes it depends on. Ties keep declaration order so the result is stable.
// deps may only reference declared nodes.
func Order(nodes []string, deps map[string][]string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(nodes))
	order := make([]string, 0, len(nodes))

	var visit func(node string, path []string) error
	visit = func(node string, path []string) error {
		switch state[node] {
		case done:
			return nil
		case visiting:
			cycle := append(path[indexOf(path, node):], node)
			return fmt.Errorf("%s: %w", strings.Join(cycle, " -> "), ErrCycle)
		}
		state[node] = visiting
		path = append(path, node)
		for _, dep := range deps[node] {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		state[node] = done
		order = append(order, node)
		return nil
	}

	for _, node := range nodes {
		if err := visit(node, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func indexOf(path []string, node string) int {
	for i, p := range path {
		if p == node {
			return i
		}
	}
	return 0
}
