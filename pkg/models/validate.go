package models

import (
	"errors"
	"fmt"
)

// Structural graph errors. All of them surface at definition-save time;
// ErrGraphCycle is also raised by the engine as a runtime safety net when a
// node is revisited within one execution.
var (
	ErrNoTriggerNode       = errors.New("workflow must have exactly one trigger node")
	ErrMultipleTriggers    = errors.New("workflow has more than one trigger node")
	ErrDuplicateNodeID     = errors.New("duplicate node id")
	ErrEdgeTargetMissing   = errors.New("edge references a nonexistent node")
	ErrEdgeIntoTrigger     = errors.New("edge targets the trigger node")
	ErrUnreachableNode     = errors.New("node is not reachable from the trigger")
	ErrGraphCycle          = errors.New("workflow graph contains a cycle")
	ErrEmptyCondition      = errors.New("condition node requires a non-empty condition expression")
)

// ValidateGraph checks the structural invariants of the workflow graph:
// exactly one trigger node, unique node ids, edges that target existing
// non-trigger nodes, every node reachable from the trigger, and no cycles
// (Kahn topological sort). Node-type and config-schema checks belong to the
// registry and run separately.
func (w *Workflow) ValidateGraph() error {
	if len(w.Nodes) == 0 {
		return ErrNoTriggerNode
	}

	byID := make(map[string]*WorkflowNode, len(w.Nodes))

	var trigger *WorkflowNode

	for _, node := range w.Nodes {
		if _, dup := byID[node.ID]; dup {
			return fmt.Errorf("node %q: %w", node.ID, ErrDuplicateNodeID)
		}

		byID[node.ID] = node

		if node.IsTriggerNode() {
			if trigger != nil {
				return ErrMultipleTriggers
			}

			trigger = node
		}

		if node.IsConditionNode() {
			if cond, _ := node.Config["condition"].(string); cond == "" {
				return fmt.Errorf("node %q: %w", node.ID, ErrEmptyCondition)
			}
		}
	}

	if trigger == nil {
		return ErrNoTriggerNode
	}

	for _, node := range w.Nodes {
		for _, edge := range node.Next {
			target, ok := byID[edge.Target]
			if !ok {
				return fmt.Errorf("node %q -> %q: %w", node.ID, edge.Target, ErrEdgeTargetMissing)
			}

			if target.IsTriggerNode() {
				return fmt.Errorf("node %q -> %q: %w", node.ID, edge.Target, ErrEdgeIntoTrigger)
			}
		}
	}

	if err := w.checkReachability(trigger, byID); err != nil {
		return err
	}

	return w.checkAcyclic(byID)
}

func (w *Workflow) checkReachability(trigger *WorkflowNode, byID map[string]*WorkflowNode) error {
	visited := map[string]bool{trigger.ID: true}
	queue := []*WorkflowNode{trigger}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, edge := range node.Next {
			if visited[edge.Target] {
				continue
			}

			visited[edge.Target] = true
			queue = append(queue, byID[edge.Target])
		}
	}

	for _, node := range w.Nodes {
		if !visited[node.ID] {
			return fmt.Errorf("node %q: %w", node.ID, ErrUnreachableNode)
		}
	}

	return nil
}

// checkAcyclic runs Kahn's algorithm; leftover nodes mean a cycle.
func (w *Workflow) checkAcyclic(byID map[string]*WorkflowNode) error {
	indegree := make(map[string]int, len(byID))
	for id := range byID {
		indegree[id] = 0
	}

	for _, node := range w.Nodes {
		for _, edge := range node.Next {
			indegree[edge.Target]++
		}
	}

	queue := make([]string, 0, len(byID))

	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++

		for _, edge := range byID[id].Next {
			indegree[edge.Target]--
			if indegree[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}

	if processed != len(byID) {
		return ErrGraphCycle
	}

	return nil
}
