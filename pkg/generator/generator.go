package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/registry"
)

// MaxGeneratedNodes bounds the size of generated graphs. Larger drafts are
// truncated with a warning rather than rejected.
const MaxGeneratedNodes = 30

type Generator struct {
	logger   *slog.Logger
	client   LLMClient
	registry *registry.Registry
}

func NewGenerator(logger *slog.Logger, client LLMClient, reg *registry.Registry) *Generator {
	return &Generator{
		logger:   logger.With("module", "generator"),
		client:   client,
		registry: reg,
	}
}

// draft is the shape the model is asked to produce.
type draft struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	TriggerType string         `json:"trigger_type"`
	Nodes       []*draftNode   `json:"nodes"`
	Variables   map[string]any `json:"variables"`
}

type draftNode struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Config   map[string]any   `json:"config"`
	Position *models.Position `json:"position"`
	Next     []draftEdge      `json:"next"`
}

type draftEdge struct {
	Target    string `json:"target"`
	Label     string `json:"label"`
	Condition string `json:"condition"`
}

// Generate produces a draft workflow from a natural-language description.
// The result is always a structurally valid graph; anything the model got
// wrong is fixed and reported as a warning. Generated workflows are never
// active until a user reviews and saves them.
func (g *Generator) Generate(ctx context.Context, description string) (*models.Workflow, []string, error) {
	if strings.TrimSpace(description) == "" {
		return nil, nil, fmt.Errorf("%w: empty description", ErrGeneration)
	}

	completion, err := g.client.Complete(ctx, g.systemPrompt(), description)
	if err != nil {
		return nil, nil, err
	}

	var parsed draft
	if err := json.Unmarshal([]byte(stripFences(completion)), &parsed); err != nil {
		return nil, nil, fmt.Errorf("%w: model did not return valid JSON: %v", ErrGeneration, err)
	}

	workflow, warnings := g.sanitize(&parsed)

	g.logger.Info("workflow generated",
		"workflow_id", workflow.ID,
		"nodes", len(workflow.Nodes),
		"warnings", len(warnings),
	)

	return workflow, warnings, nil
}

// systemPrompt describes the node catalog and output contract. The catalog is
// built from the registry, so new node types are available to the generator
// without prompt changes.
func (g *Generator) systemPrompt() string {
	var b strings.Builder

	b.WriteString("You design workflow automation graphs. Respond with a single JSON object, no prose, no markdown.\n")
	b.WriteString("The object has: name, description, trigger_type (manual|schedule|webhook|event), nodes, variables.\n")
	b.WriteString("Each node has: id (snake_case), type, name, config (matching the type's schema), next (list of {target, label, condition}).\n")
	b.WriteString("Rules:\n")
	b.WriteString("- exactly one trigger node, with no incoming edges\n")
	b.WriteString(fmt.Sprintf("- at most %d nodes\n", MaxGeneratedNodes))
	b.WriteString("- condition nodes route via edge labels \"true\" and \"false\"\n")
	b.WriteString("- the graph must be acyclic and every node reachable from the trigger\n")
	b.WriteString("- integration nodes reference credentials by credential_id; invent placeholder ids like \"credential:slack\"\n")
	b.WriteString("\nAvailable node types:\n")

	for _, info := range g.registry.NodeTypes() {
		schema, _ := json.Marshal(info.Schema)
		fmt.Fprintf(&b, "- %s (%s): %s\n  schema: %s\n", info.Type, info.Category, info.Description, schema)
	}

	return b.String()
}

// stripFences removes a wrapping markdown code fence if the model added one.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)

	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")

	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}

	return strings.TrimSpace(trimmed)
}

// sanitize repairs a model draft into a structurally valid workflow and
// reports every repair as a warning.
func (g *Generator) sanitize(parsed *draft) (*models.Workflow, []string) {
	var warnings []string

	nodes := parsed.Nodes

	if len(nodes) > MaxGeneratedNodes {
		warnings = append(warnings, fmt.Sprintf("graph truncated from %d to %d nodes", len(nodes), MaxGeneratedNodes))
		nodes = nodes[:MaxGeneratedNodes]
	}

	// Default ids before edge resolution so dangling-edge checks see them.
	seen := make(map[string]bool, len(nodes))

	for i, node := range nodes {
		if node.ID == "" || seen[node.ID] {
			fresh := fmt.Sprintf("node_%d", i+1)
			if node.ID != "" {
				warnings = append(warnings, fmt.Sprintf("duplicate node id %q renamed to %q", node.ID, fresh))
			}

			node.ID = fresh
		}

		seen[node.ID] = true
	}

	var kept []*models.WorkflowNode

	triggerFound := false

	for _, node := range nodes {
		category, known := g.category(node.Type)
		if !known {
			warnings = append(warnings, fmt.Sprintf("node %q dropped: unknown type %q", node.ID, node.Type))

			continue
		}

		if category == models.CategoryTrigger {
			if triggerFound {
				warnings = append(warnings, fmt.Sprintf("extra trigger node %q dropped", node.ID))

				continue
			}

			triggerFound = true
		}

		if node.Config == nil {
			node.Config = map[string]any{}
		}

		if err := g.registry.ValidateConfig(node.Type, node.Config); err != nil {
			warnings = append(warnings, fmt.Sprintf("node %q config needs attention: %v", node.ID, err))
		}

		kept = append(kept, &models.WorkflowNode{
			ID:       node.ID,
			Type:     node.Type,
			Category: category,
			Name:     node.Name,
			Config:   node.Config,
			Position: positionOrDefault(node.Position, len(kept)),
		})
	}

	triggerType := models.TriggerType(parsed.TriggerType)

	switch triggerType {
	case models.TriggerTypeManual, models.TriggerTypeSchedule, models.TriggerTypeWebhook, models.TriggerTypeEvent:
	default:
		triggerType = models.TriggerTypeManual
	}

	if !triggerFound {
		warnings = append(warnings, "no trigger node generated, manual trigger added")

		triggerID := "start"
		for seen[triggerID] {
			triggerID = "trigger_" + triggerID
		}

		kept = append([]*models.WorkflowNode{{
			ID:       triggerID,
			Type:     "trigger:" + string(triggerType),
			Category: models.CategoryTrigger,
			Name:     "Start",
		}}, kept...)
	}

	byID := make(map[string]*models.WorkflowNode, len(kept))
	for _, node := range kept {
		byID[node.ID] = node
	}

	// Re-attach edges, dropping anything pointing outside the kept set or
	// into the trigger.
	for _, source := range nodes {
		target, exists := byID[source.ID]
		if !exists {
			continue
		}

		for _, edge := range source.Next {
			destination, ok := byID[edge.Target]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("edge %s -> %s dropped: target does not exist", source.ID, edge.Target))

				continue
			}

			if destination.IsTriggerNode() {
				warnings = append(warnings, fmt.Sprintf("edge %s -> %s dropped: targets the trigger", source.ID, edge.Target))

				continue
			}

			target.Next = append(target.Next, models.WorkflowEdge{
				Target:    edge.Target,
				Label:     edge.Label,
				Condition: edge.Condition,
			})
		}
	}

	// Wire orphans to the trigger rather than dropping work the model
	// produced; the user reviews the draft anyway.
	var trigger *models.WorkflowNode

	for _, node := range kept {
		if node.IsTriggerNode() {
			trigger = node

			break
		}
	}
	for _, node := range kept {
		if !triggerReaches(kept, trigger, node) {
			warnings = append(warnings, fmt.Sprintf("node %q was unreachable and has been connected to the trigger", node.ID))
			trigger.Next = append(trigger.Next, models.WorkflowEdge{Target: node.ID})
		}
	}

	name := strings.TrimSpace(parsed.Name)
	if name == "" {
		name = "Generated workflow"
	}

	now := time.Now().UTC()

	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: parsed.Description,
		Status:      models.WorkflowStatusDraft,
		TriggerType: triggerType,
		Nodes:       kept,
		Variables:   parsed.Variables,
		OnError:     models.ErrorPolicyStop,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return workflow, warnings
}

func (g *Generator) category(nodeType string) (models.NodeCategory, bool) {
	factory, err := g.registry.Resolve(nodeType)
	if err != nil {
		return "", false
	}

	return factory.Category(), true
}

func positionOrDefault(position *models.Position, index int) models.Position {
	if position != nil {
		return *position
	}

	return models.Position{X: index * 200, Y: 100 + index%2*120}
}

// triggerReaches walks the graph from the trigger looking for the node.
func triggerReaches(nodes []*models.WorkflowNode, trigger, wanted *models.WorkflowNode) bool {
	if trigger.ID == wanted.ID {
		return true
	}

	byID := make(map[string]*models.WorkflowNode, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	visited := map[string]bool{trigger.ID: true}
	queue := []*models.WorkflowNode{trigger}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range current.Next {
			if edge.Target == wanted.ID {
				return true
			}

			next, ok := byID[edge.Target]
			if !ok || visited[edge.Target] {
				continue
			}

			visited[edge.Target] = true
			queue = append(queue, next)
		}
	}

	return false
}
