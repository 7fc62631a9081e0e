package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Switchover/internal/domain"
)

// Ключи документа плана.
const (
	keyStateFile = "state_file"
	keyRun       = "run"
)

// ParsePlan разбирает документ плана (YAML или JSON).
//
// Форма каждого шага определяется здесь, один раз: строка run → StepKindShell,
// список run → StepKindArgv, всё остальное → StepKindInvalid. Фаза, которая не
// является списком, и неизвестный ключ внутри слота сразу дают ErrPlanFormat.
//
// source — путь к документу; относительный state_file разрешается от его каталога.
// Полноту плана проверяет Validate.
func ParsePlan(data []byte, source string) (*domain.Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyPlan
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode plan: %v", ErrPlanFormat, err)
	}

	root := resolve(&doc)
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, ErrEmptyPlan
		}
		root = resolve(root.Content[0])
	}
	if root.Kind != yaml.MappingNode {
		return nil, NewPlanError("", "", -1,
			fmt.Sprintf("expected mapping at top level, got %s", describe(root)), ErrPlanFormat)
	}

	plan := &domain.Plan{
		Source: source,
		Slots:  make(map[domain.Slot]domain.SlotPlan),
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		value := resolve(root.Content[i+1])

		switch {
		case key == keyStateFile:
			if value.Kind != yaml.ScalarNode || value.ShortTag() != "!!str" {
				return nil, NewPlanError("", "", -1,
					fmt.Sprintf("state_file must be a string, got %s", describe(value)), ErrPlanFormat)
			}
			plan.StateFile = value.Value

		case domain.Slot(key).IsValid():
			slotPlan, err := parseSlot(domain.Slot(key), value)
			if err != nil {
				return nil, err
			}
			plan.Slots[domain.Slot(key)] = slotPlan
		}
		// Остальные ключи не относятся к оркестратору и игнорируются.
	}

	if plan.StateFile != "" && source != "" && !filepath.IsAbs(plan.StateFile) {
		plan.StateFile = filepath.Join(filepath.Dir(source), plan.StateFile)
	}

	return plan, nil
}

// LoadPlanReader читает план из io.Reader и валидирует его.
func LoadPlanReader(r io.Reader, source string) (*domain.Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	plan, err := ParsePlan(content, source)
	if err != nil {
		return nil, err
	}
	if err := Validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// LoadPlanFile загружает и валидирует план из файла.
func LoadPlanFile(path string) (*domain.Plan, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve plan path %s: %w", path, err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()

	plan, err := LoadPlanReader(f, abs)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return plan, nil
}

// parseSlot разбирает фазы одного слота.
func parseSlot(slot domain.Slot, node *yaml.Node) (domain.SlotPlan, error) {
	if node.Kind != yaml.MappingNode {
		return nil, NewPlanError(slot, "", -1,
			fmt.Sprintf("expected mapping of phases, got %s", describe(node)), ErrPlanFormat)
	}

	slotPlan := make(domain.SlotPlan)
	for i := 0; i+1 < len(node.Content); i += 2 {
		phase := domain.Phase(node.Content[i].Value)
		if !phase.IsValid() {
			return nil, NewPlanError(slot, phase, -1, "unknown phase", ErrPlanFormat)
		}

		steps, err := parseSteps(slot, phase, resolve(node.Content[i+1]))
		if err != nil {
			return nil, err
		}
		slotPlan[phase] = steps
	}
	return slotPlan, nil
}

// parseSteps разбирает список шагов фазы.
func parseSteps(slot domain.Slot, phase domain.Phase, node *yaml.Node) ([]domain.Step, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, NewPlanError(slot, phase, -1,
			fmt.Sprintf("expected list of steps, got %s", describe(node)), ErrPlanFormat)
	}

	steps := make([]domain.Step, 0, len(node.Content))
	for _, item := range node.Content {
		steps = append(steps, parseStep(resolve(item)))
	}
	return steps, nil
}

// parseStep определяет вариант шага.
func parseStep(node *yaml.Node) domain.Step {
	if node.Kind != yaml.MappingNode {
		return domain.InvalidStep(render(node))
	}

	var run *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == keyRun {
			run = resolve(node.Content[i+1])
			break
		}
	}
	if run == nil {
		return domain.InvalidStep(render(node))
	}

	switch run.Kind {
	case yaml.ScalarNode:
		if run.ShortTag() == "!!str" && run.Value != "" {
			return domain.ShellStep(run.Value)
		}

	case yaml.SequenceNode:
		if len(run.Content) == 0 {
			break
		}
		argv := make([]string, 0, len(run.Content))
		for _, token := range run.Content {
			token = resolve(token)
			if token.Kind != yaml.ScalarNode || token.ShortTag() == "!!null" {
				return domain.InvalidStep(render(node))
			}
			argv = append(argv, token.Value)
		}
		return domain.ArgvStep(argv...)
	}

	return domain.InvalidStep(render(node))
}

// resolve раскрывает YAML alias.
func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

// describe возвращает короткое описание узла для сообщений об ошибках.
func describe(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "list"
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return "null"
		}
		return fmt.Sprintf("%s %q", strings.TrimPrefix(node.ShortTag(), "!!"), node.Value)
	default:
		return "unknown node"
	}
}

// render возвращает узел в однострочном flow-виде, для диагностики.
func render(node *yaml.Node) string {
	copied := *node
	copied.Style = yaml.FlowStyle
	out, err := yaml.Marshal(&copied)
	if err != nil {
		return describe(node)
	}
	return strings.TrimSpace(string(out))
}
