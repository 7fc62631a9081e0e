package statestore

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Switchover/internal/domain"
)

// indent — отступ блочного стиля при записи.
const indent = 4

// Decode разбирает содержимое записи. Пустое содержимое — пустое состояние.
// Ключи со значением null пропускаются.
func Decode(content []byte) (*domain.DeploymentState, error) {
	state := domain.NewDeploymentState()
	if len(bytes.TrimSpace(content)) == 0 {
		return state, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateFormat, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return state, nil
		}
		root = root.Content[0]
	}

	if root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null" {
		return state, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected mapping", ErrStateFormat)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: key %q is not a scalar pair", ErrStateFormat, key.Value)
		}
		// ключ без значения считается отсутствующим
		if value.ShortTag() == "!!null" {
			continue
		}
		state.Set(key.Value, value.Value)
	}

	return state, nil
}

// Encode сериализует состояние: блочный mapping, ключи в порядке состояния.
// Одинаковое состояние всегда даёт одинаковые байты.
func Encode(state *domain.DeploymentState) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range state.Keys() {
		value, _ := state.Get(key)
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return buf.Bytes(), nil
}
