package repository

import (
	"fmt"

	"snapvision/internal/model"

	"gopkg.in/yaml.v3"
)

// cardsFile is the YAML seed format: either a bare list of cards or a
// document with a top level "cards" list.
type cardsFile struct {
	Cards []model.Card `yaml:"cards"`
}

// ParseCardsYAML decodes a card seed file. Every card needs a name and
// names must be unique.
func ParseCardsYAML(data []byte) ([]model.Card, error) {
	var cards []model.Card

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse cards: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		if err := node.Content[0].Decode(&cards); err != nil {
			return nil, fmt.Errorf("failed to decode cards: %w", err)
		}
	case yaml.MappingNode:
		var file cardsFile
		if err := node.Content[0].Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to decode cards: %w", err)
		}
		cards = file.Cards
	default:
		return nil, fmt.Errorf("cards file must be a list or a mapping with a cards key")
	}

	seen := make(map[string]bool, len(cards))
	for i, card := range cards {
		if card.Name == "" {
			return nil, fmt.Errorf("card %d has no name", i)
		}
		if seen[card.Name] {
			return nil, fmt.Errorf("duplicate card %q", card.Name)
		}
		seen[card.Name] = true
	}

	return cards, nil
}
