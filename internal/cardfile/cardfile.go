// Package cardfile reads and writes the on-disk card format: one YAML
// document per card, holding both sides, metadata and the full review
// history.
package cardfile

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/cardbox/internal/domain"
)

// Ext is the card file extension, including the dot.
const Ext = ".card"

// Filename returns the file name for a card id. Files are keyed by id
// so that identically-worded cards can never overwrite one another.
func Filename(id string) string {
	return id + Ext
}

// Marshal serializes a card to its file form.
func Marshal(card *domain.Card) ([]byte, error) {
	data, err := yaml.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card %s: %w", card.Meta.ID, err)
	}
	return data, nil
}

// Parse decodes a card from r.
func Parse(r io.Reader) (*domain.Card, error) {
	var card domain.Card
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode card: %w", err)
	}
	return &card, nil
}

// ParseFile reads and decodes the card at path.
func ParseFile(path string) (*domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}
