// Package render presents rows as schema-independent label/value cards.
package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/felman/modulos_backend/internal/columns"
	"github.com/felman/modulos_backend/internal/shapes"
)

// Placeholder is shown for absent and null fields.
const Placeholder = "N/A"

type Line struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

func (l Line) String() string {
	return l.Label + ": " + l.Value
}

// Card is one rendered row. Index is the row position and its only identity.
type Card struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Lines []Line `json:"lines"`
}

// Cards renders one card per row with one line per column.
func Cards(rows []shapes.Row, cols columns.Columns) []Card {
	cards := make([]Card, 0, len(rows))
	for i, row := range rows {
		card := Card{
			Index: i,
			Title: fmt.Sprintf("Registro %d", i+1),
			Lines: make([]Line, 0, len(cols.Names)),
		}
		for _, name := range cols.Names {
			card.Lines = append(card.Lines, Line{Label: name, Value: display(row, name)})
		}
		cards = append(cards, card)
	}
	return cards
}

func display(row shapes.Row, name string) string {
	v, ok := row.Get(name)
	if !ok || v.IsNull() {
		return Placeholder
	}
	return v.String()
}

// PageInfo describes a slice of cards.
type PageInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Page returns the 1-based page of cards. Out of range pages are clamped.
func Page(cards []Card, page, perPage int) ([]Card, PageInfo) {
	if perPage <= 0 {
		perPage = len(cards)
		if perPage == 0 {
			perPage = 1
		}
	}
	total := len(cards)
	pages := (total + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > total {
		end = total
	}
	if start > total {
		start = total
	}
	return cards[start:end], PageInfo{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}

var (
	titleColor = color.New(color.Bold, color.FgCyan)
	labelColor = color.New(color.FgYellow)
)

// WriteText prints cards for terminals. Empty input prints the no-data state.
func WriteText(w io.Writer, cards []Card) error {
	if len(cards) == 0 {
		_, err := fmt.Fprintln(w, "No hay datos disponibles")
		return err
	}
	for _, card := range cards {
		if _, err := titleColor.Fprintln(w, card.Title); err != nil {
			return err
		}
		for _, line := range card.Lines {
			if _, err := labelColor.Fprintf(w, "  %s: ", line.Label); err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
