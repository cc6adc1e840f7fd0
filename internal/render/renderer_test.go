package render

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felman/modulos_backend/internal/columns"
	"github.com/felman/modulos_backend/internal/models"
	"github.com/felman/modulos_backend/internal/shapes"
)

func rows(t *testing.T, body string) []shapes.Row {
	t.Helper()
	res, err := shapes.Default().Normalize([]byte(body), shapes.Query{})
	require.NoError(t, err)
	return res.Rows
}

func TestCardsPedido(t *testing.T) {
	r := rows(t, `{"data":[{"NoPedido":"P1","Cliente":"Acme"}]}`)
	cards := Cards(r, columns.Infer(r, nil))

	require.Len(t, cards, 1)
	assert.Equal(t, 0, cards[0].Index)
	assert.Equal(t, "Registro 1", cards[0].Title)
	require.Len(t, cards[0].Lines, 2)
	assert.Equal(t, "NoPedido: P1", cards[0].Lines[0].String())
	assert.Equal(t, "Cliente: Acme", cards[0].Lines[1].String())
}

func TestCardsRepeatedKeyShowsOnce(t *testing.T) {
	r := rows(t, `{"data":[{"Estado":"OLD","Estado":"NEW"}]}`)
	cards := Cards(r, columns.Infer(r, nil))

	require.Len(t, cards, 1)
	require.Len(t, cards[0].Lines, 1)
	assert.Equal(t, "Estado: NEW", cards[0].Lines[0].String())
}

func TestCardsPlaceholderAndStringification(t *testing.T) {
	r := rows(t, `[{"a":null,"n":3.25,"ok":true,"fecha":"2024-05-01T10:00:00Z","obj":{"x":1}},{"n":0}]`)
	cols := columns.Infer(r, &models.ViewConfig{VisibleColumns: []string{"a", "n", "ok", "fecha", "obj", "nope"}})
	cards := Cards(r, cols)

	require.Len(t, cards, 2)
	got := map[string]string{}
	for _, l := range cards[0].Lines {
		got[l.Label] = l.Value
	}
	assert.Equal(t, map[string]string{
		"a":     Placeholder,
		"n":     "3.25",
		"ok":    "true",
		"fecha": "2024-05-01T10:00:00Z",
		"obj":   `{"x":1}`,
		"nope":  Placeholder,
	}, got)

	assert.Equal(t, "n: 0", cards[1].Lines[1].String())
	assert.Equal(t, "ok: N/A", cards[1].Lines[2].String())
}

func TestCardsEmpty(t *testing.T) {
	cards := Cards(nil, columns.Infer(nil, nil))
	assert.NotNil(t, cards)
	assert.Empty(t, cards)
}

func TestPage(t *testing.T) {
	cards := make([]Card, 45)
	for i := range cards {
		cards[i].Index = i
	}

	page, info := Page(cards, 2, 20)
	assert.Len(t, page, 20)
	assert.Equal(t, 20, page[0].Index)
	assert.Equal(t, PageInfo{Page: 2, PerPage: 20, Total: 45, TotalPages: 3}, info)

	page, info = Page(cards, 3, 20)
	assert.Len(t, page, 5)
	assert.Equal(t, 3, info.Page)

	page, info = Page(cards, 99, 20)
	assert.Len(t, page, 5)
	assert.Equal(t, 3, info.Page)

	_, info = Page(cards, 0, 20)
	assert.Equal(t, 1, info.Page)

	page, info = Page(nil, 1, 20)
	assert.Empty(t, page)
	assert.Equal(t, 1, info.TotalPages)

	page, _ = Page(cards, 1, 0)
	assert.Len(t, page, 45)
}

func TestWriteText(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, []Card{{
		Index: 0,
		Title: "Registro 1",
		Lines: []Line{{Label: "NoPedido", Value: "P1"}, {Label: "Cliente", Value: "Acme"}},
	}}))
	assert.Equal(t, "Registro 1\n  NoPedido: P1\n  Cliente: Acme\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteText(&buf, nil))
	assert.Equal(t, "No hay datos disponibles\n", buf.String())
}
