package models

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func validModule() *ModuleDefinition {
	return &ModuleDefinition{
		Name:           "Pedidos",
		ConnectionType: ConnectionAPI,
		APIRestURL:     "https://api.felman.local/consulta",
		SQL:            "SELECT * FROM Pedidos",
		AllowedRoles:   []string{RoleAll},
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts a single query module", func(t *testing.T) {
		assert.NoError(t, validModule().Validate())
	})

	t.Run("rejects multi-query without entries", func(t *testing.T) {
		m := validModule()
		m.MultipleQueries = true
		err := m.Validate()
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Error(), "consultasSQL must not be empty")
	})

	t.Run("rejects duplicated and empty query ids", func(t *testing.T) {
		m := validModule()
		m.MultipleQueries = true
		m.Queries = []QueryDefinition{{ID: "a", SQL: "x"}, {ID: "a", SQL: "y"}, {SQL: "z"}}
		var verr *ValidationError
		require.ErrorAs(t, m.Validate(), &verr)
		assert.Len(t, verr.Problems, 2)
	})

	t.Run("rejects bad connection and url", func(t *testing.T) {
		m := validModule()
		m.ConnectionType = "ftp"
		m.APIRestURL = "not a url"
		var verr *ValidationError
		require.ErrorAs(t, m.Validate(), &verr)
		assert.Len(t, verr.Problems, 2)
	})

	t.Run("db module without dbConfig is accepted for storage", func(t *testing.T) {
		m := validModule()
		m.ConnectionType = ConnectionDB
		assert.NoError(t, m.Validate())
	})
}

func TestVisibleTo(t *testing.T) {
	m := validModule()
	m.AllowedRoles = []string{"Almacen", "Oficina"}

	assert.True(t, m.VisibleTo("almacen"))
	assert.True(t, m.VisibleTo("Oficina"))
	assert.False(t, m.VisibleTo("Chofer"))
	assert.False(t, m.VisibleTo(""))
	assert.True(t, m.VisibleTo(RoleAdmin))

	m.AllowedRoles = []string{RoleAll}
	assert.True(t, m.VisibleTo("Chofer"))
	assert.True(t, m.VisibleTo(""))
}

func TestPerPage(t *testing.T) {
	m := validModule()
	assert.Equal(t, DefaultRecordsPerPage, m.PerPage())

	m.View = &ViewConfig{}
	assert.Equal(t, DefaultRecordsPerPage, m.PerPage())

	m.View = &ViewConfig{RecordsPerPage: -3}
	assert.Equal(t, DefaultRecordsPerPage, m.PerPage())

	m.View = &ViewConfig{RecordsPerPage: 50}
	assert.Equal(t, 50, m.PerPage())
	assert.Equal(t, 50, m.View.RecordsPerPage)
}

func TestApplyDefaults(t *testing.T) {
	m := &ModuleDefinition{
		MultipleQueries: true,
		Queries:         []QueryDefinition{{ID: "main"}, {ID: "aux"}},
	}
	m.ApplyDefaults()
	assert.Equal(t, ConnectionAPI, m.ConnectionType)
	assert.Equal(t, "main", m.PrimaryQueryID)

	m.PrimaryQueryID = "aux"
	m.ApplyDefaults()
	assert.Equal(t, "aux", m.PrimaryQueryID)
}

func TestCloneAndRedacted(t *testing.T) {
	m := validModule()
	m.DBConfig = &DBConfig{Host: "db", Password: "secret"}
	m.Queries = []QueryDefinition{{ID: "a", Params: []any{1}}}

	c := m.Clone()
	c.DBConfig.Host = "other"
	c.Queries[0].Params[0] = 2
	c.AllowedRoles[0] = "Changed"

	assert.Equal(t, "db", m.DBConfig.Host)
	assert.Equal(t, 1, m.Queries[0].Params[0])
	assert.Equal(t, RoleAll, m.AllowedRoles[0])

	r := m.Redacted()
	assert.Equal(t, "********", r.DBConfig.Password)
	assert.Equal(t, "secret", m.DBConfig.Password)
}

func TestDBConfigPortAcceptsNumberOrString(t *testing.T) {
	var a, b DBConfig
	require.NoError(t, json.Unmarshal([]byte(`{"host":"h","puerto":1433}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"host":"h","puerto":"1433"}`), &b))
	assert.Equal(t, "1433", a.Port.String())
	assert.Equal(t, a.Port, b.Port)
}

func TestModuleIDColumnFitsDeviceIDs(t *testing.T) {
	s, err := schema.Parse(&ModuleDefinition{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	f := s.LookUpField("ID")
	require.NotNil(t, f)
	assert.True(t, f.PrimaryKey)
	assert.Equal(t, 128, f.Size)
}
