package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

func TestCustomerProps(t *testing.T) {
	updated := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	props := customerProps(models.Customer{
		GUID:          "g1",
		Email:         "a@b.cz",
		CustomerGroup: models.CustomerGroupCompany,
		IsVIP:         true,
		UpdatedAt:     updated,
	})

	assert.Equal(t, "g1", props["guid"])
	assert.Equal(t, "company", props["customer_group"])
	assert.Equal(t, true, props["is_vip"])
	assert.Equal(t, "2024-06-01T10:00:00Z", props["updated_at"])
	// nil tags are sent as an empty list
	assert.Equal(t, []string{}, props["tags"])
}

func TestTagParams(t *testing.T) {
	keys, tags := tagParams([]models.AutoTag{
		{Key: "loyal", Label: "Loyal", Color: "#0f0", RuleID: "r1"},
		{Key: "big-spender", Label: "Big spender"},
	})

	assert.Equal(t, []string{"loyal", "big-spender"}, keys)
	assert.Len(t, tags, 2)
	assert.Equal(t, "r1", tags[0]["rule_id"])
	assert.Equal(t, "", tags[1]["color"])

	keys, tags = tagParams(nil)
	assert.Empty(t, keys)
	assert.NotNil(t, tags)
}

func TestAccountParams(t *testing.T) {
	params := accountParams([]models.CustomerAccount{
		{ID: "a1", Email: "a@b.cz", IsMain: true},
	})

	assert.Len(t, params, 1)
	assert.Equal(t, "a1", params[0]["id"])
	assert.Equal(t, true, params[0]["is_main"])
}

func TestConfigURI(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "default scheme", cfg: Config{Host: "memgraph", Port: 7687}, want: "bolt://memgraph:7687"},
		{name: "routing scheme", cfg: Config{Scheme: "neo4j+s", Host: "graph.local", Port: 7687}, want: "neo4j+s://graph.local:7687"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.uri())
		})
	}
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(errors.New("Index already exists")))
	assert.True(t, isAlreadyExists(errors.New("An equivalent index already exists")))
	assert.False(t, isAlreadyExists(errors.New("connection refused")))
}

func TestSchemaStatements(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{dialect: "", want: "CREATE INDEX ON :Customer(guid)"},
		{dialect: "memgraph", want: "CREATE INDEX ON :Customer(guid)"},
		{dialect: "Neo4j", want: "CREATE INDEX customer_guid IF NOT EXISTS FOR (n:Customer) ON (n.guid)"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			stmts := schemaStatements(tt.dialect)

			assert.Len(t, stmts, 3)
			assert.Equal(t, tt.want, stmts[0])
		})
	}
}
