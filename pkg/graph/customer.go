package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/metrics"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

const (
	upsertCustomerCypher = `
		MERGE (c:Customer {guid: $guid})
		SET c += $props
	`

	// tags not in $keys lose their edge, the rest are merged
	replaceTagsCypher = `
		MATCH (c:Customer {guid: $guid})
		OPTIONAL MATCH (c)-[r:HAS_TAG]->(old:Tag)
		WHERE NOT old.key IN $keys
		DELETE r
		WITH DISTINCT c
		UNWIND $tags AS tag
		MERGE (t:Tag {key: tag.key})
		SET t.label = tag.label, t.color = tag.color, t.rule_id = tag.rule_id
		MERGE (c)-[:HAS_TAG]->(t)
	`

	upsertAccountsCypher = `
		MATCH (c:Customer {guid: $guid})
		UNWIND $accounts AS account
		MERGE (a:Account {id: account.id})
		SET a += account
		MERGE (c)-[:HAS_ACCOUNT]->(a)
	`
)

// CustomerProjector writes customers, their accounts and their auto tags
// into the graph
type CustomerProjector struct {
	client *Client
	logger ectologger.Logger
}

// NewCustomerProjector creates a new customer projector
func NewCustomerProjector(client *Client, logger ectologger.Logger) *CustomerProjector {
	return &CustomerProjector{
		client: client,
		logger: logger,
	}
}

// Project upserts the customer node, replaces its HAS_TAG edges with the
// current auto tags and merges its HAS_ACCOUNT edges.
func (p *CustomerProjector) Project(ctx context.Context, customer models.Customer, accounts []models.CustomerAccount) error {
	ctx, span := tracing.StartSpan(ctx, "graph.CustomerProjector.Project")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"customer_guid": customer.GUID,
	})

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, upsertCustomerCypher, map[string]any{
			"guid":  customer.GUID,
			"props": customerProps(customer),
		}); err != nil {
			return nil, err
		}

		keys, tags := tagParams(customer.AutoTags)
		if err := run(ctx, tx, replaceTagsCypher, map[string]any{
			"guid": customer.GUID,
			"keys": keys,
			"tags": tags,
		}); err != nil {
			return nil, err
		}

		if len(accounts) == 0 {
			return nil, nil
		}
		return nil, run(ctx, tx, upsertAccountsCypher, map[string]any{
			"guid":     customer.GUID,
			"accounts": accountParams(accounts),
		})
	})
	if err != nil {
		metrics.RecordGraphProjection("failed")
		log.WithError(err).Error("Failed to project customer into graph")
		return fmt.Errorf("failed to project customer into graph: %w", err)
	}

	metrics.RecordGraphProjection("success")
	log.Debug("Projected customer into graph")
	return nil
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func customerProps(c models.Customer) map[string]any {
	return map[string]any{
		"guid":             c.GUID,
		"shop_id":          c.ShopID,
		"provider":         c.Provider,
		"email":            c.Email,
		"normalized_phone": c.NormalizedPhone,
		"full_name":        c.FullName,
		"customer_group":   string(c.CustomerGroup),
		"is_vip":           c.IsVIP,
		"tags":             append([]string{}, c.Tags...),
		"updated_at":       c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func tagParams(autoTags []models.AutoTag) ([]string, []map[string]any) {
	keys := make([]string, 0, len(autoTags))
	tags := make([]map[string]any, 0, len(autoTags))
	for _, t := range autoTags {
		keys = append(keys, t.Key)
		tags = append(tags, map[string]any{
			"key":     t.Key,
			"label":   t.Label,
			"color":   t.Color,
			"rule_id": t.RuleID,
		})
	}
	return keys, tags
}

func accountParams(accounts []models.CustomerAccount) []map[string]any {
	out := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, map[string]any{
			"id":                a.ID,
			"shop_id":           a.ShopID,
			"external_ref":      a.ExternalRef,
			"email":             a.Email,
			"is_main":           a.IsMain,
			"is_authorized":     a.IsAuthorized,
			"is_email_verified": a.IsEmailVerified,
		})
	}
	return out
}
