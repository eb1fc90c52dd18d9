// Package graph projects customer identities into Memgraph/Neo4j over Bolt
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// Config holds the Bolt endpoint of the projection store. Database is only
// honoured by servers with multi-database support.
type Config struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
	Database string
	// Dialect selects the index DDL: "memgraph" (default) or "neo4j"
	Dialect string
}

func (c Config) uri() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "bolt"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Client owns the driver used by the customer projector
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	schema   []string
	logger   ectologger.Logger
}

// NewClient creates the driver. No connection is made until first use.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.uri(), auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver for %s: %w", cfg.uri(), err)
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		schema:   schemaStatements(cfg.Dialect),
		logger:   logger,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity doubles as the health probe.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// indexedKeys are the merge keys used by the projector
var indexedKeys = []struct{ label, property string }{
	{"Customer", "guid"},
	{"Tag", "key"},
	{"Account", "id"},
}

// schemaStatements renders one index per merge key. Memgraph has no
// IF NOT EXISTS, so an existing index is tolerated by EnsureSchema.
func schemaStatements(dialect string) []string {
	stmts := make([]string, 0, len(indexedKeys))
	for _, k := range indexedKeys {
		if strings.EqualFold(dialect, "neo4j") {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s_%s IF NOT EXISTS FOR (n:%s) ON (n.%s)",
				strings.ToLower(k.label), k.property, k.label, k.property))
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX ON :%s(%s)", k.label, k.property))
	}
	return stmts
}

// EnsureSchema creates the lookup indexes for Customer, Tag and Account
// nodes. Index DDL cannot run inside an explicit transaction, so each
// statement is sent as an auto-commit query.
func (c *Client) EnsureSchema(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.EnsureSchema")
	defer span.End()

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range c.schema {
		result, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = result.Consume(ctx)
		}
		if err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("failed to apply graph schema %q: %w", stmt, err)
		}
	}

	c.logger.WithContext(ctx).WithField("statements", len(c.schema)).Debug("Graph schema ensured")
	return nil
}

// ExecuteWrite runs work in a managed write transaction. The driver retries
// transient cluster errors on its own.
func (c *Client) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	return session.ExecuteWrite(ctx, work)
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.database,
	})
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "equivalent index")
}
