package neo4j

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/pkg/circuitbreaker"
)

type fakeDriver struct {
	neo4j.DriverWithContext
	session *fakeSession
	config  neo4j.SessionConfig
}

func (d *fakeDriver) NewSession(ctx context.Context, cfg neo4j.SessionConfig) neo4j.SessionWithContext {
	d.config = cfg
	return d.session
}

type fakeSession struct {
	neo4j.SessionWithContext
	result  neo4j.ResultWithContext
	err     error
	queries []string
	params  []map[string]any
	closed  bool
}

func (s *fakeSession) Run(ctx context.Context, cypher string, params map[string]any, configurers ...func(*neo4j.TransactionConfig)) (neo4j.ResultWithContext, error) {
	s.queries = append(s.queries, cypher)
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

type fakeResult struct {
	neo4j.ResultWithContext
	records []*neo4j.Record
	pos     int
	err     error
}

func (r *fakeResult) Next(ctx context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeResult) Record() *neo4j.Record { return r.records[r.pos-1] }

func (r *fakeResult) Err() error { return r.err }

func TestSessionStreamsRecordsIntoDetector(t *testing.T) {
	result := &fakeResult{records: []*neo4j.Record{
		{Keys: []string{"person", "related"}, Values: []any{"alice", []any{"bob", "carol"}}},
		{Keys: []string{"person", "related"}, Values: []any{"alice", []any{"bob"}}},
	}}
	driver := &fakeDriver{session: &fakeSession{result: result}}
	client := newClient(driver, "graph", time.Minute)

	session := client.NewSession(context.Background())
	def := detector.New("people", "MATCH (p) RETURN p", [][]string{{"alice", "bob|carol"}}, detector.KindExposure)

	records, err := detector.Drain(def.Run(context.Background(), session))
	require.NoError(t, err)
	assert.Equal(t, []detector.Record{{"person": "alice", "related": []any{"bob"}}}, records)

	assert.Equal(t, neo4j.AccessModeRead, driver.config.AccessMode)
	assert.Equal(t, "graph", driver.config.DatabaseName)
	assert.Equal(t, []string{"MATCH (p) RETURN p"}, driver.session.queries)
	assert.Nil(t, driver.session.params[0])

	require.NoError(t, session.Close(context.Background()))
	assert.True(t, driver.session.closed)
}

func TestSessionReturnsDriverErrorUnchanged(t *testing.T) {
	errConn := &neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable", Msg: "database unavailable"}
	driver := &fakeDriver{session: &fakeSession{err: errConn}}
	client := newClient(driver, "neo4j", 0)

	_, err := client.NewSession(context.Background()).ExecuteQuery(context.Background(), "RETURN 1")
	assert.Same(t, errConn, err)
}

func TestSessionBreakerOpensOnTransportFailures(t *testing.T) {
	driver := &fakeDriver{session: &fakeSession{err: errors.New("connection refused")}}
	client := newClient(driver, "neo4j", 0)
	session := client.NewSession(context.Background())

	for i := 0; i < 5; i++ {
		_, err := session.ExecuteQuery(context.Background(), "RETURN 1")
		require.Error(t, err)
	}

	_, err := session.ExecuteQuery(context.Background(), "RETURN 1")
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Len(t, driver.session.queries, 5)
}

func TestIsGraphFailure(t *testing.T) {
	assert.False(t, isGraphFailure(nil))
	assert.False(t, isGraphFailure(context.Canceled))
	assert.False(t, isGraphFailure(&neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}))
	assert.True(t, isGraphFailure(&neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable"}))
	assert.True(t, isGraphFailure(errors.New("broken pipe")))
}
