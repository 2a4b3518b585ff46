// Package dynamodb provides a snapshot store backed by Amazon DynamoDB.
//
// The table needs a string partition key "PK" and a string sort key "SK".
// One item per stream holds the latest snapshot, so the table can be shared
// with other single-table data.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

var (
	_ adapters.SnapshotAdapter = (*DynamoDBAdapter)(nil)
	_ adapters.HealthChecker   = (*DynamoDBAdapter)(nil)
)

const (
	keyPrefix   = "SNAPSHOT#"
	latestSortK = "LATEST"
)

// Client is the subset of *dynamodb.Client the adapter uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type item struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	StreamID  string `dynamodbav:"StreamID"`
	Version   int64  `dynamodbav:"Version"`
	Data      []byte `dynamodbav:"Data"`
	CreatedAt string `dynamodbav:"CreatedAt"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// DynamoDBAdapter implements adapters.SnapshotAdapter on DynamoDB.
type DynamoDBAdapter struct {
	client    Client
	table     string
	ttl       time.Duration
	monotonic bool
	now       func() time.Time
}

// Option configures a DynamoDBAdapter.
type Option func(*DynamoDBAdapter)

// WithTTL sets an expiry on each snapshot item. The table's TTL attribute
// must be "TTL". An expired snapshot only costs a full replay.
func WithTTL(ttl time.Duration) Option {
	return func(a *DynamoDBAdapter) {
		a.ttl = ttl
	}
}

// WithMonotonicVersions makes a save that is older than the stored snapshot
// a no-op, so concurrent writers can never move a snapshot backwards.
func WithMonotonicVersions() Option {
	return func(a *DynamoDBAdapter) {
		a.monotonic = true
	}
}

// WithClock sets the clock used for CreatedAt and TTL.
func WithClock(now func() time.Time) Option {
	return func(a *DynamoDBAdapter) {
		a.now = now
	}
}

// NewAdapter creates an adapter for the given table.
func NewAdapter(client Client, table string, opts ...Option) (*DynamoDBAdapter, error) {
	if client == nil {
		return nil, errors.New("snapmink/dynamodb: client is required")
	}
	if table == "" {
		return nil, errors.New("snapmink/dynamodb: table name is required")
	}

	a := &DynamoDBAdapter{
		client: client,
		table:  table,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewAdapterFromEnv builds a client from the default AWS credential chain
// and region settings.
func NewAdapterFromEnv(ctx context.Context, table string, opts ...Option) (*DynamoDBAdapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapmink/dynamodb: load AWS config: %w", err)
	}
	return NewAdapter(dynamodb.NewFromConfig(cfg), table, opts...)
}

func itemKey(streamID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: keyPrefix + streamID},
		"SK": &types.AttributeValueMemberS{Value: latestSortK},
	}
}

// SaveSnapshot stores a snapshot for the given stream.
func (a *DynamoDBAdapter) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}

	now := a.now().UTC()
	it := item{
		PK:        keyPrefix + streamID,
		SK:        latestSortK,
		StreamID:  streamID,
		Version:   version,
		Data:      data,
		CreatedAt: now.Format(time.RFC3339Nano),
	}
	if a.ttl > 0 {
		it.TTL = now.Add(a.ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("snapmink/dynamodb: marshal snapshot %s: %w", streamID, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item:      av,
	}
	if a.monotonic {
		input.ConditionExpression = aws.String("attribute_not_exists(PK) OR Version <= :v")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
		}
	}

	if _, err := a.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("snapmink/dynamodb: save snapshot %s: %w", streamID, err)
	}
	return nil
}

// LoadSnapshot retrieves the snapshot for the given stream, or nil if none
// exists or it has expired.
func (a *DynamoDBAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	out, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.table),
		Key:            itemKey(streamID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("snapmink/dynamodb: load snapshot %s: %w", streamID, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("snapmink/dynamodb: unmarshal snapshot %s: %w", streamID, err)
	}

	// DynamoDB deletes expired items lazily.
	if it.TTL > 0 && a.now().Unix() >= it.TTL {
		return nil, nil
	}

	// A malformed timestamp leaves CreatedAt zero.
	createdAt, _ := time.Parse(time.RFC3339Nano, it.CreatedAt)

	return &adapters.SnapshotRecord{
		StreamID:  streamID,
		Version:   it.Version,
		Data:      it.Data,
		CreatedAt: createdAt,
	}, nil
}

// DeleteSnapshot removes the snapshot for the given stream.
func (a *DynamoDBAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}

	_, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.table),
		Key:       itemKey(streamID),
	})
	if err != nil {
		return fmt.Errorf("snapmink/dynamodb: delete snapshot %s: %w", streamID, err)
	}
	return nil
}

// Ping checks that the table exists and is active.
func (a *DynamoDBAdapter) Ping(ctx context.Context) error {
	out, err := a.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(a.table),
	})
	if err != nil {
		return fmt.Errorf("snapmink/dynamodb: describe table %s: %w", a.table, err)
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return fmt.Errorf("snapmink/dynamodb: table %s is not active", a.table)
	}
	return nil
}
