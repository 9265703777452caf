package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// dynamoMaxItemBytes is DynamoDB's hard per-item size limit.
const dynamoMaxItemBytes = 400 * 1024

// DynamoConfig selects the table and endpoint for DynamoStorage.
type DynamoConfig struct {
	Region   string
	Endpoint string
	Table    string
}

// DynamoStorage implements Storage with one DynamoDB item per key.
//
// Items look like {PK: <key>, value: <string>, updatedAt: <RFC3339>}.
type DynamoStorage struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamo creates a DynamoDB client and returns a DynamoStorage.
func NewDynamo(ctx context.Context, cfg DynamoConfig) (*DynamoStorage, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &DynamoStorage{
		client:    dynamodb.NewFromConfig(awsCfg),
		tableName: cfg.Table,
	}, nil
}

func (s *DynamoStorage) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStorage) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.itemKey(key),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return "", false, mapDynamoErr("GetItem", err)
	}

	if out.Item == nil {
		return "", false, nil
	}

	return unmarshalValue(out.Item)
}

func (s *DynamoStorage) Set(ctx context.Context, key string, value string) error {
	if len(key)+len(value) > dynamoMaxItemBytes {
		return fmt.Errorf("PutItem %q: %w", key, ErrQuotaExceeded)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: key},
		"value":     &types.AttributeValueMemberS{Value: value},
		"updatedAt": &types.AttributeValueMemberS{Value: now},
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return mapDynamoErr("PutItem", err)
	}

	return nil
}

func (s *DynamoStorage) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.itemKey(key),
	})
	if err != nil {
		return mapDynamoErr("DeleteItem", err)
	}

	return nil
}

// unmarshalValue extracts the string value from a DynamoDB item.
func unmarshalValue(item map[string]types.AttributeValue) (string, bool, error) {
	attr, ok := item["value"]
	if !ok {
		return "", false, nil
	}

	sv, ok := attr.(*types.AttributeValueMemberS)
	if !ok {
		return "", false, fmt.Errorf("value attribute is not a string")
	}

	return sv.Value, true, nil
}

func mapDynamoErr(op string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" &&
		strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "size") {
		return fmt.Errorf("%s: %w: %w", op, ErrQuotaExceeded, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func boolPtr(b bool) *bool { return &b }
