package kvstore_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
)

type fakeDynamoDB struct {
	getItem            func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItem            func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateItem         func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	deleteItem         func(*dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
	query              func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	transactWriteItems func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
}

func (f *fakeDynamoDB) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getItem(params)
}

func (f *fakeDynamoDB) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return f.putItem(params)
}

func (f *fakeDynamoDB) UpdateItem(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return f.updateItem(params)
}

func (f *fakeDynamoDB) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return f.deleteItem(params)
}

func (f *fakeDynamoDB) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return f.query(params)
}

func (f *fakeDynamoDB) TransactWriteItems(_ context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return f.transactWriteItems(params)
}

func TestGetReturnsErrNotFoundOnEmptyItem(t *testing.T) {
	fake := &fakeDynamoDB{
		getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}
	store := kvstore.NewDynamoDBStore(fake, "rfp-agent", telemetry.NewNoopLogger())

	_, err := store.Get(context.Background(), kvstore.Key{PK: "RFP#1", SK: "PROFILE"})
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestGetDecodesAttributes(t *testing.T) {
	fake := &fakeDynamoDB{
		getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"pk":    &types.AttributeValueMemberS{Value: "RFP#1"},
				"sk":    &types.AttributeValueMemberS{Value: "PROFILE"},
				"title": &types.AttributeValueMemberS{Value: "Bridge Survey"},
			}}, nil
		},
	}
	store := kvstore.NewDynamoDBStore(fake, "rfp-agent", telemetry.NewNoopLogger())

	item, err := store.Get(context.Background(), kvstore.Key{PK: "RFP#1", SK: "PROFILE"})
	require.NoError(t, err)
	assert.Equal(t, "RFP#1", item.PK)
	assert.Equal(t, "Bridge Survey", item.Attributes["title"])
}

func TestPutConditionFailureMapsToErrConditionFailed(t *testing.T) {
	fake := &fakeDynamoDB{
		putItem: func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		},
	}
	store := kvstore.NewDynamoDBStore(fake, "rfp-agent", telemetry.NewNoopLogger())

	err := store.Put(context.Background(), kvstore.Item{PK: "IDEMPOTENCY#x", SK: "PROFILE"}, kvstore.PutOptions{IfNotExists: true})
	assert.ErrorIs(t, err, kvstore.ErrConditionFailed)
}

func TestQueryUsesGSI1IndexNameWhenRequested(t *testing.T) {
	var capturedIndex *string
	fake := &fakeDynamoDB{
		query: func(input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			capturedIndex = input.IndexName
			return &dynamodb.QueryOutput{}, nil
		},
	}
	store := kvstore.NewDynamoDBStore(fake, "rfp-agent", telemetry.NewNoopLogger())

	_, err := store.Query(context.Background(), kvstore.QueryInput{IndexGSI1: true, PKValue: "OWNER#42"})
	require.NoError(t, err)
	require.NotNil(t, capturedIndex)
	assert.Equal(t, "gsi1", *capturedIndex)
}

func TestTransactCanceledMapsToErrConditionFailed(t *testing.T) {
	fake := &fakeDynamoDB{
		transactWriteItems: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, &types.TransactionCanceledException{}
		},
	}
	store := kvstore.NewDynamoDBStore(fake, "rfp-agent", telemetry.NewNoopLogger())

	err := store.Transact(context.Background(), kvstore.TransactWrite{
		Puts: []kvstore.TransactPut{{Item: kvstore.Item{PK: "JOB#1", SK: "PROFILE"}, IfNotExists: true}},
	})
	assert.ErrorIs(t, err, kvstore.ErrConditionFailed)
}
