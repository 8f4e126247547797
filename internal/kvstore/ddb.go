package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
)

// DynamoDBAPI is the subset of the DynamoDB client the adapter calls,
// narrowed for testability.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

const (
	attrPK     = "pk"
	attrSK     = "sk"
	attrGSI1PK = "gsi1pk"
	attrGSI1SK = "gsi1sk"
	gsi1Name   = "gsi1"
)

// DynamoDBStore implements Store against a single DynamoDB table with one
// GSI, per spec section 3.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	logger    telemetry.Logger
}

// NewDynamoDBStore constructs a Store. Pass telemetry.NewNoopLogger() when no
// logging is desired.
func NewDynamoDBStore(client DynamoDBAPI, tableName string, logger telemetry.Logger) *DynamoDBStore {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &DynamoDBStore{client: client, tableName: tableName, logger: logger}
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrSK: &types.AttributeValueMemberS{Value: sk},
	}
}

func toAttributeMap(item Item) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(item.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	av[attrPK] = &types.AttributeValueMemberS{Value: item.PK}
	av[attrSK] = &types.AttributeValueMemberS{Value: item.SK}
	if item.GSI1PK != "" {
		av[attrGSI1PK] = &types.AttributeValueMemberS{Value: item.GSI1PK}
	}
	if item.GSI1SK != "" {
		av[attrGSI1SK] = &types.AttributeValueMemberS{Value: item.GSI1SK}
	}
	return av, nil
}

func fromAttributeMap(av map[string]types.AttributeValue) (Item, error) {
	item := Item{Attributes: map[string]any{}}
	attrs := map[string]types.AttributeValue{}
	for k, v := range av {
		switch k {
		case attrPK:
			item.PK = stringValue(v)
		case attrSK:
			item.SK = stringValue(v)
		case attrGSI1PK:
			item.GSI1PK = stringValue(v)
		case attrGSI1SK:
			item.GSI1SK = stringValue(v)
		default:
			attrs[k] = v
		}
	}
	if err := attributevalue.UnmarshalMap(attrs, &item.Attributes); err != nil {
		return Item{}, fmt.Errorf("unmarshal attributes: %w", err)
	}
	return item, nil
}

func stringValue(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// Get fetches a single item by its primary key.
func (s *DynamoDBStore) Get(ctx context.Context, key Key) (Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(key.PK, key.SK),
	})
	if err != nil {
		return Item{}, fmt.Errorf("kvstore get %s/%s: %w", key.PK, key.SK, err)
	}
	if len(out.Item) == 0 {
		return Item{}, ErrNotFound
	}
	return fromAttributeMap(out.Item)
}

// Put writes an item, optionally conditioned on it not already existing.
func (s *DynamoDBStore) Put(ctx context.Context, item Item, opts PutOptions) error {
	av, err := toAttributeMap(item)
	if err != nil {
		return err
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}
	if opts.IfNotExists {
		cond := expression.AttributeNotExists(expression.Name(attrPK))
		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return fmt.Errorf("build condition: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("kvstore put %s/%s: %w", item.PK, item.SK, err)
	}
	return nil
}

// Update applies a partial update, optionally conditioned on an expression.
func (s *DynamoDBStore) Update(ctx context.Context, key Key, sets map[string]any, removes []string, opts UpdateOptions) error {
	builder := expression.UpdateBuilder{}
	for k, v := range sets {
		builder = builder.Set(expression.Name(k), expression.Value(v))
	}
	for _, k := range removes {
		builder = builder.Remove(expression.Name(k))
	}

	// opts.ConditionExpression is a raw DynamoDB condition string applied
	// below with its own ExpressionValues; the builder here only owns the
	// Set/Remove clause.
	expr, err := expression.NewBuilder().WithUpdate(builder).Build()
	if err != nil {
		return fmt.Errorf("build update expression: %w", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(key.PK, key.SK),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if opts.ConditionExpression != "" {
		input.ConditionExpression = aws.String(opts.ConditionExpression)
		condValues, err := attributevalue.MarshalMap(opts.ExpressionValues)
		if err != nil {
			return fmt.Errorf("marshal condition values: %w", err)
		}
		if input.ExpressionAttributeValues == nil {
			input.ExpressionAttributeValues = map[string]types.AttributeValue{}
		}
		for k, v := range condValues {
			input.ExpressionAttributeValues[k] = v
		}
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("kvstore update %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

// Delete removes an item unconditionally.
func (s *DynamoDBStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(key.PK, key.SK),
	}); err != nil {
		return fmt.Errorf("kvstore delete %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

// Query runs a paged key-condition query against the primary index or GSI1.
func (s *DynamoDBStore) Query(ctx context.Context, input QueryInput) (QueryOutput, error) {
	pkName, skName := attrPK, attrSK
	indexName := ""
	if input.IndexGSI1 {
		pkName, skName = attrGSI1PK, attrGSI1SK
		indexName = gsi1Name
	}

	keyCond := expression.Key(pkName).Equal(expression.Value(input.PKValue))
	if input.SKPrefix != "" {
		keyCond = keyCond.And(expression.Key(skName).BeginsWith(input.SKPrefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return QueryOutput{}, fmt.Errorf("build query expression: %w", err)
	}

	ddbInput := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(input.Direction != QueryBackward),
	}
	if indexName != "" {
		ddbInput.IndexName = aws.String(indexName)
	}
	if input.Limit > 0 {
		ddbInput.Limit = aws.Int32(int32(input.Limit))
	}
	if input.ContinuationToken != "" {
		key, err := decodeContinuationToken(input.ContinuationToken)
		if err != nil {
			return QueryOutput{}, fmt.Errorf("decode continuation token: %w", err)
		}
		ddbInput.ExclusiveStartKey = key
	}

	out, err := s.client.Query(ctx, ddbInput)
	if err != nil {
		return QueryOutput{}, fmt.Errorf("kvstore query %s=%s: %w", pkName, input.PKValue, err)
	}

	items := make([]Item, 0, len(out.Items))
	for _, raw := range out.Items {
		item, err := fromAttributeMap(raw)
		if err != nil {
			return QueryOutput{}, err
		}
		items = append(items, item)
	}

	result := QueryOutput{Items: items}
	if len(out.LastEvaluatedKey) > 0 {
		token, err := encodeContinuationToken(out.LastEvaluatedKey)
		if err != nil {
			return QueryOutput{}, err
		}
		result.NextContinuationToken = token
	}
	return result, nil
}

// Transact performs an all-or-nothing set of puts and updates, used for the
// idempotency-row + job-row pair and the contract-template version pointer
// advance (spec section 3).
func (s *DynamoDBStore) Transact(ctx context.Context, write TransactWrite) error {
	items := make([]types.TransactWriteItem, 0, len(write.Puts)+len(write.Updates))

	for _, p := range write.Puts {
		av, err := toAttributeMap(p.Item)
		if err != nil {
			return err
		}
		put := &types.Put{TableName: aws.String(s.tableName), Item: av}
		if p.IfNotExists {
			cond := expression.AttributeNotExists(expression.Name(attrPK))
			expr, err := expression.NewBuilder().WithCondition(cond).Build()
			if err != nil {
				return fmt.Errorf("build transact put condition: %w", err)
			}
			put.ConditionExpression = expr.Condition()
			put.ExpressionAttributeNames = expr.Names()
			put.ExpressionAttributeValues = expr.Values()
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	for _, u := range write.Updates {
		builder := expression.UpdateBuilder{}
		for k, v := range u.Sets {
			builder = builder.Set(expression.Name(k), expression.Value(v))
		}
		expr, err := expression.NewBuilder().WithUpdate(builder).Build()
		if err != nil {
			return fmt.Errorf("build transact update expression: %w", err)
		}
		update := &types.Update{
			TableName:                 aws.String(s.tableName),
			Key:                       itemKey(u.Key.PK, u.Key.SK),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if u.ConditionExpression != "" {
			update.ConditionExpression = aws.String(u.ConditionExpression)
			condValues, err := attributevalue.MarshalMap(u.ExpressionValues)
			if err != nil {
				return fmt.Errorf("marshal transact condition values: %w", err)
			}
			if update.ExpressionAttributeValues == nil {
				update.ExpressionAttributeValues = map[string]types.AttributeValue{}
			}
			for k, v := range condValues {
				update.ExpressionAttributeValues[k] = v
			}
		}
		items = append(items, types.TransactWriteItem{Update: update})
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("kvstore transact: %w", err)
	}
	return nil
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	return errors.As(err, &tce)
}
