package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client the ledger uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore is the production ledger: a table keyed by CommunicationId
// with a JiraUpdated/timeCreated global secondary index.
type DynamoStore struct {
	dynamoDB  DynamoAPI
	tableName string
	indexName string
}

// NewDynamoStore creates a DynamoDB-backed ledger
func NewDynamoStore(client DynamoAPI, tableName, indexName string) *DynamoStore {
	return &DynamoStore{
		dynamoDB:  client,
		tableName: tableName,
		indexName: indexName,
	}
}

// PutIfAbsent writes rec with attribute_not_exists on the hash key
func (s *DynamoStore) PutIfAbsent(ctx context.Context, rec Record) error {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling record %s: %w", rec.CommunicationID, err)
	}

	_, err = s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(CommunicationId)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrExists
		}
		return fmt.Errorf("putting record %s to DynamoDB: %w", rec.CommunicationID, err)
	}

	return nil
}

// MarkSynced sets JiraUpdated = 1 on one record
func (s *DynamoStore) MarkSynced(ctx context.Context, communicationID string) error {
	_, err := s.dynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"CommunicationId": &types.AttributeValueMemberS{Value: communicationID},
		},
		UpdateExpression: aws.String("SET #a = :x"),
		ExpressionAttributeNames: map[string]string{
			"#a": "JiraUpdated",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":x": &types.AttributeValueMemberN{Value: fmt.Sprint(Synced)},
		},
	})
	if err != nil {
		return fmt.Errorf("updating %s in DynamoDB: %w", communicationID, err)
	}
	return nil
}

// QueryBySyncFlag reads the processing index, following every page
func (s *DynamoStore) QueryBySyncFlag(ctx context.Context, flag int, after time.Time) ([]Record, error) {
	paginator := dynamodb.NewQueryPaginator(s.dynamoDB, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(s.indexName),
		KeyConditionExpression: aws.String("JiraUpdated = :update_status AND timeCreated > :after_date"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":update_status": &types.AttributeValueMemberN{Value: fmt.Sprint(flag)},
			":after_date":    &types.AttributeValueMemberS{Value: FormatTime(after)},
		},
	})

	var records []Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", s.indexName, err)
		}
		var batch []Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshaling records: %w", err)
		}
		records = append(records, batch...)
	}

	return records, nil
}
