package cursor

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key layout for cursor records.
const (
	pkPrefix = "CURSOR#"
	skCursor = "LAST_MESSAGE"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// cursorRecord is the DynamoDB item shape. PK and SK are set explicitly.
type cursorRecord struct {
	LastMessageID int64  `dynamodbav:"lastMessageId"`
	UpdatedAt     string `dynamodbav:"updatedAt"`
}

// DynamoStore keeps one cursor item per channel in a single-table design.
// PutItem replaces the whole item atomically.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	channel   string
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for channel in tableName.
func NewDynamoStore(client DynamoAPI, tableName, channel string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		channel:   channel,
		now:       time.Now,
	}
}

func (s *DynamoStore) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefix + s.channel},
		"SK": &types.AttributeValueMemberS{Value: skCursor},
	}
}

func (s *DynamoStore) Load(ctx context.Context) (Cursor, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Cursor{}, fmt.Errorf("GetItem PK=%s%s SK=%s: %w", pkPrefix, s.channel, skCursor, err)
	}
	if result.Item == nil {
		log.Debug().Str("table", s.tableName).Str("channel", s.channel).Msg("No cursor record, starting from 0")
		return Cursor{}, nil
	}

	var rec cursorRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor record: %w", err)
	}
	return Cursor{LastMessageID: rec.LastMessageID}, nil
}

func (s *DynamoStore) Save(ctx context.Context, c Cursor) error {
	item, err := attributevalue.MarshalMap(cursorRecord{
		LastMessageID: c.LastMessageID,
		UpdatedAt:     s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return &PersistError{Backend: "dynamodb", Cursor: c, Err: fmt.Errorf("marshal: %w", err)}
	}
	for k, v := range s.key() {
		item[k] = v
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return &PersistError{Backend: "dynamodb", Cursor: c, Err: fmt.Errorf("PutItem: %w", err)}
	}
	log.Debug().Str("table", s.tableName).Int64("lastMessageId", c.LastMessageID).Msg("Cursor saved")
	return nil
}
