package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/pkg/types"
)

const pkPrefix = "DISPATCH#"

// dynamodbAPI is the subset of *dynamodb.Client used by Store.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store keeps dispatch records in a single DynamoDB table keyed by PK.
// Listing and stats scan the table; it is sized for an audit log, not
// for high volume.
type Store struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName}, nil
}

func (s *Store) Close() error { return nil }

func dispatchPK(id string) string {
	return pkPrefix + id
}

func (s *Store) CreateDispatch(ctx context.Context, rec *storage.DispatchRecord) error {
	if rec.ID == "" {
		return errors.New("dynamo: CreateDispatch: id is required")
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                dispatchItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condErr *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("dynamo: dispatch already exists: %s", rec.ID)
		}
		return fmt.Errorf("dynamo: CreateDispatch: %w", err)
	}
	return nil
}

func (s *Store) GetDispatch(ctx context.Context, id string) (*storage.DispatchRecord, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: dispatchPK(id)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: GetDispatch: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	rec, err := itemToDispatch(out.Item)
	if err != nil {
		return nil, fmt.Errorf("dynamo: GetDispatch decode: %w", err)
	}
	return rec, nil
}

// ListDispatches returns matching records newest first. Total counts every
// match regardless of cursor and limit.
func (s *Store) ListDispatches(ctx context.Context, filter storage.DispatchFilter) ([]*storage.DispatchRecord, int, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	matched := all[:0]
	for _, rec := range all {
		if filter.Matches(rec) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.EffectiveLimit()
	records := make([]*storage.DispatchRecord, 0, min(limit, len(matched)))
	for _, rec := range matched {
		if filter.Cursor != nil && !rec.CreatedAt.Before(*filter.Cursor) {
			continue
		}
		if len(records) == limit {
			break
		}
		records = append(records, rec)
	}
	return records, len(matched), nil
}

func (s *Store) GetDispatchStats(ctx context.Context) (*types.DispatchStats, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	stats := &types.DispatchStats{}
	for _, rec := range all {
		storage.AddToStats(stats, rec.Status, 1)
	}
	return stats, nil
}

func (s *Store) scanAll(ctx context.Context) ([]*storage.DispatchRecord, error) {
	in := &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("begins_with(PK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":prefix": &ddbtypes.AttributeValueMemberS{Value: pkPrefix},
		},
	}

	var records []*storage.DispatchRecord
	for {
		out, err := s.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamo: scan: %w", err)
		}
		for _, item := range out.Items {
			rec, err := itemToDispatch(item)
			if err != nil {
				return nil, fmt.Errorf("dynamo: scan decode: %w", err)
			}
			records = append(records, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return records, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func dispatchItem(rec *storage.DispatchRecord) map[string]ddbtypes.AttributeValue {
	item := map[string]ddbtypes.AttributeValue{
		"PK":              &ddbtypes.AttributeValueMemberS{Value: dispatchPK(rec.ID)},
		"id":              &ddbtypes.AttributeValueMemberS{Value: rec.ID},
		"kind":            &ddbtypes.AttributeValueMemberS{Value: string(rec.Kind)},
		"destinationId":   &ddbtypes.AttributeValueMemberS{Value: rec.DestinationID},
		"status":          &ddbtypes.AttributeValueMemberS{Value: string(rec.Status)},
		"textLength":      &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(rec.TextLength)},
		"attachmentCount": &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(rec.AttachmentCount)},
		"attachmentBytes": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(rec.AttachmentBytes, 10)},
		"createdAt":       &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(rec.CreatedAt.UnixNano(), 10)},
	}
	if rec.Error != nil {
		item["error"] = &ddbtypes.AttributeValueMemberS{Value: *rec.Error}
	}
	if rec.CompletedAt != nil {
		item["completedAt"] = &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(rec.CompletedAt.UnixNano(), 10)}
	}
	return item
}

func itemToDispatch(item map[string]ddbtypes.AttributeValue) (*storage.DispatchRecord, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return nil, err
	}
	kind, err := strAttr(item, "kind")
	if err != nil {
		return nil, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return nil, err
	}
	createdAt, err := int64Attr(item, "createdAt")
	if err != nil {
		return nil, err
	}
	destination, _ := strAttr(item, "destinationId") // allow empty
	textLength, _ := int64Attr(item, "textLength")
	attachmentCount, _ := int64Attr(item, "attachmentCount")
	attachmentBytes, _ := int64Attr(item, "attachmentBytes")

	rec := &storage.DispatchRecord{
		ID:              id,
		Kind:            types.DestinationKind(kind),
		DestinationID:   destination,
		Status:          types.DispatchStatus(status),
		TextLength:      int(textLength),
		AttachmentCount: int(attachmentCount),
		AttachmentBytes: attachmentBytes,
		CreatedAt:       time.Unix(0, createdAt),
	}
	if msg, err := strAttr(item, "error"); err == nil {
		rec.Error = &msg
	}
	if completed, err := int64Attr(item, "completedAt"); err == nil {
		t := time.Unix(0, completed)
		rec.CompletedAt = &t
	}
	return rec, nil
}

func strAttr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("dynamo: missing attribute %q", key)
	}
	s, ok := v.(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamo: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]ddbtypes.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("dynamo: missing attribute %q", key)
	}
	n, ok := v.(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamo: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamo: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
