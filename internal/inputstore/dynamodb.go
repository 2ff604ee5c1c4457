package inputstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore keeps Inputs in a DynamoDB table keyed by "id". The Input
// is stored as a JSON document next to the attributes used for filtering.
//
// Title uniqueness is checked with a scan before each write, so two
// concurrent writers can still create the same title.
type DynamoDBStore struct {
	client DynamoDBAPI
	table  string
	logger *events.Logger

	// Now is the clock used for timestamps.
	Now func() time.Time
}

// NewDynamoDBClient builds a client from the default AWS credential chain.
func NewDynamoDBClient(ctx context.Context, cfg *config.DevServerConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	}), nil
}

// NewDynamoDBStore uses table through client.
func NewDynamoDBStore(client DynamoDBAPI, table string, logger *events.Logger) *DynamoDBStore {
	return &DynamoDBStore{
		client: client,
		table:  table,
		logger: logger.WithField("component", "dynamodb_input_store"),
		Now:    time.Now,
	}
}

func encodeItem(in *models.Input) (map[string]types.AttributeValue, error) {
	doc, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	return map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: in.ID},
		"login":      &types.AttributeValueMemberS{Value: in.Login},
		"title":      &types.AttributeValueMemberS{Value: in.Title},
		"created_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(in.CreatedAt.UnixNano(), 10)},
		"input":      &types.AttributeValueMemberS{Value: string(doc)},
	}, nil
}

func decodeItem(item map[string]types.AttributeValue) (*models.Input, error) {
	doc, ok := item["input"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("invalid input attribute type")
	}
	var in models.Input
	if err := json.Unmarshal([]byte(doc.Value), &in); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	return &in, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *DynamoDBStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoDBStore) get(ctx context.Context, id string) (*models.Input, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get: %w", err)
	}
	if out.Item == nil {
		return nil, notFound(models.InputFilter{ID: id})
	}
	return decodeItem(out.Item)
}

// scan returns the Inputs of login, oldest first.
func (s *DynamoDBStore) scan(ctx context.Context, login string) ([]*models.Input, error) {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	}
	if login != "" {
		input.FilterExpression = aws.String("login = :login")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":login": &types.AttributeValueMemberS{Value: login},
		}
	}

	var out []*models.Input
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan: %w", err)
		}
		for _, item := range page.Items {
			in, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, in)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *DynamoDBStore) titleTaken(ctx context.Context, login, title, exceptID string) (bool, error) {
	existing, err := s.scan(ctx, login)
	if err != nil {
		return false, err
	}
	for _, in := range existing {
		if in.ID != exceptID && in.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (s *DynamoDBStore) put(ctx context.Context, in *models.Input, condition string) error {
	item, err := encodeItem(in)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	return err
}

// CreateInput stores a new Input with a generated ID.
func (s *DynamoDBStore) CreateInput(ctx context.Context, input *models.Input) (*models.Input, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	taken, err := s.titleTaken(ctx, input.Login, input.Title, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("input %q for %s: %w", input.Title, input.Login, models.ErrAlreadyExists)
	}

	c := input.Clone()
	c.ID = uuid.NewString()
	c.TitleSlug = models.Slugify(c.Title)
	c.FileSet = fileMetadata(c.FileSet)
	now := s.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	if err := s.put(ctx, c, "attribute_not_exists(id)"); err != nil {
		return nil, fmt.Errorf("dynamodb put: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"input_id": c.ID,
		"login":    c.Login,
	}).Debug("Created input")

	return c, nil
}

// GetInput returns the Input matching filter, projected by mask.
func (s *DynamoDBStore) GetInput(ctx context.Context, filter models.InputFilter, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	switch {
	case filter.ID != "":
		in, err := s.get(ctx, filter.ID)
		if err != nil {
			return nil, err
		}
		if !matches(in, filter) {
			return nil, notFound(filter)
		}
		return Project(in, mask)

	case filter.Title != "":
		inputs, err := s.scan(ctx, filter.Login)
		if err != nil {
			return nil, err
		}
		for _, in := range inputs {
			if matches(in, filter) {
				return Project(in, mask)
			}
		}
		return nil, notFound(filter)

	default:
		return nil, fmt.Errorf("filter needs an id or a title: %w", models.ErrInvalidArgument)
	}
}

// UpdateInput writes the fields named by mask.
func (s *DynamoDBStore) UpdateInput(ctx context.Context, input *models.Input, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	if len(mask.GetPaths()) == 0 {
		return nil, fmt.Errorf("update needs a field mask: %w", models.ErrInvalidArgument)
	}
	if err := validateMask(mask); err != nil {
		return nil, err
	}

	stored, err := s.get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	oldTitle := stored.Title

	if err := ApplyMask(stored, input, mask); err != nil {
		return nil, err
	}
	if err := validateInput(stored); err != nil {
		return nil, err
	}
	if stored.Title != oldTitle {
		taken, err := s.titleTaken(ctx, stored.Login, stored.Title, stored.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("input %q for %s: %w", stored.Title, stored.Login, models.ErrAlreadyExists)
		}
	}
	stored.UpdatedAt = s.Now().UTC()

	if err := s.put(ctx, stored, "attribute_exists(id)"); err != nil {
		if isConditionFailed(err) {
			return nil, notFound(models.InputFilter{ID: stored.ID})
		}
		return nil, fmt.Errorf("dynamodb put: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"input_id": stored.ID,
		"paths":    mask.GetPaths(),
	}).Debug("Updated input")

	return stored, nil
}

// RemoveInput deletes an Input.
func (s *DynamoDBStore) RemoveInput(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return notFound(models.InputFilter{ID: id})
	}
	if err != nil {
		return fmt.Errorf("dynamodb delete: %w", err)
	}
	return nil
}

// ListInputs returns the Inputs of filter.Login in creation order.
func (s *DynamoDBStore) ListInputs(ctx context.Context, filter models.InputFilter) ([]*models.Input, error) {
	inputs, err := s.scan(ctx, filter.Login)
	if err != nil {
		return nil, err
	}
	out := inputs[:0]
	for _, in := range inputs {
		if matches(in, filter) {
			out = append(out, in)
		}
	}
	return out, nil
}
