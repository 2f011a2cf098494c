// Package dynamo is a ledger backend on a single DynamoDB table keyed by
// user_id (hash) and seq (range). Item seq 0 marks a known user.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"finbot/internal/core"
)

const (
	dateLayout    = "2006-01-02T15:04:05Z"
	createdLayout = "2006-01-02T15:04:05.000000000Z"
	markerSeq     = 0
)

// API is the subset of the DynamoDB client the repository uses.
type API interface {
	dynamodb.QueryAPIClient
	dynamodb.ScanAPIClient
	dynamodb.DescribeTableAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type item struct {
	UserID       string `json:"user_id"`
	Seq          int64  `json:"seq"`
	ID           string `json:"id,omitempty"`
	Type         string `json:"type,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Note         string `json:"note,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	Date         string `json:"date,omitempty"`
	Settled      bool   `json:"settled"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type Repository struct {
	client    API
	tableName string
	loc       *time.Location
}

func NewRepository(opts ...func(*Repository)) *Repository {
	repo := &Repository{tableName: "finbot-ledger", loc: time.Local}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

func WithClient(client API) func(*Repository) {
	return func(repo *Repository) {
		repo.client = client
	}
}

func WithTableName(tableName string) func(*Repository) {
	return func(repo *Repository) {
		if tableName != "" {
			repo.tableName = tableName
		}
	}
}

func WithLocation(loc *time.Location) func(*Repository) {
	return func(repo *Repository) {
		if loc != nil {
			repo.loc = loc
		}
	}
}

// NewClient loads the default AWS configuration. A non-empty endpoint points
// the client at a local DynamoDB.
func NewClient(ctx context.Context, region, endpoint string, optFns ...func(*config.LoadOptions) error) (*dynamodb.Client, error) {
	if region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}
	if endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, r string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           endpoint,
				SigningRegion: r,
			}, nil
		})
		optFns = append(optFns, config.WithEndpointResolverWithOptions(resolver))
	}
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// EnsureTable creates the table when it does not exist and waits for it.
func (repo *Repository) EnsureTable(ctx context.Context) error {
	_, err := repo.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &repo.tableName})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table: %w", err)
	}

	_, err = repo.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(repo.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("seq"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("seq"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(repo.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: &repo.tableName}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table: %w", err)
	}
	slog.InfoContext(ctx, "DynamoDB table created", "table", repo.tableName)
	return nil
}

// Ping reports whether the table is reachable.
func (repo *Repository) Ping(ctx context.Context) error {
	if _, err := repo.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &repo.tableName}); err != nil {
		return fmt.Errorf("describe table: %w", err)
	}
	return nil
}

func (repo *Repository) EnsureUser(ctx context.Context, user string) error {
	err := repo.putIfAbsent(ctx, item{
		UserID:    user,
		Seq:       markerSeq,
		CreatedAt: time.Now().UTC().Format(createdLayout),
	})
	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("put user marker: %w", err)
	}
	return nil
}

// Users scans for marker items and orders them by registration time.
func (repo *Repository) Users(ctx context.Context) ([]string, error) {
	filter := expression.Name("seq").Equal(expression.Value(markerSeq))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, err
	}

	p := dynamodb.NewScanPaginator(repo.client, &dynamodb.ScanInput{
		TableName:                 &repo.tableName,
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var markers []item
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan users: %w", err)
		}
		var batch []item
		if err := unmarshalItems(page.Items, &batch); err != nil {
			return nil, err
		}
		markers = append(markers, batch...)
	}

	sort.Slice(markers, func(i, j int) bool {
		if markers[i].CreatedAt != markers[j].CreatedAt {
			return markers[i].CreatedAt < markers[j].CreatedAt
		}
		return markers[i].UserID < markers[j].UserID
	})
	users := make([]string, len(markers))
	for i, m := range markers {
		users[i] = m.UserID
	}
	return users, nil
}

func (repo *Repository) Load(ctx context.Context, user string) ([]core.Transaction, error) {
	keyExpr := expression.Key("user_id").Equal(expression.Value(user)).
		And(expression.Key("seq").GreaterThan(expression.Value(markerSeq)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, err
	}

	p := dynamodb.NewQueryPaginator(repo.client, &dynamodb.QueryInput{
		TableName:                 &repo.tableName,
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var txs []core.Transaction
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query transactions: %w", err)
		}
		var batch []item
		if err := unmarshalItems(page.Items, &batch); err != nil {
			return nil, err
		}
		for _, it := range batch {
			tx, err := repo.decode(it)
			if err != nil {
				return nil, err
			}
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (repo *Repository) Append(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if err := repo.EnsureUser(ctx, tx.UserID); err != nil {
		return err
	}
	err := repo.putIfAbsent(ctx, item{
		UserID:       tx.UserID,
		Seq:          tx.Seq,
		ID:           tx.ID,
		Type:         string(tx.Kind),
		Amount:       tx.Amount.String(),
		Note:         tx.Note,
		Counterparty: tx.Counterparty,
		Date:         tx.Timestamp.UTC().Format(dateLayout),
		Settled:      tx.Settled,
	})
	if err != nil {
		return fmt.Errorf("put transaction: %w", err)
	}
	return nil
}

// MarkSettled updates the item at the transaction's seq, guarded on its ID.
func (repo *Repository) MarkSettled(ctx context.Context, tx core.Transaction) error {
	update := expression.Set(expression.Name("settled"), expression.Value(true))
	cond := expression.Name("id").Equal(expression.Value(tx.ID))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return err
	}

	_, err = repo.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &repo.tableName,
		Key:                       key(tx.UserID, tx.Seq),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var mismatch *types.ConditionalCheckFailedException
	if errors.As(err, &mismatch) {
		return fmt.Errorf("%w: transaction %s", core.ErrNotFound, tx.ID)
	}
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (repo *Repository) putIfAbsent(ctx context.Context, it item) error {
	av, err := attributevalue.MarshalMapWithOptions(it, func(opts *attributevalue.EncoderOptions) {
		opts.TagKey = "json"
	})
	if err != nil {
		return err
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("seq"))).
		Build()
	if err != nil {
		return err
	}

	_, err = repo.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                &repo.tableName,
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	return err
}

func (repo *Repository) decode(it item) (core.Transaction, error) {
	amount, err := decimal.NewFromString(it.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount of transaction %s: %w", it.ID, err)
	}
	ts, err := time.Parse(dateLayout, it.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date of transaction %s: %w", it.ID, err)
	}
	return core.Transaction{
		ID:           it.ID,
		UserID:       it.UserID,
		Seq:          it.Seq,
		Kind:         core.Kind(it.Type),
		Amount:       amount,
		Note:         it.Note,
		Counterparty: it.Counterparty,
		Timestamp:    ts.In(repo.loc),
		Settled:      it.Settled,
	}, nil
}

func key(user string, seq int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: user},
		"seq":     &types.AttributeValueMemberN{Value: strconv.FormatInt(seq, 10)},
	}
}

func unmarshalItems(items []map[string]types.AttributeValue, out *[]item) error {
	err := attributevalue.UnmarshalListOfMapsWithOptions(items, out, func(opts *attributevalue.DecoderOptions) {
		opts.TagKey = "json"
	})
	if err != nil {
		return fmt.Errorf("unmarshal items: %w", err)
	}
	return nil
}
