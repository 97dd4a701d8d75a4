package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/kmeansmr/blobstore"
)

// CurrentName is the pointer blob redirected to DynamoDB.
const CurrentName = "CURRENT"

// DDBCommitStore is an S3 store whose CURRENT pointer lives in DynamoDB.
// Every write of CURRENT appends version n+1 with a conditional put, so two
// pipelines racing to publish into one prefix cannot silently overwrite each
// other: the loser gets ErrConcurrentModification.
//
// Table schema:
//   - partition key base_uri (S)
//   - sort key version (N)
//
//	aws dynamodb create-table \
//	  --table-name kmeansmr-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	*Store
	ddb       DDBClient
	tableName string
	baseURI   string
}

// DDBClient is the subset of the DynamoDB API used by DDBCommitStore.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentModification is returned when another writer committed the
// same version first.
var ErrConcurrentModification = errors.New("s3: concurrent modification detected")

// NewDDBCommitStore wraps store. baseURI (for example "s3://bucket/prefix")
// namespaces the commits in the table.
func NewDDBCommitStore(store *Store, ddb DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		Store:     store,
		ddb:       ddb,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Open serves CURRENT from the latest committed version.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name != CurrentName {
		return s.Store.Open(ctx, name)
	}
	version, target, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader([]byte(target))), nil
}

// Put commits CURRENT through DynamoDB and everything else to S3.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name == CurrentName {
		return s.commit(ctx, string(data))
	}
	return s.Store.Put(ctx, name, data)
}

// Create rejects streaming writes of CURRENT.
func (s *DDBCommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if name == CurrentName {
		return nil, fmt.Errorf("%w: %s must be written with Put", blobstore.ErrInvalidName, CurrentName)
	}
	return s.Store.Create(ctx, name)
}

// Delete never removes commit history; deleting CURRENT is a no-op.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if name == CurrentName {
		return nil
	}
	return s.Store.Delete(ctx, name)
}

// Version returns the latest committed version, 0 if none.
func (s *DDBCommitStore) Version(ctx context.Context) (uint64, error) {
	v, _, err := s.latest(ctx)
	return v, err
}

func (s *DDBCommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query commits: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: invalid version attribute in commit table")
	}
	targetAttr, ok := item["target"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: invalid target attribute in commit table")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse commit version: %w", err)
	}
	return version, targetAttr.Value, nil
}

func (s *DDBCommitStore) commit(ctx context.Context, target string) error {
	current, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			"target":   &types.AttributeValueMemberS{Value: target},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("commit version %d: %w", current+1, err)
	}
	return nil
}
